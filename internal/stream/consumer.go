package stream

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"go.uber.org/zap"

	"github.com/nightjar-tv/nightjar/internal/ingest"
	"github.com/nightjar-tv/nightjar/internal/keyspace"
)

const pollInterval = 5 * time.Second

// ConsumerAPI is the slice of the Kinesis API the consumer needs.
type ConsumerAPI interface {
	ListShards(ctx context.Context, params *kinesis.ListShardsInput, optFns ...func(*kinesis.Options)) (*kinesis.ListShardsOutput, error)
	GetShardIterator(ctx context.Context, params *kinesis.GetShardIteratorInput, optFns ...func(*kinesis.Options)) (*kinesis.GetShardIteratorOutput, error)
	GetRecords(ctx context.Context, params *kinesis.GetRecordsInput, optFns ...func(*kinesis.Options)) (*kinesis.GetRecordsOutput, error)
}

// Consumer polls the ingestion stream and hands decoded batches to the
// deduplicator. It runs until its context is cancelled.
type Consumer struct {
	client  ConsumerAPI
	stream  string
	dedup   *ingest.Deduplicator
	reports *ingest.ReportLog
	log     *zap.Logger
}

func NewConsumer(client ConsumerAPI, streamName string, dedup *ingest.Deduplicator, reports *ingest.ReportLog, log *zap.Logger) *Consumer {
	return &Consumer{client: client, stream: streamName, dedup: dedup, reports: reports, log: log}
}

// Run polls every shard of the stream in turn. Transient stream errors are
// logged and retried on the next tick; an ingestion error fails the batch
// and the iterator is not advanced past it, so the batch is seen again.
func (c *Consumer) Run(ctx context.Context) error {
	iterators, err := c.shardIterators(ctx)
	if err != nil {
		return err
	}
	c.log.Info("stream consumer started",
		zap.String("stream", c.stream), zap.Int("shards", len(iterators)))

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		for shard, iterator := range iterators {
			if iterator == "" {
				continue
			}
			next, err := c.drainShard(ctx, iterator)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.log.Error("failed to read shard",
					zap.String("shard", shard), zap.Error(err))
				continue
			}
			iterators[shard] = next
		}
	}
}

func (c *Consumer) shardIterators(ctx context.Context) (map[string]string, error) {
	shards, err := c.client.ListShards(ctx, &kinesis.ListShardsInput{
		StreamName: aws.String(c.stream),
	})
	if err != nil {
		return nil, err
	}
	iterators := make(map[string]string, len(shards.Shards))
	for _, shard := range shards.Shards {
		res, err := c.client.GetShardIterator(ctx, &kinesis.GetShardIteratorInput{
			StreamName:        aws.String(c.stream),
			ShardId:           shard.ShardId,
			ShardIteratorType: types.ShardIteratorTypeTrimHorizon,
		})
		if err != nil {
			return nil, err
		}
		iterators[aws.ToString(shard.ShardId)] = aws.ToString(res.ShardIterator)
	}
	return iterators, nil
}

func (c *Consumer) drainShard(ctx context.Context, iterator string) (string, error) {
	res, err := c.client.GetRecords(ctx, &kinesis.GetRecordsInput{
		ShardIterator: aws.String(iterator),
	})
	if err != nil {
		return iterator, err
	}
	if len(res.Records) > 0 {
		if err := c.handleRecords(ctx, res.Records); err != nil {
			return iterator, err
		}
	}
	return aws.ToString(res.NextShardIterator), nil
}

func (c *Consumer) handleRecords(ctx context.Context, records []types.Record) error {
	titles := make([]keyspace.Title, 0, len(records))
	for _, rec := range records {
		env, err := decodeEnvelope(rec.Data)
		if err != nil {
			c.log.Warn("dropping undecodable stream record", zap.Error(err))
			continue
		}
		titles = append(titles, env.Payload)
	}
	if len(titles) == 0 {
		return nil
	}

	// Context ids ride on each payload already; the deduplicator's context
	// lists are a fallback for producers that strip them.
	report, err := c.dedup.Ingest(ctx, titles, nil, nil)
	if err != nil {
		return err
	}
	if c.reports != nil {
		c.reports.Record(report)
	}
	c.log.Info("ingested stream batch",
		zap.Int("records", len(records)),
		zap.Int("titles", len(report.Written)),
		zap.Int("index_rows", report.IndexRows))
	return nil
}
