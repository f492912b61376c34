package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"go.uber.org/zap"

	"github.com/nightjar-tv/nightjar/internal/keyspace"
)

// Kinesis caps PutRecords at 500 entries per request.
const maxPutRecords = 500

const publishingComponent = "title-fetcher"

// PublisherAPI is the slice of the Kinesis API the publisher needs.
type PublisherAPI interface {
	PutRecords(ctx context.Context, params *kinesis.PutRecordsInput, optFns ...func(*kinesis.Options)) (*kinesis.PutRecordsOutput, error)
}

// NewClient builds a Kinesis client from resolved AWS config, optionally
// pointed at a custom endpoint (LocalStack).
func NewClient(cfg aws.Config, endpointURL string) *kinesis.Client {
	return kinesis.NewFromConfig(cfg, func(o *kinesis.Options) {
		if endpointURL != "" {
			o.BaseEndpoint = aws.String(endpointURL)
		}
	})
}

// Publisher writes title envelopes onto the ingestion stream. The title id
// is the partition key, so reruns of the same title land on the same shard
// and stay ordered.
type Publisher struct {
	client PublisherAPI
	stream string
	now    func() time.Time
	log    *zap.Logger
}

func NewPublisher(client PublisherAPI, streamName string, log *zap.Logger) *Publisher {
	return &Publisher{client: client, stream: streamName, now: time.Now, log: log}
}

// PublishTitles puts one envelope per title, chunked to the API limit.
// Records Kinesis could not accept are reported as an error; the caller
// decides whether to rerun the fetch.
func (p *Publisher) PublishTitles(ctx context.Context, titles []keyspace.Title, cause string) error {
	entries := make([]types.PutRecordsRequestEntry, 0, len(titles))
	for _, t := range titles {
		if t.ID == "" {
			p.log.Warn("skipping title without id", zap.String("title", t.Name))
			continue
		}
		env := newEnvelope(publishingComponent, cause, t, p.now())
		data, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("encode envelope for title %s: %w", t.ID, err)
		}
		entries = append(entries, types.PutRecordsRequestEntry{
			Data:         data,
			PartitionKey: aws.String(string(t.ID)),
		})
	}
	if len(entries) == 0 {
		return nil
	}

	for start := 0; start < len(entries); start += maxPutRecords {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+maxPutRecords, len(entries))
		chunk := entries[start:end]

		res, err := p.client.PutRecords(ctx, &kinesis.PutRecordsInput{
			StreamName: aws.String(p.stream),
			Records:    chunk,
		})
		if err != nil {
			return fmt.Errorf("put records to stream %s: %w", p.stream, err)
		}
		if res.FailedRecordCount != nil && *res.FailedRecordCount > 0 {
			return fmt.Errorf("stream %s rejected %d of %d records",
				p.stream, *res.FailedRecordCount, len(chunk))
		}
	}

	p.log.Info("published title records",
		zap.Int("count", len(entries)), zap.String("cause", cause))
	return nil
}
