package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nightjar-tv/nightjar/internal/keyspace"
)

type fakeKinesis struct {
	inputs []*kinesis.PutRecordsInput
	failed int32
}

func (f *fakeKinesis) PutRecords(_ context.Context, params *kinesis.PutRecordsInput, _ ...func(*kinesis.Options)) (*kinesis.PutRecordsOutput, error) {
	f.inputs = append(f.inputs, params)
	return &kinesis.PutRecordsOutput{FailedRecordCount: aws.Int32(f.failed)}, nil
}

func TestPublishTitlesWrapsEnvelopes(t *testing.T) {
	fake := &fakeKinesis{}
	p := NewPublisher(fake, "titles", zap.NewNop())
	p.now = func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }

	titles := []keyspace.Title{{ID: "T1", Name: "The Thing", SourceIDs: []keyspace.ID{"S1"}}}
	require.NoError(t, p.PublishTitles(context.Background(), titles, "manual_refresh"))

	require.Len(t, fake.inputs, 1)
	assert.Equal(t, "titles", aws.ToString(fake.inputs[0].StreamName))
	records := fake.inputs[0].Records
	require.Len(t, records, 1)
	assert.Equal(t, "T1", aws.ToString(records[0].PartitionKey))

	var env Envelope
	require.NoError(t, json.Unmarshal(records[0].Data, &env))
	assert.Equal(t, "title-fetcher", env.Header.PublishingComponent)
	assert.Equal(t, "manual_refresh", env.Header.PublishCause)
	assert.Equal(t, "2026-08-01T12:00:00Z", env.Header.PublishTimestamp)
	assert.Equal(t, keyspace.ID("T1"), env.Payload.ID)
	assert.Equal(t, []keyspace.ID{"S1"}, env.Payload.SourceIDs)
}

func TestPublishTitlesChunksAtLimit(t *testing.T) {
	fake := &fakeKinesis{}
	p := NewPublisher(fake, "titles", zap.NewNop())

	titles := make([]keyspace.Title, 600)
	for i := range titles {
		titles[i] = keyspace.Title{ID: keyspace.ID(fmt.Sprint(i)), Name: "t"}
	}
	require.NoError(t, p.PublishTitles(context.Background(), titles, "bulk"))

	require.Len(t, fake.inputs, 2)
	assert.Len(t, fake.inputs[0].Records, 500)
	assert.Len(t, fake.inputs[1].Records, 100)
}

func TestPublishTitlesSkipsMissingIDs(t *testing.T) {
	fake := &fakeKinesis{}
	p := NewPublisher(fake, "titles", zap.NewNop())

	require.NoError(t, p.PublishTitles(context.Background(), []keyspace.Title{{Name: "no id"}}, "x"))
	assert.Empty(t, fake.inputs)
}

func TestPublishTitlesFailsOnRejectedRecords(t *testing.T) {
	fake := &fakeKinesis{failed: 2}
	p := NewPublisher(fake, "titles", zap.NewNop())

	err := p.PublishTitles(context.Background(), []keyspace.Title{{ID: "T1", Name: "x"}}, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
}
