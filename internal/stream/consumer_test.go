package stream

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nightjar-tv/nightjar/internal/ingest"
	"github.com/nightjar-tv/nightjar/internal/keyspace"
	"github.com/nightjar-tv/nightjar/internal/store/storetest"
)

func record(t *testing.T, title keyspace.Title) types.Record {
	t.Helper()
	data, err := json.Marshal(newEnvelope("title-fetcher", "test", title, time.Now()))
	require.NoError(t, err)
	return types.Record{Data: data}
}

func TestHandleRecordsIngestsTitles(t *testing.T) {
	spy := storetest.New(t)
	reports := ingest.NewReportLog()
	c := NewConsumer(nil, "titles", ingest.NewDeduplicator(spy, zap.NewNop()), reports, zap.NewNop())
	ctx := context.Background()

	records := []types.Record{
		record(t, keyspace.Title{
			ID: "T1", Name: "The Thing",
			SourceIDs: []keyspace.ID{"S1"}, GenreIDs: []keyspace.ID{"G1"},
		}),
	}
	require.NoError(t, c.handleRecords(ctx, records))

	_, err := spy.Get(ctx, keyspace.TitleKey("T1"))
	require.NoError(t, err)
	_, err = spy.Get(ctx, keyspace.IndexKey("S1", "G1", "T1"))
	require.NoError(t, err)

	// The written ids are queued for enrichment.
	assert.Equal(t, []keyspace.ID{"T1"}, reports.TakePending())
}

func TestHandleRecordsDropsUndecodable(t *testing.T) {
	spy := storetest.New(t)
	c := NewConsumer(nil, "titles", ingest.NewDeduplicator(spy, zap.NewNop()), nil, zap.NewNop())

	records := []types.Record{
		{Data: []byte("not json")},
		record(t, keyspace.Title{ID: "T1", Name: "ok", SourceIDs: []keyspace.ID{"S1"}, GenreIDs: []keyspace.ID{"G1"}}),
	}
	require.NoError(t, c.handleRecords(context.Background(), records))

	_, err := spy.Get(context.Background(), keyspace.TitleKey("T1"))
	assert.NoError(t, err)
}
