package ingest

import (
	"sync"

	"github.com/nightjar-tv/nightjar/internal/keyspace"
)

// ReportLog accumulates the title ids written by ingestion runs so the
// enrichment job knows what to work on without scanning the table. Pending
// ids live in memory only; titles missed across a restart get picked up on
// their next ingestion.
type ReportLog struct {
	mu      sync.Mutex
	pending map[keyspace.ID]struct{}
	order   []keyspace.ID
}

func NewReportLog() *ReportLog {
	return &ReportLog{pending: make(map[keyspace.ID]struct{})}
}

// Record queues a report's written ids, keeping first-seen order.
func (l *ReportLog) Record(report Report) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range report.Written {
		if _, ok := l.pending[id]; ok {
			continue
		}
		l.pending[id] = struct{}{}
		l.order = append(l.order, id)
	}
}

// TakePending returns the queued ids and clears the log.
func (l *ReportLog) TakePending() []keyspace.ID {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := l.order
	l.pending = make(map[keyspace.ID]struct{})
	l.order = nil
	return ids
}

// Pending reports how many ids are queued.
func (l *ReportLog) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}
