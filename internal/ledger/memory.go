package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/airwatch/aqicast/internal/dataset"
)

// MemoryLedger is an in-process Ledger used by tests and single-node
// deployments that have no database configured.
type MemoryLedger struct {
	mu     sync.RWMutex
	nextID int64
	recs   []EvaluationRecord
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{nextID: 1}
}

func (l *MemoryLedger) Append(_ context.Context, rec *EvaluationRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec.ID = l.nextID
	l.nextID++
	l.recs = append(l.recs, *rec)
	return nil
}

func (l *MemoryLedger) Latest(_ context.Context, horizon dataset.Horizon, algorithm string, limit int) ([]EvaluationRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []EvaluationRecord
	for _, rec := range l.recs {
		if rec.Horizon != horizon {
			continue
		}
		if algorithm != "" && rec.Algorithm != algorithm {
			continue
		}
		out = append(out, rec)
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *MemoryLedger) Best(_ context.Context, horizon dataset.Horizon, metric Metric) (*EvaluationRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var best *EvaluationRecord
	for i := range l.recs {
		rec := l.recs[i]
		if rec.Horizon != horizon {
			continue
		}
		if best == nil || metricValue(rec, metric) < metricValue(*best, metric) {
			c := rec
			best = &c
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func (l *MemoryLedger) All(_ context.Context) ([]EvaluationRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]EvaluationRecord, len(l.recs))
	copy(out, l.recs)
	sortNewestFirst(out)
	return out, nil
}

func (l *MemoryLedger) CountByHorizon(_ context.Context, horizon dataset.Horizon) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	count := 0
	for _, rec := range l.recs {
		if rec.Horizon == horizon {
			count++
		}
	}
	return count, nil
}

func (l *MemoryLedger) MarkDeployed(_ context.Context, id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.recs {
		if l.recs[i].ID == id {
			l.recs[i].Deployed = true
			return nil
		}
	}
	return ErrNotFound
}

func sortNewestFirst(recs []EvaluationRecord) {
	sort.SliceStable(recs, func(a, b int) bool {
		if recs[a].EvaluatedAt.Equal(recs[b].EvaluatedAt) {
			return recs[a].ID > recs[b].ID
		}
		return recs[a].EvaluatedAt.After(recs[b].EvaluatedAt)
	})
}
