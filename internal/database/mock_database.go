package database

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/testkube/quality-dashboard/internal/records"
)

// MockDatabase keeps records in memory, in insertion order.
type MockDatabase struct {
	mu      sync.RWMutex
	records []records.TestRecord
	index   map[string]int
}

func NewMockDatabase() *MockDatabase {
	return &MockDatabase{
		records: []records.TestRecord{},
		index:   map[string]int{},
	}
}

func (db *MockDatabase) InsertRecords(ctx context.Context, recs []records.TestRecord) ([]records.TestRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	stored := make([]records.TestRecord, 0, len(recs))
	for _, r := range recs {
		if err := ctx.Err(); err != nil {
			return stored, err
		}
		if r.ID == "" {
			r = r.WithID(uuid.NewString())
		}
		if i, ok := db.index[r.ID]; ok {
			db.records[i] = r
		} else {
			db.index[r.ID] = len(db.records)
			db.records = append(db.records, r)
		}
		stored = append(stored, r)
	}
	return stored, nil
}

func (db *MockDatabase) ListRecords(ctx context.Context, since time.Time) ([]records.TestRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]records.TestRecord, 0, len(db.records))
	for _, r := range db.records {
		if !since.IsZero() && r.Start != nil && *r.Start < since.UnixMilli() {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (db *MockDatabase) GetRecord(ctx context.Context, id string) (*records.TestRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	i, ok := db.index[id]
	if !ok {
		return nil, ErrNotFound
	}
	r := db.records[i]
	return &r, nil
}

func (db *MockDatabase) Close() error {
	return nil
}
