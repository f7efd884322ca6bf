package database

import (
	"context"
	"errors"
	"time"

	"github.com/testkube/quality-dashboard/internal/records"
)

var ErrNotFound = errors.New("record not found")

// Database stores normalized test records. It is the record source the
// dashboard is composed from.
type Database interface {
	// InsertRecords stores recs and returns them as stored. Records without
	// a storage ID are assigned one; their report ID is left untouched.
	InsertRecords(ctx context.Context, recs []records.TestRecord) ([]records.TestRecord, error)

	// ListRecords returns records started at or after since, plus records
	// with no start time. A zero since returns everything.
	ListRecords(ctx context.Context, since time.Time) ([]records.TestRecord, error)

	GetRecord(ctx context.Context, id string) (*records.TestRecord, error)

	Close() error
}
