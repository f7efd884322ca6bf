package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	_ "github.com/lib/pq"
	"github.com/testkube/quality-dashboard/internal/records"
	_ "modernc.org/sqlite"
)

// Supported drivers. The names match the registered database/sql drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

const recordColumns = `id, report_id, name, full_name, description, history_id, status, start_ms, stop_ms,
	message, trace, labels, parameters, attachments, steps`

// SQLDatabase stores records in a single test_records table on PostgreSQL,
// MySQL or SQLite.
type SQLDatabase struct {
	db     *sql.DB
	driver string
}

var _ Database = (*SQLDatabase)(nil)

func NewSQLDatabase(ctx context.Context, driver, dsn string) (*SQLDatabase, error) {
	switch driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// SQLite locks the whole file; more connections just contend.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := &SQLDatabase{db: db, driver: driver}
	if err := d.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return d, nil
}

func (d *SQLDatabase) InitSchema(ctx context.Context) error {
	text, key := "TEXT", "TEXT"
	if d.driver == DriverMySQL {
		text, key = "LONGTEXT", "VARCHAR(191)"
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS test_records (
			id ` + key + ` NOT NULL PRIMARY KEY,
			report_id ` + text + `,
			name ` + text + `,
			full_name ` + text + `,
			description ` + text + `,
			history_id ` + text + `,
			status VARCHAR(16) NOT NULL,
			start_ms BIGINT,
			stop_ms BIGINT,
			message ` + text + `,
			trace ` + text + `,
			labels ` + text + `,
			parameters ` + text + `,
			attachments ` + text + `,
			steps ` + text + `
		)`,
	}
	if d.driver != DriverMySQL {
		// MySQL has no CREATE INDEX IF NOT EXISTS; the table is small enough
		// there without it.
		queries = append(queries, `CREATE INDEX IF NOT EXISTS idx_test_records_start ON test_records(start_ms)`)
	}

	for _, query := range queries {
		if _, err := d.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query %s: %w", query, err)
		}
	}

	return nil
}

func (d *SQLDatabase) upsertQuery() string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", 15), ", ")
	updated := []string{"report_id", "name", "full_name", "description", "history_id", "status", "start_ms", "stop_ms",
		"message", "trace", "labels", "parameters", "attachments", "steps"}

	sets := make([]string, len(updated))
	for i, col := range updated {
		if d.driver == DriverMySQL {
			sets[i] = col + " = VALUES(" + col + ")"
		} else {
			sets[i] = col + " = excluded." + col
		}
	}

	query := "INSERT INTO test_records (" + recordColumns + ") VALUES (" + placeholders + ")"
	if d.driver == DriverMySQL {
		query += " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	} else {
		query += " ON CONFLICT (id) DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return d.rebind(query)
}

// InsertRecords upserts each record independently. Records that fail are
// left out of the returned slice and reported together in the error.
func (d *SQLDatabase) InsertRecords(ctx context.Context, recs []records.TestRecord) ([]records.TestRecord, error) {
	query := d.upsertQuery()

	var result *multierror.Error
	stored := make([]records.TestRecord, 0, len(recs))
	for _, r := range recs {
		if r.ID == "" {
			r = r.WithID(uuid.NewString())
		}
		args, err := recordArgs(r)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("record %s: %w", r.ID, err))
			continue
		}
		if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to insert record %s: %w", r.ID, err))
			continue
		}
		stored = append(stored, r)
	}

	return stored, result.ErrorOrNil()
}

func (d *SQLDatabase) ListRecords(ctx context.Context, since time.Time) ([]records.TestRecord, error) {
	query := "SELECT " + recordColumns + " FROM test_records"
	var args []any
	if !since.IsZero() {
		query += " WHERE start_ms IS NULL OR start_ms >= ?"
		args = append(args, since.UnixMilli())
	}
	query += " ORDER BY COALESCE(start_ms, 0), id"

	rows, err := d.db.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	out := []records.TestRecord{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *SQLDatabase) GetRecord(ctx context.Context, id string) (*records.TestRecord, error) {
	row := d.db.QueryRowContext(ctx, d.rebind("SELECT "+recordColumns+" FROM test_records WHERE id = ?"), id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (d *SQLDatabase) Close() error {
	return d.db.Close()
}

// rebind turns ? placeholders into $n for PostgreSQL.
func (d *SQLDatabase) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func recordArgs(r records.TestRecord) ([]any, error) {
	labels, err := json.Marshal(r.Labels)
	if err != nil {
		return nil, fmt.Errorf("failed to encode labels: %w", err)
	}
	lists := make([]string, 0, 3)
	for _, list := range [][]any{r.Parameters, r.Attachments, r.Steps} {
		data, err := json.Marshal(list)
		if err != nil {
			return nil, fmt.Errorf("failed to encode record payload: %w", err)
		}
		lists = append(lists, string(data))
	}

	return []any{
		r.ID, nullString(r.ReportID), r.Name, r.FullName, nullString(r.Description),
		nullString(r.HistoryID), string(r.Status),
		nullInt(r.Start), nullInt(r.Stop),
		nullString(r.Message()), nullString(r.Trace()),
		string(labels), lists[0], lists[1], lists[2],
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (records.TestRecord, error) {
	var (
		r                                      records.TestRecord
		status                                 string
		reportID, name, fullName, description  sql.NullString
		historyID, message, trace              sql.NullString
		labels, parameters, attachments, steps sql.NullString
		start, stop                            sql.NullInt64
	)
	err := s.Scan(&r.ID, &reportID, &name, &fullName, &description, &historyID, &status, &start, &stop,
		&message, &trace, &labels, &parameters, &attachments, &steps)
	if err != nil {
		return r, err
	}

	r.ReportID = reportID.String
	r.Name = name.String
	r.FullName = fullName.String
	r.Description = description.String
	r.HistoryID = historyID.String
	r.Status = records.Status(status)
	if start.Valid {
		r.Start = &start.Int64
	}
	if stop.Valid {
		r.Stop = &stop.Int64
	}
	if message.String != "" || trace.String != "" {
		r.StatusDetails = &records.StatusDetails{Message: message.String, Trace: trace.String}
	}

	if labels.String != "" {
		if err := json.Unmarshal([]byte(labels.String), &r.Labels); err != nil {
			return r, fmt.Errorf("failed to decode labels of %s: %w", r.ID, err)
		}
	}
	if r.Labels == nil {
		r.Labels = []records.Label{}
	}
	for _, f := range []struct {
		raw  sql.NullString
		dest *[]any
	}{{parameters, &r.Parameters}, {attachments, &r.Attachments}, {steps, &r.Steps}} {
		if f.raw.String != "" {
			if err := json.Unmarshal([]byte(f.raw.String), f.dest); err != nil {
				return r, fmt.Errorf("failed to decode payload of %s: %w", r.ID, err)
			}
		}
		if *f.dest == nil {
			*f.dest = []any{}
		}
	}

	return r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
