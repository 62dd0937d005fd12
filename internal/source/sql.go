package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/lib/pq"

	"github.com/dbfleet/dbfleet/internal/config"
)

// sqlFetcher runs a read-only query against a telemetry repository database.
// The postgres driver is registered by lib/pq and sqlserver by go-mssqldb.
type sqlFetcher struct {
	src config.Source
	db  *sql.DB
}

func newSQLFetcher(src config.Source) (*sqlFetcher, error) {
	dsn := src.DSN()
	if dsn == "" {
		return nil, fmt.Errorf("source %q: environment variable %s is empty", src.ID, src.DSNEnv)
	}
	db, err := sql.Open(src.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("source %q: open %s: %w", src.ID, src.Driver, err)
	}
	// One poll at a time per source; keep a single warm connection.
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &sqlFetcher{src: src, db: db}, nil
}

func (f *sqlFetcher) Fetch(ctx context.Context) (any, error) {
	rows, err := f.db.QueryContext(ctx, f.src.Query)
	if err != nil {
		return nil, fmt.Errorf("query: %s", describeSQLError(err))
	}
	defer rows.Close()

	records, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	return shapeRows(f.src.Engine, f.src.GroupBy, records), nil
}

func (f *sqlFetcher) Close() error { return f.db.Close() }

// rowScanner is the subset of *sql.Rows used by scanRows.
type rowScanner interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// scanRows reads every row into a column-name keyed map. Text columns come
// back from both drivers as []byte and are converted to string; timestamps
// are rendered as RFC 3339.
func scanRows(rows rowScanner) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		rec := make(map[string]any, len(cols))
		for i, c := range cols {
			switch v := vals[i].(type) {
			case []byte:
				rec[c] = string(v)
			case time.Time:
				rec[c] = v.UTC().Format(time.RFC3339)
			default:
				rec[c] = v
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %s", describeSQLError(err))
	}
	return out, nil
}

// describeSQLError adds the server-side error code when the driver exposes one.
func describeSQLError(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Sprintf("postgres %s (%s): %s", pqErr.Code, pqErr.Code.Name(), pqErr.Message)
	}
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return fmt.Sprintf("sqlserver error %d: %s", msErr.Number, msErr.Message)
	}
	return err.Error()
}
