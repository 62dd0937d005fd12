package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/dbfleet/dbfleet/internal/config"
	"github.com/dbfleet/dbfleet/pkg/types"
)

// Fetcher retrieves one raw telemetry payload for a source.
//
// The payload is the decoded JSON value (or the equivalent built from
// repository rows): []any of {cluster: [node...]} objects for grouped
// engines, []any of flat rows for SQL Server. A non-nil error is a transport
// failure; a payload of the wrong shape is returned as-is for the adapter to
// reject.
type Fetcher interface {
	Fetch(ctx context.Context) (any, error)
	Close() error
}

// New returns the Fetcher matching src.Kind. Connection pools are built once
// here and reused for every Fetch.
func New(ctx context.Context, src config.Source) (Fetcher, error) {
	switch src.Kind {
	case config.KindHTTP, "":
		return newHTTPFetcher(src)
	case config.KindSQL:
		return newSQLFetcher(src)
	case config.KindMongoDB:
		return newMongoFetcher(ctx, src)
	default:
		return nil, fmt.Errorf("source %q: unsupported kind %q", src.ID, src.Kind)
	}
}

// shapeRows turns flat repository rows into the payload shape the engine's
// adapter expects. SQL Server rows stay flat; every other engine is grouped by
// the groupBy column, clusters in first-seen order. Rows without a value in
// that column are grouped under the empty key so the adapter can drop them.
func shapeRows(engine types.Engine, groupBy string, rows []map[string]any) []any {
	out := make([]any, 0, len(rows))
	if engine == types.EngineMSSQL {
		for _, r := range rows {
			out = append(out, r)
		}
		return out
	}

	var order []string
	groups := make(map[string][]any)
	for _, r := range rows {
		key := fmt.Sprint(columnValue(r, groupBy))
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}
	for _, k := range order {
		out = append(out, map[string]any{k: groups[k]})
	}
	return out
}

// columnValue looks column up exactly, then case-insensitively, and returns
// "" when absent.
func columnValue(row map[string]any, column string) any {
	if v, ok := row[column]; ok && v != nil {
		return v
	}
	for k, v := range row {
		if strings.EqualFold(k, column) && v != nil {
			return v
		}
	}
	return ""
}
