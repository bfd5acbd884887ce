// Package fallback reconstructs a partial entity from an ad hoc tabular query
// when the structured detail endpoint cannot serve an id.
package fallback

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/fieldpay/recordsync/pkg/syncerr"
)

type QueryRunner interface {
	RunQuery(ctx context.Context, query string) ([]map[string]string, error)
}

// Query describes the single-row lookup for one record type. Table and
// column names are trusted identifiers; only the id is caller data.
type Query struct {
	Table    string
	IDColumn string
	Columns  []string
	// Filters are extra equality conditions, e.g. a transaction type.
	Filters map[string]string
}

// Build renders the query for id. The id is rendered as a string literal
// with embedded quotes doubled.
func (q Query) Build(id string) (string, error) {
	if q.Table == "" {
		return "", fmt.Errorf("fallback: query has no table")
	}
	idCol := q.IDColumn
	if idCol == "" {
		idCol = "id"
	}

	cols := make([]interface{}, 0, len(q.Columns))
	for _, c := range q.Columns {
		cols = append(cols, goqu.L(c))
	}
	ds := goqu.From(goqu.L(q.Table)).Where(goqu.L(idCol).Eq(id))
	keys := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ds = ds.Where(goqu.L(k).Eq(q.Filters[k]))
	}
	if len(cols) > 0 {
		ds = ds.Select(cols...)
	}

	sql, _, err := ds.ToSQL()
	if err != nil {
		return "", fmt.Errorf("fallback: build query: %w", err)
	}
	return sql, nil
}

// MapFunc turns the first result row into an entity. now is the default for
// missing dates.
type MapFunc[E any] func(id string, row Row, now time.Time) E

type Resolver[E any] struct {
	runner     QueryRunner
	entityType string
	query      Query
	mapRow     MapFunc[E]
	now        func() time.Time
}

func NewResolver[E any](runner QueryRunner, entityType string, query Query, mapRow MapFunc[E]) *Resolver[E] {
	return &Resolver[E]{
		runner:     runner,
		entityType: entityType,
		query:      query,
		mapRow:     mapRow,
		now:        time.Now,
	}
}

// FetchDetailFallback runs the lookup for id. It fails with KindNotFound when
// no row matches and KindRemoteUnavailable when the query cannot be run;
// KindUnauthenticated passes through untouched.
func (r *Resolver[E]) FetchDetailFallback(ctx context.Context, id string) (E, error) {
	var zero E

	sql, err := r.query.Build(id)
	if err != nil {
		return zero, err
	}

	ctxzap.Extract(ctx).Debug("running fallback query",
		zap.String("entity_type", r.entityType),
		zap.String("id", id),
	)

	rows, err := r.runner.RunQuery(ctx, sql)
	if err != nil {
		if syncerr.KindOf(err) == syncerr.KindUnauthenticated {
			return zero, err
		}
		return zero, syncerr.New(syncerr.KindRemoteUnavailable, "fallback "+r.entityType, err)
	}
	if len(rows) == 0 {
		return zero, syncerr.Newf(syncerr.KindNotFound, "fallback "+r.entityType, "no row for id %s", id)
	}

	return r.mapRow(id, Row(rows[0]), r.now()), nil
}
