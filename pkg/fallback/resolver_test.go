package fallback

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fieldpay/recordsync/pkg/syncerr"
)

type fakeRunner struct {
	rows    []map[string]string
	err     error
	queries []string
}

func (f *fakeRunner) RunQuery(_ context.Context, query string) ([]map[string]string, error) {
	f.queries = append(f.queries, query)
	return f.rows, f.err
}

type partial struct {
	ID      string
	Name    string
	Balance float64
	Created time.Time
}

var testQuery = Query{
	Table:   "customer",
	Columns: []string{"id", "companyname", "balance", "datecreated"},
}

func mapPartial(id string, row Row, now time.Time) partial {
	return partial{
		ID:      id,
		Name:    row.String(fmt.Sprintf("Customer %s", id), "companyname", "expr1"),
		Balance: row.Float("balance"),
		Created: row.Time(now, "datecreated"),
	}
}

func TestBuildEscapesQuotes(t *testing.T) {
	sql, err := testQuery.Build("x' OR '1'='1")
	require.NoError(t, err)
	require.Contains(t, sql, "FROM customer")
	require.Contains(t, sql, "SELECT id, companyname, balance, datecreated")
	require.Contains(t, sql, "'x'' OR ''1''=''1'")
	require.NotContains(t, sql, "= 'x' OR")
}

func TestBuildWithFilters(t *testing.T) {
	q := Query{
		Table:   "transaction",
		Columns: []string{"id", "tranid"},
		Filters: map[string]string{"type": "CustInvc"},
	}
	sql, err := q.Build("9")
	require.NoError(t, err)
	require.Contains(t, sql, "'CustInvc'")
	require.Contains(t, sql, "'9'")
}

func TestBuildRequiresTable(t *testing.T) {
	_, err := Query{}.Build("1")
	require.Error(t, err)
}

func TestFetchDetailFallback(t *testing.T) {
	runner := &fakeRunner{rows: []map[string]string{
		{"id": "7", "CompanyName": "Acme", "balance": "1,204.50", "datecreated": "3/14/2024"},
		{"id": "8", "CompanyName": "ignored"},
	}}
	r := NewResolver[partial](runner, "customer", testQuery, mapPartial)

	got, err := r.FetchDetailFallback(context.Background(), "7")
	require.NoError(t, err)
	require.Equal(t, "Acme", got.Name)
	require.Equal(t, 1204.50, got.Balance)
	require.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), got.Created)
	require.Len(t, runner.queries, 1)
	require.Contains(t, runner.queries[0], "'7'")
}

func TestFetchDetailFallbackDefaults(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	runner := &fakeRunner{rows: []map[string]string{{"balance": "n/a", "datecreated": "yesterday"}}}
	r := NewResolver[partial](runner, "customer", testQuery, mapPartial)
	r.now = func() time.Time { return now }

	got, err := r.FetchDetailFallback(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, partial{ID: "42", Name: "Customer 42", Balance: 0, Created: now}, got)
}

func TestFetchDetailFallbackNoRows(t *testing.T) {
	r := NewResolver[partial](&fakeRunner{}, "customer", testQuery, mapPartial)
	_, err := r.FetchDetailFallback(context.Background(), "1")
	require.ErrorIs(t, err, syncerr.ErrNotFound)
}

func TestFetchDetailFallbackTransportError(t *testing.T) {
	r := NewResolver[partial](&fakeRunner{err: errors.New("dial tcp: refused")}, "customer", testQuery, mapPartial)
	_, err := r.FetchDetailFallback(context.Background(), "1")
	require.ErrorIs(t, err, syncerr.ErrRemoteUnavailable)

	r = NewResolver[partial](&fakeRunner{err: syncerr.ErrUnauthenticated}, "customer", testQuery, mapPartial)
	_, err = r.FetchDetailFallback(context.Background(), "1")
	require.ErrorIs(t, err, syncerr.ErrUnauthenticated)
}

func TestRowLookups(t *testing.T) {
	now := time.Now()
	row := Row{"EXPR1": "Widget", "amount": " $15.5 ", "when": "2024-05-06T07:08:09Z", "blank": "  "}

	require.Equal(t, "Widget", row.String("def", "name", "expr1"))
	require.Equal(t, "def", row.String("def", "blank"))
	require.Equal(t, 15.5, row.Float("amount"))
	require.Equal(t, 0.0, row.Float("missing"))
	for _, v := range []string{"NaN", "Inf", "-inf", "+Infinity"} {
		require.Equal(t, 0.0, Row{"amount": v}.Float("amount"), v)
	}
	require.Equal(t, time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC), row.Time(now, "when"))
	require.Equal(t, now, row.Time(now, "blank"))
}
