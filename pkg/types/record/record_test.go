package record

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/fieldpay/recordsync/pkg/fallback"
	"github.com/fieldpay/recordsync/pkg/remote"
	"github.com/fieldpay/recordsync/pkg/syncerr"
)

func TestCustomerFromSummaryUsesPlaceholder(t *testing.T) {
	c, err := CustomerType.FromSummary(remote.NewRecord([]byte(`{"id":"42","links":[]}`)))
	require.NoError(t, err)
	require.Equal(t, "42", c.ID())
	require.Equal(t, "Customer 42", c.CompanyName)
	require.Equal(t, SourceSummary, c.Source())
}

func TestSummaryWithoutIDIsRejected(t *testing.T) {
	_, err := InvoiceType.FromSummary(remote.NewRecord([]byte(`{"links":[]}`)))
	require.ErrorIs(t, err, syncerr.ErrNotFound)
}

func TestCustomerFromDetail(t *testing.T) {
	raw := `{
		"id": "7",
		"entityId": "CUST-7",
		"firstName": "Ada",
		"lastName": "Lovelace",
		"email": "ada@example.com",
		"phone": "555-0100",
		"balance": 120.5,
		"dateCreated": "2024-02-03T04:05:06Z"
	}`
	got, err := CustomerType.FromDetail(remote.NewRecord([]byte(raw)))
	require.NoError(t, err)

	want := Customer{
		Id:          "7",
		EntityID:    "CUST-7",
		CompanyName: "Ada Lovelace",
		Email:       "ada@example.com",
		Phone:       "555-0100",
		Balance:     120.5,
		DateCreated: time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC),
		From:        SourceDetail,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("customer mismatch (-want +got):\n%s", diff)
	}
}

func TestInvoiceFromDetail(t *testing.T) {
	raw := `{
		"id": "1001",
		"tranId": "INV-1001",
		"entity": {"id": "7", "refName": "Acme Corp"},
		"status": {"id": "A", "refName": "Open"},
		"total": 250,
		"amountRemaining": 100.25,
		"tranDate": "2024-03-01",
		"dueDate": "2024-03-31"
	}`
	got, err := InvoiceType.FromDetail(remote.NewRecord([]byte(raw)))
	require.NoError(t, err)

	want := Invoice{
		Id:              "1001",
		TranID:          "INV-1001",
		CustomerName:    "Acme Corp",
		Status:          "Open",
		Total:           250,
		AmountRemaining: 100.25,
		TranDate:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		DueDate:         time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		From:            SourceDetail,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("invoice mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, []string{"INV-1001", "Acme Corp", "Open"}, got.SearchFields())
}

func TestSalesOrderFromFallbackDefaults(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	got := SalesOrderType.FromFallback("55", fallback.Row{
		"tranid":       "",
		"customername": "Globex",
		"foreigntotal": "1,000.00",
	}, now)

	require.Equal(t, "Sales Order 55", got.TranID)
	require.Equal(t, "Globex", got.CustomerName)
	require.Equal(t, 1000.0, got.Total)
	require.Equal(t, now, got.TranDate)
	require.Equal(t, SourceFallback, got.Source())
}

func TestCustomerFromFallbackBuildsName(t *testing.T) {
	got := CustomerType.FromFallback("8", fallback.Row{
		"FIRSTNAME": "Grace",
		"lastname":  "Hopper",
		"balance":   "$12.00",
	}, time.Time{})
	require.Equal(t, "Grace Hopper", got.CompanyName)
	require.Equal(t, 12.0, got.Balance)
}

func TestFallbackQueriesBuild(t *testing.T) {
	for _, q := range []fallback.Query{CustomerType.Fallback, InvoiceType.Fallback, SalesOrderType.Fallback} {
		sql, err := q.Build("1")
		require.NoError(t, err)
		require.Contains(t, sql, "'1'")
	}
}

func TestSourceMarshalsAsText(t *testing.T) {
	b, err := json.Marshal(Invoice{Id: "1", From: SourceFallback})
	require.NoError(t, err)
	require.Contains(t, string(b), `"source":"fallback"`)
}
