package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fieldpay/recordsync/pkg/auth"
	"github.com/fieldpay/recordsync/pkg/syncerr"
	"github.com/fieldpay/recordsync/pkg/uhttp"
)

func newTestClient(t *testing.T, h http.HandlerFunc, session *auth.Session) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, session, uhttp.NewBaseHttpClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/vnd.oracle.resource+json; type=collection")
	_, _ = io.WriteString(w, body)
}

func TestBaseURLForAccount(t *testing.T) {
	require.Equal(t, "https://123456-sb1.suitetalk.api.netsuite.com", BaseURLForAccount(" 123456_SB1 "))
}

func TestFetchPage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/services/rest/record/v1/customer", r.URL.Path)
		require.Equal(t, "2", r.URL.Query().Get("limit"))
		require.Equal(t, "4", r.URL.Query().Get("offset"))
		require.Equal(t, `companyName CONTAIN "Acme"`, r.URL.Query().Get("q"))
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		writeJSON(w, `{"items":[{"id":"10"},{"id":"11"}],"count":2,"hasMore":true,"offset":4,"totalResults":9}`)
	}, auth.NewStaticSession("secret"))

	rows, n, err := c.FetchPage(context.Background(), "customer", 4, 2, `companyName CONTAIN "Acme"`)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, "10", rows[0].ID())
	require.Equal(t, "11", rows[1].ID())
}

func TestFetchDetail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/services/rest/record/v1/invoice/77", r.URL.Path)
		writeJSON(w, `{"id":"77","tranId":"INV-77","entity":{"id":"5","refName":"Acme Corp"},"total":120.5}`)
	}, auth.NewStaticSession("secret"))

	rec, err := c.FetchDetail(context.Background(), "invoice", "77")
	require.NoError(t, err)
	require.Equal(t, "77", rec.ID())
	require.Equal(t, "Acme Corp", rec.Get("entity.refName").String())
	require.Equal(t, 120.5, rec.Get("total").Float())
	require.Equal(t, "INV-77", rec.First("missing", "tranId").String())
}

func TestFetchDetailEscapesID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/services/rest/record/v1/invoice/..%2F77%3Fexpand", r.URL.EscapedPath())
		require.Empty(t, r.URL.RawQuery)
		writeJSON(w, `{"id":"../77?expand"}`)
	}, auth.NewStaticSession("secret"))

	rec, err := c.FetchDetail(context.Background(), "invoice", "../77?expand")
	require.NoError(t, err)
	require.Equal(t, "../77?expand", rec.ID())
}

func TestFetchDetailNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, auth.NewStaticSession("secret"))

	_, err := c.FetchDetail(context.Background(), "salesorder", "1")
	require.ErrorIs(t, err, syncerr.ErrNotFound)
}

func TestRunQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/services/rest/query/v1/suiteql", r.URL.Path)
		require.Equal(t, "transient", r.Header.Get("Prefer"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "SELECT id FROM customer", body["q"])

		writeJSON(w, `{"items":[{"id":"5","balance":12.25,"isinactive":false,"email":null,"links":[]}]}`)
	}, auth.NewStaticSession("secret"))

	rows, err := c.RunQuery(context.Background(), "SELECT id FROM customer")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "5", rows[0]["id"])
	require.Equal(t, "12.25", rows[0]["balance"])
	require.Equal(t, "false", rows[0]["isinactive"])
	require.NotContains(t, rows[0], "email")
}

func TestUnauthenticatedSkipsNetwork(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, auth.NewSession())

	_, _, err := c.FetchPage(context.Background(), "customer", 0, 10, "")
	require.ErrorIs(t, err, syncerr.ErrUnauthenticated)
	require.False(t, called)
}

func TestRejectedToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, auth.NewStaticSession("expired"))

	_, err := c.FetchDetail(context.Background(), "customer", "1")
	require.ErrorIs(t, err, syncerr.ErrUnauthenticated)
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient("not a url", auth.NewSession(), nil)
	require.Error(t, err)

	_, err = NewClient("https://example.com", nil, nil)
	require.Error(t, err)
}
