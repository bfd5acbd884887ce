// Package remote talks to the record system's REST API: paged list
// endpoints, per-record detail endpoints, and the ad hoc query endpoint.
package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/fieldpay/recordsync/pkg/auth"
	"github.com/fieldpay/recordsync/pkg/uhttp"
)

const (
	recordPath = "/services/rest/record/v1"
	queryPath  = "/services/rest/query/v1/suiteql"
)

// BaseURLForAccount derives the REST host for an account id. Sandbox ids
// such as "123456_SB1" become "123456-sb1".
func BaseURLForAccount(accountID string) string {
	host := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(accountID), "_", "-"))
	return fmt.Sprintf("https://%s.suitetalk.api.netsuite.com", host)
}

type Client struct {
	http    uhttp.HttpClient
	baseURL *url.URL
	tokens  auth.TokenProvider
}

func NewClient(baseURL string, tokens auth.TokenProvider, httpClient uhttp.HttpClient) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: invalid base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("remote: base url %q must be absolute", baseURL)
	}
	if tokens == nil {
		return nil, fmt.Errorf("remote: a token provider is required")
	}
	if httpClient == nil {
		httpClient = uhttp.NewBaseHttpClient(nil)
	}
	return &Client{http: httpClient, baseURL: u, tokens: tokens}, nil
}

type listResponse struct {
	Items        []Record `json:"items"`
	Count        int      `json:"count"`
	HasMore      bool     `json:"hasMore"`
	Offset       int      `json:"offset"`
	TotalResults int      `json:"totalResults"`
}

type queryResponse struct {
	Items []map[string]any `json:"items"`
}

// endpoint resolves an already escaped path against the base URL.
func (c *Client) endpoint(path string, query url.Values) *url.URL {
	u := *c.baseURL
	u.RawPath = c.baseURL.EscapedPath() + path
	u.Path, _ = url.PathUnescape(u.RawPath)
	u.RawQuery = query.Encode()
	return &u
}

func (c *Client) do(ctx context.Context, method string, u *url.URL, out any, opts ...uhttp.RequestOption) error {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	opts = append(opts, uhttp.WithBearerToken(tok), uhttp.WithAcceptJSONHeader(), uhttp.WithAcceptGzip())
	req, err := c.http.NewRequest(ctx, method, u, opts...)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req, uhttp.WithJSONResponse(out))
	if resp != nil {
		ctxzap.Extract(ctx).Debug("remote request",
			zap.String("method", method),
			zap.String("path", u.Path),
			zap.Int("status", resp.StatusCode),
		)
	}
	return err
}

// FetchPage lists one window of abbreviated records of recordType. filter is
// passed through as the q parameter when non-empty.
func (c *Client) FetchPage(ctx context.Context, recordType string, offset, limit int, filter string) ([]Record, int, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	if filter != "" {
		q.Set("q", filter)
	}

	var out listResponse
	if err := c.do(ctx, http.MethodGet, c.endpoint(recordPath+"/"+url.PathEscape(recordType), q), &out); err != nil {
		return nil, 0, err
	}
	return out.Items, len(out.Items), nil
}

// FetchDetail fetches the full record of recordType with the given id.
func (c *Client) FetchDetail(ctx context.Context, recordType string, id string) (Record, error) {
	var out Record
	path := recordPath + "/" + url.PathEscape(recordType) + "/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodGet, c.endpoint(path, nil), &out); err != nil {
		return Record{}, err
	}
	return out, nil
}

// RunQuery executes an ad hoc query and returns its rows with every value
// rendered as a string. Null columns are omitted.
func (c *Client) RunQuery(ctx context.Context, query string) ([]map[string]string, error) {
	var out queryResponse
	err := c.do(ctx, http.MethodPost, c.endpoint(queryPath, nil), &out,
		uhttp.WithJSONBody(map[string]string{"q": query}),
		uhttp.WithHeader("Prefer", "transient"),
	)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]string, 0, len(out.Items))
	for _, item := range out.Items {
		row := make(map[string]string, len(item))
		for k, v := range item {
			switch tv := v.(type) {
			case nil:
				continue
			case string:
				row[k] = tv
			case float64:
				row[k] = strconv.FormatFloat(tv, 'f', -1, 64)
			case bool:
				row[k] = strconv.FormatBool(tv)
			default:
				row[k] = fmt.Sprint(tv)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
