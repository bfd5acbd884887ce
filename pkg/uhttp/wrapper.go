package uhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/ratelimit"
	"golang.org/x/oauth2"

	ratelimitdata "github.com/fieldpay/recordsync/pkg/ratelimit"
	"github.com/fieldpay/recordsync/pkg/syncerr"
)

const maxErrorBodyBytes = 4096

type (
	HttpClient interface {
		HttpClient() *http.Client
		Do(req *http.Request, options ...DoOption) (*http.Response, error)
		NewRequest(ctx context.Context, method string, url *url.URL, options ...RequestOption) (*http.Request, error)
	}
	BaseHttpClient struct {
		httpClient     *http.Client
		rateLimiter    ratelimit.Limiter
		debugPrintBody bool
	}

	DoOption      func(*http.Response) error
	RequestOption func() (io.ReadWriter, map[string]string, error)

	WrapperOption interface {
		Apply(*BaseHttpClient)
	}
)

var _ HttpClient = (*BaseHttpClient)(nil)

type rateLimitOption struct {
	perSecond int
}

func (o rateLimitOption) Apply(c *BaseHttpClient) {
	if o.perSecond > 0 {
		c.rateLimiter = ratelimit.New(o.perSecond)
	}
}

// WithRateLimit caps outgoing requests per second. Zero leaves the client
// unthrottled.
func WithRateLimit(perSecond int) WrapperOption {
	return rateLimitOption{perSecond: perSecond}
}

// NewClient returns an *http.Client whose every request is bounded by timeout.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func NewBaseHttpClient(httpClient *http.Client, opts ...WrapperOption) *BaseHttpClient {
	if httpClient == nil {
		httpClient = NewClient(0)
	}
	c := &BaseHttpClient{
		httpClient:  httpClient,
		rateLimiter: ratelimit.NewUnlimited(),
	}
	for _, o := range opts {
		o.Apply(c)
	}
	return c
}

func (c *BaseHttpClient) HttpClient() *http.Client {
	return c.httpClient
}

// WithJSONResponse decodes a JSON body into response, transparently
// inflating gzip bodies.
func WithJSONResponse(response interface{}) DoOption {
	return func(resp *http.Response) error {
		defer resp.Body.Close()

		if ct := resp.Header.Get("Content-Type"); ct != "" && !IsJSONContentType(ct) && !isPlainText(ct) {
			return syncerr.Newf(syncerr.KindRemoteUnavailable, "decode", "unexpected content type %q", ct)
		}

		var body io.Reader = resp.Body
		if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
			zr, err := gzip.NewReader(resp.Body)
			if err != nil {
				return syncerr.New(syncerr.KindRemoteUnavailable, "decode", err)
			}
			defer zr.Close()
			body = zr
		}

		if err := json.NewDecoder(body).Decode(response); err != nil {
			return syncerr.New(syncerr.KindRemoteUnavailable, "decode", err)
		}
		return nil
	}
}

// Do sends req and, for 2xx responses, runs options over the response.
// Non-2xx statuses and transport failures come back as *syncerr.Error.
func (c *BaseHttpClient) Do(req *http.Request, options ...DoOption) (*http.Response, error) {
	c.rateLimiter.Take()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, syncerr.New(syncerr.KindRemoteUnavailable, req.Method+" "+req.URL.Path, err)
	}

	if c.debugPrintBody {
		resp.Body = struct {
			io.Reader
			io.Closer
		}{wrapPrintBody(resp.Body), resp.Body}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, statusError(req, resp)
	}

	for _, option := range options {
		if err := option(resp); err != nil {
			return resp, err
		}
	}

	return resp, nil
}

func statusError(req *http.Request, resp *http.Response) error {
	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	op := req.Method + " " + req.URL.Path
	cause := fmt.Errorf("unexpected status code: %d: %s", resp.StatusCode, bytes.TrimSpace(msg))

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return syncerr.New(syncerr.KindUnauthenticated, op, cause)
	case resp.StatusCode == http.StatusNotFound:
		return syncerr.New(syncerr.KindNotFound, op, cause)
	case resp.StatusCode == http.StatusTooManyRequests:
		e := syncerr.New(syncerr.KindRemoteUnavailable, op, cause)
		if rl, err := ratelimitdata.ExtractRateLimitData(resp.StatusCode, &resp.Header); err == nil && rl != nil {
			e.RetryAfter = rl.Wait()
		}
		return e
	default:
		return syncerr.New(syncerr.KindRemoteUnavailable, op, cause)
	}
}

func WithJSONBody(body interface{}) RequestOption {
	return func() (io.ReadWriter, map[string]string, error) {
		buffer := new(bytes.Buffer)
		err := json.NewEncoder(buffer).Encode(body)
		if err != nil {
			return nil, nil, err
		}

		_, headers, err := WithContentTypeJSONHeader()()
		if err != nil {
			return nil, nil, err
		}

		return buffer, headers, nil
	}
}

func WithAcceptJSONHeader() RequestOption {
	return WithHeader("Accept", "application/json")
}

func WithContentTypeJSONHeader() RequestOption {
	return WithHeader("Content-Type", "application/json")
}

// WithAcceptGzip asks for compressed responses. WithJSONResponse inflates
// them.
func WithAcceptGzip() RequestOption {
	return WithHeader("Accept-Encoding", "gzip")
}

func WithHeader(key, value string) RequestOption {
	return func() (io.ReadWriter, map[string]string, error) {
		return nil, map[string]string{key: value}, nil
	}
}

func WithBearerToken(token *oauth2.Token) RequestOption {
	return func() (io.ReadWriter, map[string]string, error) {
		if token == nil || token.AccessToken == "" {
			return nil, nil, syncerr.Newf(syncerr.KindUnauthenticated, "request", "no access token")
		}
		return nil, map[string]string{
			"Authorization": token.Type() + " " + token.AccessToken,
		}, nil
	}
}

func (c *BaseHttpClient) NewRequest(ctx context.Context, method string, url *url.URL, options ...RequestOption) (*http.Request, error) {
	var buffer io.ReadWriter
	headers := make(map[string]string)
	for _, option := range options {
		buf, h, err := option()
		if err != nil {
			return nil, err
		}

		if buf != nil {
			buffer = buf
		}

		for k, v := range h {
			headers[k] = v
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url.String(), buffer)
	if err != nil {
		return nil, err
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req, nil
}
