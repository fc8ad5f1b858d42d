package transport

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/guonaihong/gout"
	jsoniter "github.com/json-iterator/go"
	"github.com/leosozza/evowhats/internal/domain"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultRetries = 2
	DefaultBackoff = 500 * time.Millisecond
	DefaultTimeout = 15 * time.Second
)

var retriablePattern = regexp.MustCompile(`(?i)network|timeout|timed out|deadline exceeded|connection refused|connection reset|broken pipe|EOF|no such host|fetch failed|\b5\d\d\b`)

// Config for a Client. Zero values fall back to the package defaults except
// Retries, where 0 means a single attempt.
type Config struct {
	BaseURL string
	APIKey  string
	Headers map[string]string
	Retries int
	Backoff time.Duration
	Timeout time.Duration
}

// Request is one logical call. Method defaults to POST.
type Request struct {
	Path    string
	Method  string
	Headers map[string]string
	Query   map[string]string
	Body    interface{}
	Timeout time.Duration
	Bearer  string
}

// Client executes requests with per-attempt timeout and linear backoff.
type Client struct {
	cfg      Config
	http     *http.Client
	observer Observer
	sleep    func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

func WithObserver(o Observer) Option {
	return func(c *Client) {
		if o != nil {
			c.observer = o
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithSleep replaces the backoff wait, mostly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

func New(cfg Config, opts ...Option) *Client {
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &Client{
		cfg:      cfg,
		http:     &http.Client{},
		observer: NopObserver{},
		sleep:    waitWithContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Config() Config { return c.cfg }

// Do runs req until it succeeds, fails with a non-retriable error, or the
// retry budget is spent. It never panics on expected failures.
func (c *Client) Do(ctx context.Context, req Request) (res Result) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodPost
	}
	url := c.url(req.Path)

	var payload []byte
	if req.Body != nil {
		var err error
		if payload, err = json.Marshal(req.Body); err != nil {
			return Result{Err: domain.WrapError(domain.KindInvalidInput, "transport.encode", err)}
		}
	}
	headers := c.headers(req)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}

	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.cfg.Backoff*time.Duration(attempt-1)); err != nil {
				res.Err = callerError(req.Path, err)
				return res
			}
		}
		start := time.Now()
		body, code, err := c.once(ctx, method, url, headers, req.Query, payload, timeout)
		latency := time.Since(start)

		res = Result{Body: body, StatusCode: code, Attempts: attempt}
		retriable := false
		if err == nil && code >= 300 {
			err = statusError(code, body)
		}
		if err != nil {
			if ctx.Err() != nil {
				res.Err = callerError(req.Path, ctx.Err())
			} else {
				retriable = IsRetriable(code, err)
				res.Err = &domain.Error{
					Kind:       domain.KindTransportFailure,
					Op:         req.Path,
					Message:    err.Error(),
					StatusCode: code,
					Err:        err,
				}
			}
		}
		notify(c.observer, Attempt{
			Path:       req.Path,
			Method:     method,
			Number:     attempt,
			StatusCode: code,
			Latency:    latency,
			Err:        res.Err,
			Retriable:  retriable,
			At:         start,
		})
		if res.Err == nil || !retriable || attempt > c.cfg.Retries {
			return res
		}
	}
}

func (c *Client) once(ctx context.Context, method, url string, headers, query map[string]string, payload []byte, timeout time.Duration) (body []byte, code int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g := gout.New(c.http)
	var flow = g.POST(url)
	switch method {
	case http.MethodGet:
		flow = g.GET(url)
	case http.MethodPut:
		flow = g.PUT(url)
	case http.MethodPatch:
		flow = g.PATCH(url)
	case http.MethodDelete:
		flow = g.DELETE(url)
	}
	flow = flow.WithContext(actx)
	if len(headers) > 0 {
		h := gout.H{}
		for k, v := range headers {
			h[k] = v
		}
		flow = flow.SetHeader(h)
	}
	if len(query) > 0 {
		q := gout.H{}
		for k, v := range query {
			q[k] = v
		}
		flow = flow.SetQuery(q)
	}
	if payload != nil {
		flow = flow.SetBody(payload)
	}
	var raw string
	err = flow.BindBody(&raw).Code(&code).Do()
	if err != nil {
		if actx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			err = errors.Wrapf(err, "request timed out after %s", timeout)
		}
		return nil, code, err
	}
	return []byte(raw), code, nil
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	if base == "" {
		return path
	}
	return base + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) headers(req Request) map[string]string {
	h := map[string]string{"Content-Type": "application/json", "Accept": "application/json"}
	for k, v := range c.cfg.Headers {
		h[k] = v
	}
	if c.cfg.APIKey != "" {
		h["apikey"] = c.cfg.APIKey
		h["Authorization"] = "Bearer " + c.cfg.APIKey
	}
	for k, v := range req.Headers {
		h[k] = v
	}
	if req.Bearer != "" {
		h["Authorization"] = "Bearer " + req.Bearer
	}
	return h
}

// IsRetriable classifies a failed attempt.
func IsRetriable(status int, err error) bool {
	if status >= 500 {
		return true
	}
	if status >= 400 {
		return false
	}
	if err == nil {
		return false
	}
	return retriablePattern.MatchString(err.Error())
}

func statusError(code int, body []byte) error {
	msg := http.StatusText(code)
	var payload map[string]interface{}
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		for _, key := range []string{"error", "message"} {
			if v, ok := payload[key].(string); ok && v != "" {
				msg = v
				break
			}
		}
	}
	return fmt.Errorf("http %d: %s", code, msg)
}

func callerError(op string, err error) error {
	kind := domain.KindCancelled
	if errors.Is(err, context.DeadlineExceeded) {
		kind = domain.KindTimedOut
	}
	return &domain.Error{Kind: kind, Op: op, Message: err.Error(), Err: err}
}

func waitWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
