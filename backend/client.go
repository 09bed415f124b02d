// Package backend implements the upstream collaborators over the
// test-management REST API and over an offline snapshot file.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"reqtrace/cache"
	"reqtrace/core"
	"reqtrace/metrics"
)

// Defaults
const (
	DefaultAPIVersion        = "7.1"
	DefaultTimeout           = 30 * time.Second
	DefaultRequestsPerSecond = 20
	DefaultBurst             = 20
	DefaultMaxRetries        = 3

	// maxIDsPerRequest is the backend's limit on ids per work item batch
	maxIDsPerRequest = 200
	maxResponseBytes = 64 << 20

	continuationHeader = "x-ms-continuationtoken"
)

// Endpoint labels used in logs and metrics
const (
	EndpointWorkItems  = "workitems"
	EndpointRevision   = "revision"
	EndpointRunResult  = "run_result"
	EndpointSuites     = "suites"
	EndpointTestPoints = "test_points"
	EndpointWIQL       = "wiql"
)

// Options configures a Client.
type Options struct {
	BaseURL      string
	Organization string
	Project      string
	Token        string
	APIVersion   string

	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int

	// BreakerFailures consecutive transient failures open the circuit for BreakerCooldown
	BreakerFailures int
	BreakerCooldown time.Duration

	CacheSize int
	CacheTTL  time.Duration

	// StepsField is the field holding the steps XML; defaults to Microsoft.VSTS.TCM.Steps
	StepsField string

	// HTTPClient overrides the transport; Timeout is ignored when set
	HTTPClient *http.Client
}

type itemKey struct {
	id        int
	relations bool
}

type stepsKey struct {
	id       int
	revision int
}

// Client talks to the test-management backend. It is safe for concurrent use
// and implements core.Backend.
type Client struct {
	opts    Options
	root    string
	http    *http.Client
	limiter *rate.Limiter
	retry   RetryConfig
	breaker *breaker
	logger  *zap.SugaredLogger

	items *cache.TTL[itemKey, core.WorkItem]
	steps *cache.TTL[stepsKey, core.StepsPayload]
}

var _ core.Backend = (*Client)(nil)

// NewClient creates a Client.
func NewClient(opts Options, logger *zap.SugaredLogger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend base URL %q", opts.BaseURL)
	}

	if opts.APIVersion == "" {
		opts.APIVersion = DefaultAPIVersion
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if opts.Burst <= 0 {
		opts.Burst = DefaultBurst
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.StepsField == "" {
		opts.StepsField = core.FieldSteps
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	root := base.String()
	for _, seg := range []string{opts.Organization, opts.Project} {
		if seg = strings.Trim(seg, "/"); seg != "" {
			root += "/" + url.PathEscape(seg)
		}
	}

	retry := DefaultRetryConfig()
	retry.MaxAttempts = opts.MaxRetries
	retry.Logger = logger

	return &Client{
		opts:    opts,
		root:    root + "/_apis/",
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		retry:   retry,
		breaker: newBreaker(opts.BreakerFailures, opts.BreakerCooldown),
		logger:  logger,
		items:   cache.NewTTL[itemKey, core.WorkItem](opts.CacheSize, opts.CacheTTL),
		steps:   cache.NewTTL[stepsKey, core.StepsPayload](opts.CacheSize, opts.CacheTTL),
	}, nil
}

// BreakerState reports the upstream circuit breaker state.
func (c *Client) BreakerState() BreakerState {
	return c.breaker.State()
}

// ClearCache drops every cached work item and steps payload.
func (c *Client) ClearCache() {
	c.items.Clear()
	c.steps.Clear()
}

type response struct {
	body   []byte
	header http.Header
}

// do sends one request with throttling and retries. A non-2xx answer becomes a *StatusError.
func (c *Client) do(ctx context.Context, method, endpoint, path string, query url.Values, payload interface{}) (*response, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api-version", c.opts.APIVersion)
	target := c.root + path + "?" + query.Encode()

	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", endpoint, err)
		}
	}

	if err := c.breaker.allow(); err != nil {
		metrics.UpstreamRequests.WithLabelValues(endpoint, "breaker_open").Inc()
		return nil, err
	}

	var resp *response
	err := ExecuteWithRetry(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		r, err := c.send(ctx, method, endpoint, target, body)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}, c.retry)
	if oldState, newState := c.breaker.record(err); oldState != newState {
		c.logger.Warnw("Backend circuit breaker changed state",
			"endpoint", endpoint,
			"from", oldState,
			"to", newState)
		if newState == BreakerOpen {
			metrics.BreakerTrips.Inc()
		}
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, endpoint, target string, body []byte) (*response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.opts.Token != "" {
		req.SetBasicAuth("", c.opts.Token)
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("%w: %s %s: %w", core.ErrUpstream, method, endpoint, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	metrics.UpstreamRequests.WithLabelValues(endpoint, strconv.Itoa(res.StatusCode)).Inc()
	c.logger.Debugw("Upstream request",
		"method", method,
		"endpoint", endpoint,
		"status", res.StatusCode,
		"duration", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s response: %v", core.ErrUpstream, endpoint, err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		statusErr := newStatusError(method, endpoint, res.StatusCode, data)
		statusErr.RetryAfter = parseRetryAfter(res.Header, time.Now())
		return nil, statusErr
	}
	return &response{body: data, header: res.Header}, nil
}

// pages follows continuation tokens, handing each page's value array to fn.
func (c *Client) pages(ctx context.Context, endpoint, path string, query url.Values, fn func(json.RawMessage) error) error {
	token := ""
	for {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		if token != "" {
			q.Set("continuationToken", token)
		}

		resp, err := c.do(ctx, http.MethodGet, endpoint, path, q, nil)
		if err != nil {
			return err
		}
		var env listEnvelope
		if len(bytes.TrimSpace(resp.body)) > 0 {
			if err := json.Unmarshal(resp.body, &env); err != nil {
				return fmt.Errorf("%w: %s: %v", core.ErrMalformedPayload, endpoint, err)
			}
		}
		for _, raw := range env.Value {
			if err := fn(raw); err != nil {
				return err
			}
		}

		next := resp.header.Get(continuationHeader)
		if next == "" || next == token {
			return nil
		}
		token = next
	}
}
