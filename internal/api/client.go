// Package api contains the transport clients for the Meridian platform
// REST API. Each domain client resolves its verbs to exactly one HTTP call,
// normalizes every failure into the shared Error shape, and receives the
// bearer token as an explicit per-call argument so concurrent actors can
// never race on shared client state.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/meridianhq/meridian-go/internal/metrics"
)

// maxResponseBytes caps response capture so a misbehaving server cannot
// exhaust memory.
const maxResponseBytes = 1 << 20

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures the shared transport core.
type Options struct {
	// HTTPClient overrides the underlying client; a sane default with a
	// timeout is used when nil.
	HTTPClient httpDoer
	Logger     *slog.Logger
	Metrics    *metrics.Recorder
	// ThrottleLimit and ThrottleWindow shape the advisory client-side
	// throttle (requests per rolling window, per domain client).
	ThrottleLimit  int
	ThrottleWindow time.Duration
	// OnThrottleWait is invoked with a human-facing hint whenever the
	// advisory throttle delays a call.
	OnThrottleWait func(domain string, wait time.Duration)
}

// Client is the transport core shared by the domain clients. It owns the
// base URL, request shaping, advisory throttling, and error normalization.
type Client struct {
	base    *url.URL
	hc      httpDoer
	log     *slog.Logger
	metrics *metrics.Recorder

	throttles map[string]*advisoryThrottle
}

// New constructs the transport core for the given API base URL.
func New(baseURL string, opts Options) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("api: parse base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("api: base url %q missing scheme or host", baseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	c := &Client{
		base:      parsed,
		hc:        hc,
		log:       log,
		metrics:   opts.Metrics,
		throttles: make(map[string]*advisoryThrottle),
	}
	onWait := func(domain string, wait time.Duration) {
		c.metrics.ObserveThrottleDelay(domain)
		if opts.OnThrottleWait != nil {
			opts.OnThrottleWait(domain, wait)
		}
	}
	for _, domain := range []string{domainAdmin, domainBlog, domainContact, domainService, domainServiceRequest} {
		c.throttles[domain] = newAdvisoryThrottle(opts.ThrottleLimit, opts.ThrottleWindow, log, onWait)
	}
	return c, nil
}

const (
	domainAdmin          = "admin"
	domainBlog           = "blog"
	domainContact        = "contact"
	domainService        = "services"
	domainServiceRequest = "service-request"
)

// listQuery renders list filter parameters onto a path.
func listQuery(path string, params ListParams) string {
	values := params.Values()
	if len(values) == 0 {
		return path
	}
	return path + "?" + values.Encode()
}

// ListParams are the common list filters accepted by every list endpoint.
type ListParams struct {
	Page   int
	Limit  int
	Search string
	Tag    string
	Status string
	Sort   string
}

// Values renders the populated filters as query parameters.
func (p ListParams) Values() url.Values {
	values := url.Values{}
	if p.Page > 0 {
		values.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		values.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Search != "" {
		values.Set("search", p.Search)
	}
	if p.Tag != "" {
		values.Set("tag", p.Tag)
	}
	if p.Status != "" {
		values.Set("status", p.Status)
	}
	if p.Sort != "" {
		values.Set("sort", p.Sort)
	}
	return values
}

// Map renders the populated filters as a plain map for cache key building.
func (p ListParams) Map() map[string]string {
	out := make(map[string]string)
	for key, vals := range p.Values() {
		out[key] = vals[0]
	}
	return out
}

// doJSON issues a JSON request and decodes the response into out when out
// is non-nil. The token is attached per call; empty tokens send the request
// unauthenticated and leave rejection to the server.
func (c *Client) doJSON(ctx context.Context, domain, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	return c.do(ctx, domain, method, path, token, "application/json", reader, out)
}

// Upload is a file attached to a multipart request.
type Upload struct {
	Field string
	Name  string
	Body  io.Reader
}

// doMultipart issues a multipart request carrying one file plus optional
// form fields. Asset endpoints switch content type per call this way.
func (c *Client) doMultipart(ctx context.Context, domain, method, path, token string, fields map[string]string, upload Upload, out any) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return fmt.Errorf("api: multipart field %s: %w", name, err)
		}
	}
	part, err := writer.CreateFormFile(upload.Field, upload.Name)
	if err != nil {
		return fmt.Errorf("api: multipart file: %w", err)
	}
	if _, err := io.Copy(part, upload.Body); err != nil {
		return fmt.Errorf("api: multipart copy: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("api: multipart close: %w", err)
	}
	return c.do(ctx, domain, method, path, token, writer.FormDataContentType(), &buf, out)
}

func (c *Client) do(ctx context.Context, domain, method, path, token, contentType string, body io.Reader, out any) error {
	throttle := c.throttles[domain]
	if throttle != nil {
		if err := throttle.acquire(ctx, domain); err != nil {
			return fmt.Errorf("api: throttle wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(domain, method+" "+path, 0, time.Since(start))
		c.log.Debug("request failed before response",
			slog.String("domain", domain),
			slog.String("method", method),
			slog.String("path", path),
			slog.Any("error", err))
		return networkError(err)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	closeErr := resp.Body.Close()
	c.metrics.ObserveRequest(domain, method+" "+path, resp.StatusCode, time.Since(start))
	if err != nil {
		return fmt.Errorf("api: read response: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("api: close response: %w", closeErr)
	}

	if resp.StatusCode >= 400 {
		apiErr := normalizeError(resp, payload)
		c.log.Debug("request rejected",
			slog.String("domain", domain),
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.String("kind", string(apiErr.Kind)))
		return apiErr
	}

	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}
