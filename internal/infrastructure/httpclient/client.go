// Package httpclient is the fasthttp transport shared by every upstream adapter.
// It turns transport failures and HTTP statuses into classified entity errors.
package httpclient

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"portfolio_aggregator/internal/domain/entity"
	"portfolio_aggregator/internal/pkg/metrics"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxLoggedBody = 512

// Request describes one upstream call.
type Request struct {
	Method  string
	URL     string
	Query   map[string]string
	Headers map[string]string
	// Body is encoded as JSON when non-nil.
	Body any
}

// Client performs requests against a single upstream.
type Client struct {
	client   *fasthttp.Client
	provider entity.ProviderName
	timeout  time.Duration
	logger   *zap.Logger
	tracer   trace.Tracer
	secrets  []string
}

// Option customises a Client.
type Option func(*Client)

// WithDial replaces the dialer, e.g. with an in-memory listener.
func WithDial(dial fasthttp.DialFunc) Option {
	return func(c *Client) { c.client.Dial = dial }
}

// WithTracer records a span per request.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) { c.tracer = tracer }
}

// WithSecret masks s wherever it appears in logged URLs.
func WithSecret(s string) Option {
	return func(c *Client) {
		if s != "" {
			c.secrets = append(c.secrets, s)
		}
	}
}

// New creates a Client for provider. timeout bounds every single request.
func New(provider entity.ProviderName, timeout time.Duration, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		client: &fasthttp.Client{
			Name:                "portfolio-aggregator",
			MaxIdleConnDuration: 90 * time.Second,
		},
		provider: provider,
		timeout:  timeout,
		logger:   logger.Named("HTTPClient").With(zap.String("provider", string(provider))),
		tracer:   noop.NewTracerProvider().Tracer("httpclient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the upstream this client talks to.
func (c *Client) Provider() entity.ProviderName { return c.provider }

// Do executes r and returns the body of a 2xx response.
func (c *Client) Do(ctx context.Context, r Request) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	method := r.Method
	if method == "" {
		method = fasthttp.MethodGet
	}

	ctx, span := c.tracer.Start(ctx, "upstream.request", trace.WithAttributes(
		attribute.String("upstream.provider", string(c.provider)),
		attribute.String("http.method", method),
	))
	defer span.End()

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(r.URL)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	for k, v := range r.Query {
		req.URI().QueryArgs().Set(k, v)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if r.Body != nil {
		payload, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBodyRaw(payload)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	start := time.Now()
	err := c.client.DoDeadline(req, resp, deadline)
	metrics.UpstreamLatency.WithLabelValues(string(c.provider)).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(string(c.provider), "transport_error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		c.logger.Warn("Upstream request failed", zap.String("url", c.redact(req)), zap.Error(err))
		return nil, entity.NewTransportError(c.provider, 0, err)
	}

	status := resp.StatusCode()
	span.SetAttributes(attribute.Int("http.status_code", status))
	body := append([]byte(nil), resp.Body()...)
	metrics.UpstreamRequests.WithLabelValues(string(c.provider), strconv.Itoa(status)).Inc()

	if status >= 200 && status < 300 {
		c.logger.Debug("Upstream request succeeded",
			zap.String("url", c.redact(req)),
			zap.Int("statusCode", status),
			zap.Duration("elapsed", time.Since(start)))
		return body, nil
	}

	span.SetStatus(codes.Error, "status "+strconv.Itoa(status))
	c.logger.Warn("Upstream returned non-success status",
		zap.String("url", c.redact(req)),
		zap.Int("statusCode", status),
		zap.ByteString("responseBody", truncate(body)))
	return nil, c.classify(status, body)
}

// DoJSON executes r and decodes a 2xx body into out.
func (c *Client) DoJSON(ctx context.Context, r Request, out any) error {
	body, err := c.Do(ctx, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Error("Failed to decode upstream response", zap.ByteString("responseBody", truncate(body)), zap.Error(err))
		return entity.NewApplicationError(c.provider, 200, fmt.Sprintf("malformed response: %v", err))
	}
	return nil
}

func (c *Client) classify(status int, body []byte) error {
	msg := string(truncate(body))
	switch {
	case status == fasthttp.StatusTooManyRequests:
		return entity.NewRateLimitedError(c.provider, status, msg)
	case status >= 500:
		return entity.NewTransportError(c.provider, status, fmt.Errorf("status %d: %s", status, msg))
	case status == fasthttp.StatusBadRequest || status == fasthttp.StatusUnprocessableEntity:
		ve := entity.NewValidationError(c.provider, msg, nil)
		ve.StatusCode = status
		return ve
	default:
		return entity.NewApplicationError(c.provider, status, msg)
	}
}

func truncate(b []byte) []byte {
	if len(b) > maxLoggedBody {
		return b[:maxLoggedBody]
	}
	return b
}

// redact masks credentials in the request URL before logging.
func (c *Client) redact(req *fasthttp.Request) string {
	u := fasthttp.AcquireURI()
	defer fasthttp.ReleaseURI(u)
	req.URI().CopyTo(u)
	if u.QueryArgs().Has("apikey") {
		u.QueryArgs().Set("apikey", "REDACTED")
	}
	s := u.String()
	for _, secret := range c.secrets {
		s = strings.ReplaceAll(s, secret, "REDACTED")
	}
	return s
}
