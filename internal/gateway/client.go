package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/angelmondragon/storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
)

const maxResponseBytes = 4 << 20

var (
	// ErrSessionExpired is the cause attached to every 401 on an authenticated call.
	ErrSessionExpired = errors.New("gateway: session expired")
	// ErrMalformed marks a 2xx response whose body could not be mapped to a known shape.
	ErrMalformed = errors.New("gateway: malformed response")

	errUpstreamStatus = errors.New("gateway: upstream server error")
)

// Client issues requests to the remote storefront REST API.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*rawResponse]
	logg    *logger.Logger
	metrics *metrics.GatewayMetrics
}

type rawResponse struct {
	status int
	body   []byte
}

// request describes one API call. endpoint is the stable label used in
// metrics and error details; fallback is shown when the upstream gives no message.
type request struct {
	method      string
	path        string
	endpoint    string
	token       string
	query       url.Values
	body        any
	multipart   *multipartBody
	fallback    string
	requireAuth bool
}

func New(cfg config.GatewayConfig, logg *logger.Logger, m *metrics.GatewayMetrics) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse gateway base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("gateway base url %q must be absolute", cfg.BaseURL)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		baseURL: base,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logg:    logg,
		metrics: m,
	}
	c.breaker = gobreaker.NewCircuitBreaker[*rawResponse](breakerSettings(cfg, logg))
	return c, nil
}

func breakerSettings(cfg config.GatewayConfig, logg *logger.Logger) gobreaker.Settings {
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	return gobreaker.Settings{
		Name:        "storefront-api",
		MaxRequests: 1,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			ctx := logg.WithFields(context.Background(), map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			logg.Warn(ctx, "gateway.breaker.state_change")
		},
		// Only transport failures and 5xx replies count against the upstream.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
}

func (c *Client) do(ctx context.Context, req request) ([]byte, error) {
	if req.requireAuth && strings.TrimSpace(req.token) == "" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, ErrSessionExpired, "login required")
	}

	resp, err := c.breaker.Execute(func() (*rawResponse, error) {
		return c.roundTrip(ctx, req)
	})
	if resp == nil {
		c.metrics.ObserveRequest(req.endpoint, 0)
		msg := fallbackMessage(req)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			msg = "storefront api temporarily unavailable"
		}
		logCtx := c.logg.WithField(ctx, "endpoint", req.endpoint)
		c.logg.Error(logCtx, "gateway.request.transport_error", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg).
			WithDetails(map[string]any{"endpoint": req.endpoint, "status": 0})
	}

	c.metrics.ObserveRequest(req.endpoint, resp.status)
	if resp.status >= 200 && resp.status < 300 {
		return resp.body, nil
	}
	return nil, c.statusError(ctx, req, resp)
}

func (c *Client) roundTrip(ctx context.Context, req request) (*rawResponse, error) {
	httpReq, err := c.newHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", req.endpoint, err)
	}

	out := &rawResponse{status: httpResp.StatusCode, body: body}
	if out.status >= http.StatusInternalServerError {
		return out, errUpstreamStatus
	}
	return out, nil
}

func (c *Client) newHTTPRequest(ctx context.Context, req request) (*http.Request, error) {
	target := c.baseURL.JoinPath(req.path)
	if len(req.query) > 0 {
		target.RawQuery = req.query.Encode()
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case req.multipart != nil:
		buf, ct, err := req.multipart.encode()
		if err != nil {
			return nil, err
		}
		body, contentType = buf, ct
	case req.body != nil:
		payload, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", req.endpoint, err)
		}
		body, contentType = bytes.NewReader(payload), "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target.String(), body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Token "+req.token)
	}
	return httpReq, nil
}

func (c *Client) statusError(ctx context.Context, req request, resp *rawResponse) error {
	fields := errorFields(resp.body)
	msg := fields.message()
	if msg == "" {
		msg = fallbackMessage(req)
	}
	details := map[string]any{"endpoint": req.endpoint, "status": resp.status}

	var err *pkgerrors.Error
	switch resp.status {
	case http.StatusUnauthorized:
		if req.token != "" {
			err = pkgerrors.Wrap(pkgerrors.CodeUnauthorized, ErrSessionExpired, "session expired")
		} else {
			err = pkgerrors.New(pkgerrors.CodeUnauthorized, msg)
		}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		err = pkgerrors.New(pkgerrors.CodeValidation, msg)
		if fields.fieldErrors != nil {
			details["fields"] = fields.fieldErrors
		}
		err = err.WithDetails(details)
	case http.StatusForbidden:
		err = pkgerrors.New(pkgerrors.CodeForbidden, msg)
	case http.StatusNotFound:
		err = pkgerrors.New(pkgerrors.CodeNotFound, msg)
	case http.StatusConflict:
		err = pkgerrors.New(pkgerrors.CodeConflict, msg)
	case http.StatusTooManyRequests:
		err = pkgerrors.New(pkgerrors.CodeRateLimit, msg)
	default:
		err = pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("%s returned status %d", req.endpoint, resp.status), msg).
			WithDetails(details)
	}

	logCtx := c.logg.WithFields(ctx, map[string]any{
		"endpoint":        req.endpoint,
		"upstream_status": resp.status,
	})
	c.logg.Warn(logCtx, "gateway.request.rejected")
	return err
}

func fallbackMessage(req request) string {
	if req.fallback != "" {
		return req.fallback
	}
	return "request to storefront api failed"
}

func malformed(endpoint string, cause error) error {
	return malformedWithMessage(endpoint, cause, "unexpected response from storefront api")
}

func malformedWithMessage(endpoint string, cause error, message string) error {
	if cause == nil {
		cause = ErrMalformed
	} else if !errors.Is(cause, ErrMalformed) {
		cause = fmt.Errorf("%w: %w", ErrMalformed, cause)
	}
	return pkgerrors.Wrap(pkgerrors.CodeMalformedResponse, cause, message).
		WithDetails(map[string]any{"endpoint": endpoint})
}
