// Package client is the single HTTP entry point to the railway API. It
// attaches the stored access token to every call, recovers once from an
// expired token by asking the session to refresh, and turns every failure
// into a categorised *Error with exactly one user notification.
package client

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
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-rail-auth/notify"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
)

const maxBodySize = 10 << 20

// Config holds the API client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Breaker enables the circuit breaker when non-nil.
	Breaker *BreakerConfig
}

// DefaultConfig returns the defaults of the browser client.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080/api",
		Timeout: 30 * time.Second,
	}
}

// TokenReader supplies the current access token. It is consulted on every
// dispatch, never cached.
type TokenReader interface {
	AccessToken(ctx context.Context) (string, bool)
}

// SessionHandler owns the session the client authenticates with.
type SessionHandler interface {
	// RefreshSession mints and persists a new token pair and returns the new
	// access token. On failure the handler has already ended the session.
	RefreshSession(ctx context.Context) (string, error)
	// EndSession clears the session after a credential was rejected twice.
	EndSession(ctx context.Context, cause error)
}

// Request describes one API call. It is never modified by the client.
type Request struct {
	Method string
	Path   string
	Body   any // JSON encoded when non-nil
	Header http.Header

	// SkipAuthRefresh returns a 401 to the caller instead of refreshing.
	SkipAuthRefresh bool
	// Quiet suppresses the failure notification.
	Quiet bool
}

// Response is a successful (2xx) API response with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals a JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("[client Response] decode body: %w", err)
	}
	return nil
}

// Text returns the body as a string, for endpoints answering in plain text.
func (r *Response) Text() string {
	return string(r.Body)
}

type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithNotifier sets the sink for failure notifications.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Client) {
		c.notifier = n
	}
}

// WithSessionHandler attaches the session at construction time.
func WithSessionHandler(h SessionHandler) Option {
	return func(c *Client) {
		c.handler = h
	}
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenReader
	notifier   notify.Notifier
	breaker    *gobreaker.CircuitBreaker[*Response]

	handlerLock sync.RWMutex
	handler     SessionHandler
}

// New creates a client for the API rooted at cfg.BaseURL.
func New(cfg Config, tokens TokenReader, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("[client New] token reader is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("[client New] invalid base URL %q", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		notifier:   notify.Nop{},
	}
	if cfg.Breaker != nil {
		c.breaker = newBreaker(*cfg.Breaker)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetSessionHandler attaches (or with nil, detaches) the session handler.
func (c *Client) SetSessionHandler(h SessionHandler) {
	c.handlerLock.Lock()
	defer c.handlerLock.Unlock()
	c.handler = h
}

func (c *Client) sessionHandler() SessionHandler {
	c.handlerLock.RLock()
	defer c.handlerLock.RUnlock()
	return c.handler
}

// Do performs req. 2xx responses are returned unchanged; anything else is
// returned as an *Error after a single notification. A call abandoned through
// ctx returns the context's error without a notification.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}
	cl := &call{req: req, body: body, state: Fresh}

	for {
		resp, err := c.dispatch(ctx, cl)
		if err != nil && ctx.Err() != nil {
			return nil, c.canceled(ctx, cl)
		}
		if err != nil {
			return nil, c.fail(cl, networkError(cl, err))
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			observeOutcome(req.Method, "success")
			return resp, nil
		}
		if resp.StatusCode != http.StatusUnauthorized || req.SkipAuthRefresh {
			return nil, c.fail(cl, responseError(cl, resp))
		}

		switch cl.state {
		case Fresh:
			cl.state = Retrying
			token, err := c.refresh(ctx)
			cl.state = Exhausted
			if err != nil && ctx.Err() != nil {
				return nil, c.canceled(ctx, cl)
			}
			if err != nil {
				return nil, c.fail(cl, authenticationError(cl, resp.StatusCode, err))
			}
			cl.token = token
			log.Debug().Str("method", req.Method).Str("path", req.Path).Msg("Replaying request with refreshed token")
		default:
			cause := responseError(cl, resp)
			if h := c.sessionHandler(); h != nil {
				h.EndSession(ctx, cause)
			}
			return nil, c.fail(cl, authenticationError(cl, resp.StatusCode, cause))
		}
	}
}

// Get fetches path and decodes the response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.DoDecode(ctx, Request{Method: http.MethodGet, Path: path}, out)
}

// Post sends in as JSON and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.DoDecode(ctx, Request{Method: http.MethodPost, Path: path, Body: in}, out)
}

// Put sends in as JSON and decodes the response into out.
func (c *Client) Put(ctx context.Context, path string, in, out any) error {
	return c.DoDecode(ctx, Request{Method: http.MethodPut, Path: path, Body: in}, out)
}

// Patch sends in as JSON and decodes the response into out.
func (c *Client) Patch(ctx context.Context, path string, in, out any) error {
	return c.DoDecode(ctx, Request{Method: http.MethodPatch, Path: path, Body: in}, out)
}

// Delete removes path and decodes the response into out.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.DoDecode(ctx, Request{Method: http.MethodDelete, Path: path}, out)
}

// DoDecode performs req and decodes the response into out. A *string
// receives the raw body; nil discards it.
func (c *Client) DoDecode(ctx context.Context, req Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	switch v := out.(type) {
	case nil:
		return nil
	case *string:
		*v = resp.Text()
		return nil
	default:
		return resp.Decode(out)
	}
}

func (c *Client) refresh(ctx context.Context) (string, error) {
	h := c.sessionHandler()
	if h == nil {
		tokenRefreshTotal.WithLabelValues("no_handler").Inc()
		return "", ErrNoSessionHandler
	}
	token, err := h.RefreshSession(ctx)
	if err != nil {
		tokenRefreshTotal.WithLabelValues("failure").Inc()
		return "", err
	}
	tokenRefreshTotal.WithLabelValues("success").Inc()
	return token, nil
}

// fail records and notifies a failed call. It is the only place a failure
// notification is raised, and Do calls it exactly once per failed call.
func (c *Client) fail(cl *call, e *Error) error {
	observeOutcome(cl.req.Method, e.Kind.String())
	log.Debug().
		Str("method", cl.req.Method).
		Str("path", cl.req.Path).
		Int("status", e.StatusCode).
		Str("kind", e.Kind.String()).
		Str("retry_state", cl.state.String()).
		Err(e.Err).
		Msg("API request failed")
	if !cl.req.Quiet {
		notify.Error(c.notifier, e.toast)
	}
	return e
}

// canceled reports a call abandoned by its caller. The API did not fail, so
// nothing is notified.
func (c *Client) canceled(ctx context.Context, cl *call) error {
	observeOutcome(cl.req.Method, "canceled")
	log.Debug().
		Str("method", cl.req.Method).
		Str("path", cl.req.Path).
		Str("retry_state", cl.state.String()).
		Msg("API request canceled")
	return fmt.Errorf("[client Do] %s %s: %w", cl.req.Method, cl.req.Path, context.Cause(ctx))
}

// dispatch sends one HTTP exchange for cl. A non-nil error means no response
// was received.
func (c *Client) dispatch(ctx context.Context, cl *call) (*Response, error) {
	httpReq, err := c.newHTTPRequest(ctx, cl)
	if err != nil {
		return nil, err
	}
	if c.breaker == nil {
		return c.roundTrip(httpReq)
	}

	resp, err := c.breaker.Execute(func() (*Response, error) {
		resp, err := c.roundTrip(httpReq)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return resp, errServerStatus
		}
		return resp, nil
	})
	if errors.Is(err, errServerStatus) {
		return resp, nil
	}
	if err != nil && isBreakerRejection(err) {
		log.Warn().Err(err).Str("path", cl.req.Path).Msg("API circuit breaker rejected request")
	}
	return resp, err
}

func (c *Client) newHTTPRequest(ctx context.Context, cl *call) (*http.Request, error) {
	var body io.Reader = http.NoBody
	if cl.body != nil {
		body = bytes.NewReader(cl.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, cl.req.Method, c.url(cl.req.Path), body)
	if err != nil {
		return nil, fmt.Errorf("[client dispatch] create request: %w", err)
	}

	for k, values := range cl.req.Header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}
	if cl.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json, text/plain")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())

	token := cl.token
	if token == "" {
		token, _ = c.tokens.AccessToken(ctx)
	}
	if token != "" {
		(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(httpReq)
	}
	return httpReq, nil
}

func (c *Client) roundTrip(httpReq *http.Request) (*Response, error) {
	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	log.Debug().
		Str("method", httpReq.Method).
		Str("url", httpReq.URL.Path).
		Int("status", httpResp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("API request")

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}, nil
}

func (c *Client) url(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

func encodeBody(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("[client Do] encode body: %w", err)
	}
	return data, nil
}
