// Package api is the unauthenticated JSON-over-HTTP client for the tether
// backend. Authentication and token refresh are layered on top by the gateway
// and session packages.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/grovetools/tether/errors"
	"github.com/grovetools/tether/internal/telemetry"
	"github.com/grovetools/tether/logging"
	"github.com/grovetools/tether/version"
	"github.com/sirupsen/logrus"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 1 << 20

// Request describes one API call. Body, when non-nil, is sent as JSON.
type Request struct {
	Method string
	Path   string
	Body   interface{}
	Header http.Header
}

// Clone returns a copy whose header can be modified independently.
func (r *Request) Clone() *Request {
	c := *r
	c.Header = r.Header.Clone()
	if c.Header == nil {
		c.Header = http.Header{}
	}
	return &c
}

// Op is the metrics label for the request, e.g. "POST /host/name".
func (r *Request) Op() string {
	return r.Method + " " + r.Path
}

// Response is a successful (2xx) API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into out. An empty body leaves out untouched.
func (r *Response) Decode(out interface{}) error {
	if out == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Doer sends API requests. Client and the authenticated gateway both satisfy it.
type Doer interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Client calls the backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Entry
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *logrus.Entry) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for baseURL with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.NewLogger("api")
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends req and returns the response for 2xx statuses. Other statuses are
// returned as typed errors: UNAUTHORIZED for 401, SERVER_REJECTED for other
// 4xx, SERVER_ERROR for 5xx. Transport failures are NETWORK_UNREACHABLE.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to encode request body")
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to create request")
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "tether/"+version.Version)
	httpReq.Header.Set("X-Request-ID", requestID)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range req.Header {
		httpReq.Header.Del(k)
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	op := req.Op()
	log := c.logger.WithFields(logrus.Fields{"op": op, "request_id": requestID})
	start := time.Now()
	telemetry.InFlight.WithLabelValues(op).Inc()
	defer telemetry.InFlight.WithLabelValues(op).Dec()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		telemetry.ObserveRequest(op, 0, start)
		log.WithError(err).Debug("Request failed without a response")
		return nil, errors.NetworkUnreachable(req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	telemetry.ObserveRequest(op, resp.StatusCode, start)
	if err != nil {
		return nil, errors.NetworkUnreachable(req.Method, req.Path, err)
	}

	log.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("Request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.FromStatus(req.Method, req.Path, resp.StatusCode, serverMessage(data))
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// PostJSON sends body to path with d and decodes the response into out.
func PostJSON(ctx context.Context, d Doer, path string, body, out interface{}) error {
	resp, err := d.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// serverMessage extracts {"message": "..."} from an error body, if present.
func serverMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}
