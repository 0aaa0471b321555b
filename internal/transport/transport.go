package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/janekbaraniewski/usagewatch/internal/core"
)

// DefaultTimeout bounds a single HTTP round-trip unless the request options
// override it.
const DefaultTimeout = 30 * time.Second

// Envelope is the uniform shape every transport outcome is converted into.
// Success mirrors "status in 200-299"; Data holds the decoded JSON body when
// the response was JSON, Text holds the plain-text fallback.
type Envelope struct {
	Success    bool
	Status     int
	Data       json.RawMessage
	Text       string
	ErrMessage string
	Headers    http.Header
}

// RequestOptions tune one dispatched request.
type RequestOptions struct {
	Headers map[string]string
	Body    any           // marshaled to JSON when non-nil
	Timeout time.Duration // 0 means DefaultTimeout
}

// Client issues single HTTP calls and normalizes their outcomes. It owns no
// credential and no retry policy; those live in the layers above.
type Client struct {
	httpClient     *http.Client
	defaultHeaders map[string]string
}

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{},
		defaultHeaders: map[string]string{
			"Accept": "application/json",
		},
	}
}

// SetDefaultHeader registers a header attached to every outgoing request
// unless the caller overrides it per request.
func (c *Client) SetDefaultHeader(key, value string) {
	c.defaultHeaders[key] = value
}

// Do performs one HTTP call and returns the normalized envelope. A non-2xx
// status is not an error: the envelope carries it as data. Errors are
// reserved for transport-level failures (timeout, DNS, refused connection).
func (c *Client) Do(ctx context.Context, method, url string, opts RequestOptions) (*Envelope, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if opts.Body != nil {
		payload, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, core.WrapError(core.KindValidation, "encoding request body", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, url, bodyReader)
	if err != nil {
		return nil, core.WrapError(core.KindValidation, "building request", err)
	}
	for k, v := range c.defaultHeaders {
		req.Header.Set(k, v)
	}
	if opts.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	return buildEnvelope(resp)
}

func (c *Client) Get(ctx context.Context, url string, opts RequestOptions) (*Envelope, error) {
	return c.Do(ctx, http.MethodGet, url, opts)
}

func (c *Client) Post(ctx context.Context, url string, opts RequestOptions) (*Envelope, error) {
	return c.Do(ctx, http.MethodPost, url, opts)
}

func (c *Client) Put(ctx context.Context, url string, opts RequestOptions) (*Envelope, error) {
	return c.Do(ctx, http.MethodPut, url, opts)
}

func (c *Client) Patch(ctx context.Context, url string, opts RequestOptions) (*Envelope, error) {
	return c.Do(ctx, http.MethodPatch, url, opts)
}

func (c *Client) Delete(ctx context.Context, url string, opts RequestOptions) (*Envelope, error) {
	return c.Do(ctx, http.MethodDelete, url, opts)
}

func (c *Client) Head(ctx context.Context, url string, opts RequestOptions) (*Envelope, error) {
	return c.Do(ctx, http.MethodHead, url, opts)
}

func buildEnvelope(resp *http.Response) (*Envelope, error) {
	env := &Envelope{
		Status:  resp.StatusCode,
		Success: resp.StatusCode >= 200 && resp.StatusCode <= 299,
		Headers: resp.Header.Clone(),
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NetworkError(core.ReasonOther, "reading response body", err)
	}

	if isJSONContentType(resp.Header.Get("Content-Type")) && len(bytes.TrimSpace(body)) > 0 {
		if json.Valid(body) {
			env.Data = json.RawMessage(body)
		} else {
			env.Text = string(body)
		}
	} else {
		env.Text = string(body)
	}

	if !env.Success {
		env.ErrMessage = extractErrorMessage(env, resp)
	}
	return env, nil
}

func isJSONContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "application/json") || strings.Contains(ct, "+json")
}

// extractErrorMessage pulls error/message out of a failed JSON body, falling
// back to "HTTP {status}: {statusText}".
func extractErrorMessage(env *Envelope, resp *http.Response) string {
	if len(env.Data) > 0 {
		var probe struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(env.Data, &probe); err == nil {
			if probe.Error != "" {
				return probe.Error
			}
			if probe.Message != "" {
				return probe.Message
			}
		}
	}
	return fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}

func classifyTransportError(err error) *core.Error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return core.NetworkError(core.ReasonDNS,
			"cannot resolve host, check your connection", err)
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return core.NetworkError(core.ReasonRefused,
			"connection refused, service may be unavailable", err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return core.NetworkError(core.ReasonTimeout,
			"request timed out, try again later", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return core.NetworkError(core.ReasonTimeout,
			"request timed out, try again later", err)
	}

	return core.NetworkError(core.ReasonOther, "request failed", err)
}
