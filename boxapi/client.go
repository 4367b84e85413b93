// Package boxapi is the HTTP boundary to the box server.
//
// The server is a cookie-session JSON API. Every unsafe request carries the
// CSRF token read from the "csrftoken" cookie; the client keeps its own cookie
// jar so a sign-in performed through the same http.Client is reused.
package boxapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

const (
	DefaultCSRFCookie    = "csrftoken"
	DefaultSessionCookie = "sessionid"
	CSRFHeader           = "X-CSRFToken"
	IdempotencyHeader    = "Idempotency-Key"
)

// error codes the server puts in the "error" field
const (
	CodeInsufficientFunds = "insufficient_funds"
	CodeForbidden         = "forbidden"
)

// Error captures a non-2xx response.
type Error struct {
	StatusCode int
	Code       string // body "error" field, if any
	Message    string // body "message" or "detail", if any
	Body       []byte
}

func (e *Error) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("box api: status %d: %s: %s", e.StatusCode, e.Code, e.Message)
	case e.Code != "":
		return fmt.Sprintf("box api: status %d: %s", e.StatusCode, e.Code)
	case e.Message != "":
		return fmt.Sprintf("box api: status %d: %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("box api: unexpected status %d", e.StatusCode)
	}
}

// HasCode reports whether err is an *Error carrying the given code.
func HasCode(err error, code string) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// StatusCode returns the HTTP status of an *Error, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// csrfRoundTripper stamps the CSRF token, user agent and Accept header on
// every outgoing request.
type csrfRoundTripper struct {
	Wrapped    http.RoundTripper
	Jar        http.CookieJar
	CookieName string
	UserAgent  string
}

func (rt *csrfRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if rt.UserAgent != "" {
		clone.Header.Set("User-Agent", rt.UserAgent)
	}
	if clone.Header.Get("Accept") == "" {
		clone.Header.Set("Accept", "application/json")
	}
	if unsafeMethod(clone.Method) && clone.Header.Get(CSRFHeader) == "" && rt.Jar != nil {
		for _, c := range rt.Jar.Cookies(clone.URL) {
			if c.Name == rt.CookieName {
				clone.Header.Set(CSRFHeader, c.Value)
				break
			}
		}
	}
	return rt.Wrapped.RoundTrip(clone)
}

func unsafeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	}
	return true
}

type Config struct {
	// BaseURL is the site origin, e.g. https://musicbox.example.
	BaseURL string
	// HTTPClient is cloned; nil uses a fresh client.
	HTTPClient *http.Client
	UserAgent  string
	// Timeout for a whole request; 0 = none, the network stack decides.
	Timeout    time.Duration
	CSRFCookie string
}

// Client talks to the box server.
type Client struct {
	base *url.URL
	hc   *http.Client
	jar  http.CookieJar
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("boxapi: base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("boxapi: parse base URL: %w", err)
	}

	hc := &http.Client{}
	if cfg.HTTPClient != nil {
		*hc = *cfg.HTTPClient
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, err
		}
		hc.Jar = jar
	}
	transport := hc.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	cookie := cfg.CSRFCookie
	if cookie == "" {
		cookie = DefaultCSRFCookie
	}
	hc.Transport = &csrfRoundTripper{
		Wrapped:    transport,
		Jar:        hc.Jar,
		CookieName: cookie,
		UserAgent:  cfg.UserAgent,
	}
	hc.Timeout = cfg.Timeout

	return &Client{base: base, hc: hc, jar: hc.Jar}, nil
}

// SetCookies seeds the jar, e.g. with a session cookie obtained elsewhere.
func (c *Client) SetCookies(cookies []*http.Cookie) {
	c.jar.SetCookies(c.base, cookies)
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

type requestOpts struct {
	query   url.Values
	body    any
	headers map[string]string
}

// do sends the request and returns the raw response body for 2xx statuses.
// Non-2xx statuses become *Error.
func (c *Client) do(ctx context.Context, method, path string, ro requestOpts) (int, []byte, error) {
	var rdr io.Reader
	if ro.body != nil {
		b, err := json.Marshal(ro.body)
		if err != nil {
			return 0, nil, fmt.Errorf("boxapi: encode %s: %w", path, err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, ro.query), rdr)
	if err != nil {
		return 0, nil, err
	}
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range ro.headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, body, newError(resp.StatusCode, body)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, ro requestOpts, out any) error {
	_, body, err := c.do(ctx, method, path, ro)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("boxapi: decode %s: %w", path, err)
	}
	return nil
}

func newError(status int, body []byte) *Error {
	e := &Error{StatusCode: status, Body: body}
	var payload struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if s, ok := payload.Error.(string); ok {
			e.Code = s
		}
		e.Message = payload.Message
		if e.Message == "" {
			e.Message = payload.Detail
		}
	}
	return e
}
