// Package gateway talks to an IoT gateway over its JSON HTTP API.
//
// Client issues requests against one base URL and resolves 401 responses
// by running an interactive login, after which the original request is
// retried once. Every error returned by this package other than
// ErrNotFound and ErrLoginAborted has already been reported through the
// client's Reporter, so callers only need to stop what they were doing.
// Requests made with a WithoutLogin context never prompt and only log
// their failures at debug level.
package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// CredentialKey is the session key the login credential is stored under.
const CredentialKey = "jwt"

// CredentialStore persists the credential in the selected gateway scope.
type CredentialStore interface {
	Get(key string) string
	Set(key, value string)
}

// Prompter reads the login identifier and secret from the user. Both
// methods return io.EOF when input ends.
type Prompter interface {
	ReadLine(prompt string) (string, error)
	ReadPassword(prompt string) ([]byte, error)
}

// Reporter receives user-visible diagnostics.
type Reporter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

type loginKey struct{}

// WithoutLogin marks ctx for background lookups such as completion. A 401
// then fails with ErrUnauthorized instead of starting a login.
func WithoutLogin(ctx context.Context) context.Context {
	return context.WithValue(ctx, loginKey{}, true)
}

func loginAllowed(ctx context.Context) bool {
	off, _ := ctx.Value(loginKey{}).(bool)
	return !off
}

// Options configures a Client.
type Options struct {
	// HTTPClient overrides the default transport.
	HTTPClient *http.Client
	// VerifyTLS enables certificate verification on the default transport.
	// Gateways normally use self-signed certificates.
	VerifyTLS bool
	Store     CredentialStore
	Prompter  Prompter
	Reporter  Reporter
}

// Response is a successful (200) gateway response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}

// Client is an authenticated HTTP client for one gateway.
type Client struct {
	baseURL  string
	http     *http.Client
	store    CredentialStore
	prompter Prompter
	report   Reporter
	metrics  *clientMetrics
	token    string
}

// NewClient creates a client for baseURL. A credential already present in
// the store is attached to every request.
func NewClient(baseURL string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: !opts.VerifyTLS}
		httpClient = &http.Client{Transport: transport}
	}
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     httpClient,
		store:    opts.Store,
		prompter: opts.Prompter,
		report:   opts.Reporter,
		metrics:  newClientMetrics(),
	}
	if c.report == nil {
		c.report = nopReporter{}
	}
	if c.store != nil {
		c.token = c.store.Get(CredentialKey)
	}
	if c.token != "" {
		if info, err := ParseToken(c.token); err == nil && info.Expired(time.Now()) {
			c.report.Debug("stored credential for %s expired at %s", c.baseURL, info.ExpiresAt.Format(time.RFC3339))
		}
	}
	return c
}

// URL returns the absolute URL for path.
func (c *Client) URL(path string) string {
	return c.baseURL + path
}

// Token returns the credential currently attached to requests.
func (c *Client) Token() string { return c.token }

// SetToken attaches token to future requests and stores it. An empty token
// removes the credential.
func (c *Client) SetToken(token string) {
	c.token = token
	if c.store != nil {
		c.store.Set(CredentialKey, token)
	}
}

// Metrics returns the registry holding this client's request counters.
func (c *Client) Metrics() *prometheus.Registry { return c.metrics.registry }

// Get issues a GET for path.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Put issues a PUT for path with body encoded as JSON.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPut, path, body)
}

// authState tracks the 401 handling of a single call.
type authState int

const (
	authorized authState = iota
	reauthenticating
)

func (c *Client) do(ctx context.Context, method, path string, body any) (*Response, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode %s body: %w", path, err)
		}
	}
	url := c.URL(path)
	report := c.report
	if !loginAllowed(ctx) {
		report = quietReporter{c.report}
	}

	state := authorized
	for {
		resp, err := c.send(ctx, method, url, payload)
		if err != nil {
			report.Error("Unable to connect to server: %s", url)
			return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, url, err)
		}

		switch resp.StatusCode {
		case http.StatusOK:
			return resp, nil
		case http.StatusNotFound:
			return nil, fmt.Errorf("%s %s: %w", method, url, ErrNotFound)
		case http.StatusUnauthorized:
			if !loginAllowed(ctx) {
				report.Debug("%s %s: unauthorized, login skipped", method, url)
				return nil, fmt.Errorf("%s %s: %w", method, url, ErrUnauthorized)
			}
			if state == reauthenticating {
				report.Error("%s failed: still unauthorized after login", method)
				return nil, fmt.Errorf("%s %s: %w", method, url, ErrUnauthorized)
			}
			if _, err := c.Login(ctx); err != nil {
				return nil, err
			}
			state = reauthenticating
		default:
			report.Error("%s failed: %d - %s", method, resp.StatusCode, resp.Body)
			return nil, &StatusError{
				Method:     method,
				URL:        url,
				StatusCode: resp.StatusCode,
				Body:       string(resp.Body),
			}
		}
	}
}

// Login prompts for an email address and password and exchanges them for
// a credential, which is stored and attached to later requests.
func (c *Client) Login(ctx context.Context) (string, error) {
	if c.prompter == nil {
		c.metrics.login("aborted")
		return "", fmt.Errorf("%w: no terminal for login", ErrLoginAborted)
	}
	email, err := c.prompter.ReadLine("Enter    email: ")
	if err != nil {
		c.metrics.login("aborted")
		return "", fmt.Errorf("%w: %w", ErrLoginAborted, err)
	}
	password, err := c.prompter.ReadPassword("Enter password: ")
	if err != nil {
		c.metrics.login("aborted")
		return "", fmt.Errorf("%w: %w", ErrLoginAborted, err)
	}

	payload, err := json.Marshal(map[string]string{
		"email":    strings.TrimSpace(email),
		"password": string(password),
	})
	if err != nil {
		return "", fmt.Errorf("encode login: %w", err)
	}
	url := c.URL("/login")
	resp, err := c.send(ctx, http.MethodPost, url, payload)
	if err != nil {
		c.metrics.login("error")
		c.report.Error("Unable to connect to server: %s", url)
		return "", fmt.Errorf("%w: %s: %v", ErrUnreachable, url, err)
	}
	if resp.StatusCode != http.StatusOK {
		c.metrics.login("rejected")
		c.report.Error("Login failed: %s", resp.Body)
		return "", fmt.Errorf("%w: status %d", ErrLoginFailed, resp.StatusCode)
	}

	var result struct {
		JWT string `json:"jwt"`
	}
	if err := resp.Decode(&result); err != nil || result.JWT == "" {
		c.metrics.login("rejected")
		c.report.Error("Login failed: no credential in response: %s", resp.Body)
		return "", fmt.Errorf("%w: no credential in response", ErrLoginFailed)
	}
	c.metrics.login("success")
	c.SetToken(result.JWT)
	return result.JWT, nil
}

// send performs one HTTP exchange. Only transport failures are returned as
// errors; every status code yields a Response.
func (c *Client) send(ctx context.Context, method, url string, payload []byte) (*Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	httpResp, err := c.http.Do(req)
	if err != nil {
		c.metrics.observe(method, "error", time.Since(start))
		c.report.Debug("%s %s (request %s): %v", method, url, requestID, err)
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.observe(method, "error", elapsed)
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.metrics.observe(method, strconv.Itoa(httpResp.StatusCode), elapsed)
	c.report.Debug("%s %s -> %d in %s (request %s)", method, url, httpResp.StatusCode, elapsed.Round(time.Millisecond), requestID)

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}, nil
}

// quietReporter demotes errors to debug output.
type quietReporter struct{ Reporter }

func (r quietReporter) Error(format string, args ...any) { r.Debug(format, args...) }

type nopReporter struct{}

func (nopReporter) Debug(string, ...any) {}
func (nopReporter) Error(string, ...any) {}
