package protect

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/brutella/hc/log"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

const loginPath = "/api/auth/login"

// Response is a fully read answer to an authenticated request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Option customizes a Client.
type Option func(*Client)

// WithClock replaces the clock used for backoff sleeps.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithHTTPClient replaces the underlying HTTP client.
// The TLS setting of the Config is not applied to it.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// Client keeps one authenticated session against an NVR.
type Client struct {
	cfg    Config
	base   string
	http   *http.Client
	clock  clockwork.Clock
	logins singleflight.Group

	mutex    sync.Mutex
	session  Session
	attempts int
}

// NewClient returns a Client without a session. The first request logs in.
// Only a zero Timeout is replaced by DefaultTimeout; every other field is used
// as given, so a zero BackoffThreshold waits before every login and a zero
// MaxAttempts retries until the context ends. Start from DefaultConfig.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}

	c := &Client{
		cfg:   cfg,
		base:  strings.TrimRight(cfg.Address, "/"),
		http:  &http.Client{Transport: transport},
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the configuration the client was built with.
func (c *Client) Config() Config {
	return c.cfg
}

// Session returns a copy of the current session.
func (c *Client) Session() Session {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.session
}

// LoginAttempts returns how many times the client tried to log in.
func (c *Client) LoginAttempts() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.attempts
}

// Invalidate drops the session so the next request logs in again.
func (c *Client) Invalidate() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.session = Session{}
}

// EnsureSession logs in unless the client already holds a valid session.
// Concurrent callers share a single login. The shared login is not tied to
// the cancellation of the caller that started it; each caller stops waiting
// when its own ctx is done.
func (c *Client) EnsureSession(ctx context.Context) error {
	if c.Session().Valid() {
		return nil
	}

	shared := context.WithoutCancel(ctx)
	ch := c.logins.DoChan("login", func() (interface{}, error) {
		// a login may have completed between the check above and here
		if c.Session().Valid() {
			return nil, nil
		}
		return nil, c.login(shared)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) login(ctx context.Context) error {
	c.mutex.Lock()
	c.attempts++
	attempt := c.attempts
	c.mutex.Unlock()

	if err := c.backoff(ctx, attempt); err != nil {
		return err
	}

	payload, err := json.Marshal(struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{c.cfg.Username, c.cfg.Password})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+loginPath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	log.Debug.Printf("login attempt %d as %s", attempt, c.cfg.Username)

	resp, err := c.http.Do(req)
	if err != nil {
		loginsTotal.WithLabelValues("error").Inc()
		log.Info.Printf("login: %v", err)
		return &TransportError{Op: "login", Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		loginsTotal.WithLabelValues("rejected").Inc()
		log.Info.Printf("login: NVR answered HTTP %d", resp.StatusCode)
		return &AuthError{Status: resp.StatusCode}
	}

	session, err := ParseSessionFromHeaders(resp.Header)
	if err != nil {
		loginsTotal.WithLabelValues("rejected").Inc()
		log.Info.Println("login:", err)
		return err
	}

	c.mutex.Lock()
	c.session = session
	c.mutex.Unlock()

	loginsTotal.WithLabelValues("ok").Inc()
	return nil
}

// backoff sleeps once the login counter went past the threshold.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	if attempt <= c.cfg.BackoffThreshold {
		return nil
	}

	delay := c.cfg.BackoffDelay
	if c.cfg.OnBackoff != nil {
		c.cfg.OnBackoff(attempt, delay)
	}
	backoffsTotal.Inc()
	log.Debug.Printf("login attempt %d: waiting %v", attempt, delay)

	select {
	case <-c.clock.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do sends an authenticated request to path and returns the answer when the
// status is 200. Any other status, or a transport failure, drops the session
// and returns a retryable error; retrying is up to the caller. A request
// abandoned because ctx ended keeps the session.
func (c *Client) Do(ctx context.Context, method, path string, body interface{}) (*Response, error) {
	if err := c.EnsureSession(ctx); err != nil {
		return nil, err
	}

	op := method + " " + path
	session := c.Session()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encoding body: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, c.base+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set(cookieHeader, session.Cookie)
	req.Header.Set(csrfHeader, session.CSRFToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(method, "error").Inc()
		log.Info.Printf("%s: %v", op, err)
		c.dropSession(ctx)
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		requestsTotal.WithLabelValues(method, "error").Inc()
		log.Info.Printf("%s: reading body: %v", op, err)
		c.dropSession(ctx)
		return nil, &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		requestsTotal.WithLabelValues(method, "rejected").Inc()
		log.Info.Printf("%s: NVR answered HTTP %d", op, resp.StatusCode)
		c.Invalidate()
		return nil, &ServerError{Op: op, Status: resp.StatusCode}
	}

	requestsTotal.WithLabelValues(method, "ok").Inc()
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// dropSession invalidates the session after a failed request, unless the
// failure came from the caller giving up.
func (c *Client) dropSession(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	c.Invalidate()
}
