package nessie

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"
)

// Gateway is the full surface of the Nessie API consumed by Lookout.
// It is implemented by *Client; consumers depend on narrower interfaces.
type Gateway interface {
	FetchPing(ctx context.Context) (*Ping, error)
	FetchVersion(ctx context.Context) (*Version, error)
	FetchConfig(ctx context.Context) (*AppConfig, error)
	FetchProfile(ctx context.Context) (*Profile, error)
	FetchRunnableJobs(ctx context.Context) ([]RunnableJob, error)
	FetchCASLoginURL(ctx context.Context) (string, error)
	FetchCASLogoutURL(ctx context.Context) (string, error)
	StartJob(ctx context.Context, jobID string) (*JobResult, error)
	RunJob(ctx context.Context, path string) (*JobResult, error)
	FetchJobStatus(ctx context.Context, date time.Time) ([]JobStatus, error)
	FetchSchedule(ctx context.Context) ([]ScheduledJob, error)
	UpdateSchedule(ctx context.Context, jobID string, trigger map[string]any) (*ScheduledJob, error)
	PauseSchedule(ctx context.Context, jobID string) (*ScheduledJob, error)
	RemoveSchedule(ctx context.Context, jobID string) ([]ScheduledJob, error)
	UpdateScheduleArgs(ctx context.Context, jobID string, args map[string]any) (*ScheduledJob, error)
	ReloadSchedules(ctx context.Context) ([]ScheduledJob, error)
}

// Ensure Client implements Gateway at compile time.
var _ Gateway = (*Client)(nil)

// Client talks to the Nessie HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string

	hooksMu sync.RWMutex
	hooks   []func(error)
}

const (
	defaultBaseURL        = "http://127.0.0.1:5000"
	defaultUserAgent      = "lookout/0.1"
	defaultCookieName     = "session"
	defaultRequestTimeout = 10 * time.Second
	maxErrorBody          = 64 * 1024
)

// Option customizes a Client.
type Option func(*clientOptions)

type clientOptions struct {
	sessionCookie string
	timeout       time.Duration
	transport     http.RoundTripper
	userAgent     string
}

// WithSessionCookie seeds the cookie jar with a session cookie. The value is
// either "name=value" or a bare value for Nessie's default "session" cookie.
func WithSessionCookie(cookie string) Option {
	return func(o *clientOptions) { o.sessionCookie = cookie }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithTransport swaps the HTTP transport, mostly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) { o.transport = rt }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *clientOptions) {
		if strings.TrimSpace(ua) != "" {
			o.userAgent = ua
		}
	}
}

// NewClient builds a Client for the Nessie server at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	o := clientOptions{timeout: defaultRequestTimeout, userAgent: defaultUserAgent}
	for _, opt := range opts {
		opt(&o)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	if cookies, err := parseSessionCookie(o.sessionCookie); err != nil {
		return nil, err
	} else if len(cookies) > 0 {
		jar.SetCookies(base, cookies)
	}

	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout:   o.timeout,
			Jar:       jar,
			Transport: o.transport,
		},
		userAgent: o.userAgent,
	}, nil
}

// BaseURL returns the normalized server URL.
func (c *Client) BaseURL() string {
	if c == nil || c.baseURL == nil {
		return ""
	}
	return c.baseURL.String()
}

// OnFailure registers fn to be called with every failed request, after the
// error has been normalized. Hooks run synchronously on the calling goroutine.
func (c *Client) OnFailure(fn func(error)) {
	if c == nil || fn == nil {
		return
	}
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.hooks = append(c.hooks, fn)
}

// ForgetSession drops every cookie the client holds for the server, so later
// requests are anonymous until a new session cookie is supplied.
func (c *Client) ForgetSession() {
	if c == nil || c.http == nil || c.http.Jar == nil {
		return
	}
	var expired []*http.Cookie
	for _, ck := range c.http.Jar.Cookies(c.baseURL) {
		// Server cookies usually carry Path=/; seeded ones use the default path.
		expired = append(expired,
			&http.Cookie{Name: ck.Name, Path: "/", MaxAge: -1},
			&http.Cookie{Name: ck.Name, MaxAge: -1},
		)
	}
	if len(expired) > 0 {
		c.http.Jar.SetCookies(c.baseURL, expired)
	}
}

// FetchPing retrieves the liveness payload.
func (c *Client) FetchPing(ctx context.Context) (*Ping, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var payload Ping
	if err := c.do(ctx, http.MethodGet, "/api/ping", nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// FetchVersion retrieves the server version and build summary.
func (c *Client) FetchVersion(ctx context.Context) (*Version, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var payload Version
	if err := c.do(ctx, http.MethodGet, "/api/version", nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// FetchConfig retrieves the server's environment metadata.
func (c *Client) FetchConfig(ctx context.Context) (*AppConfig, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var payload AppConfig
	if err := c.do(ctx, http.MethodGet, "/api/config", nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// FetchProfile returns the authenticated profile, or nil when the server
// reports no authenticated user.
func (c *Client) FetchProfile(ctx context.Context) (*Profile, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var payload *Profile
	if err := c.do(ctx, http.MethodGet, "/api/user/profile", nil, &payload); err != nil {
		return nil, err
	}
	if payload == nil || strings.TrimSpace(payload.UID) == "" {
		return nil, nil
	}
	return payload, nil
}

// FetchRunnableJobs lists the job endpoints the caller may trigger.
func (c *Client) FetchRunnableJobs(ctx context.Context) ([]RunnableJob, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var payload []RunnableJob
	if err := c.do(ctx, http.MethodGet, "/api/admin/runnable_jobs", nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// FetchCASLoginURL returns the identity provider login URL.
func (c *Client) FetchCASLoginURL(ctx context.Context) (string, error) {
	if c == nil {
		return "", fmt.Errorf("client is nil")
	}
	var payload struct {
		URL string `json:"casLoginURL"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/user/cas_login_url", nil, &payload); err != nil {
		return "", err
	}
	return payload.URL, nil
}

// FetchCASLogoutURL ends the server session and returns the identity
// provider logout URL.
func (c *Client) FetchCASLogoutURL(ctx context.Context) (string, error) {
	if c == nil {
		return "", fmt.Errorf("client is nil")
	}
	var payload struct {
		URL string `json:"casLogoutURL"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/user/cas_logout_url", nil, &payload); err != nil {
		return "", err
	}
	return payload.URL, nil
}

// StartJob triggers POST /api/job/{jobID}.
func (c *Client) StartJob(ctx context.Context, jobID string) (*JobResult, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	id := strings.Trim(strings.TrimSpace(jobID), "/")
	if id == "" {
		return nil, fmt.Errorf("job id required")
	}
	return c.postJob(ctx, "/api/job/"+url.PathEscape(id))
}

// RunJob triggers the job endpoint advertised by a RunnableJob path.
func (c *Client) RunJob(ctx context.Context, path string) (*JobResult, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	trimmed := strings.TrimSpace(path)
	if !strings.HasPrefix(trimmed, "/api/job/") {
		return nil, fmt.Errorf("job path %q must start with /api/job/", path)
	}
	return c.postJob(ctx, trimmed)
}

func (c *Client) postJob(ctx context.Context, path string) (*JobResult, error) {
	var payload JobResult
	if err := c.do(ctx, http.MethodPost, path, nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// FetchJobStatus lists background job runs created on date's day. A zero
// date asks the server for today.
func (c *Client) FetchJobStatus(ctx context.Context, date time.Time) ([]JobStatus, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	values := url.Values{}
	if !date.IsZero() {
		values.Set("date", date.UTC().Format(time.RFC3339))
	}
	rel := &url.URL{Path: "/api/admin/background_job_status", RawQuery: values.Encode()}
	var payload []JobStatus
	if err := c.doURL(ctx, http.MethodPost, rel, nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// FetchSchedule lists scheduled jobs.
func (c *Client) FetchSchedule(ctx context.Context) ([]ScheduledJob, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var payload []ScheduledJob
	if err := c.do(ctx, http.MethodGet, "/api/schedule", nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// UpdateSchedule reschedules a job with cron trigger fields such as
// {"hour": 3, "minute": 30}. An empty trigger pauses the job.
func (c *Client) UpdateSchedule(ctx context.Context, jobID string, trigger map[string]any) (*ScheduledJob, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	path, err := schedulePath(jobID)
	if err != nil {
		return nil, err
	}
	if trigger == nil {
		trigger = map[string]any{}
	}
	var payload ScheduledJob
	if err := c.do(ctx, http.MethodPost, path, trigger, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// PauseSchedule pauses a scheduled job.
func (c *Client) PauseSchedule(ctx context.Context, jobID string) (*ScheduledJob, error) {
	return c.UpdateSchedule(ctx, jobID, nil)
}

// RemoveSchedule deletes a job's schedule definition and returns the
// remaining schedule.
func (c *Client) RemoveSchedule(ctx context.Context, jobID string) ([]ScheduledJob, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	path, err := schedulePath(jobID)
	if err != nil {
		return nil, err
	}
	var payload []ScheduledJob
	if err := c.do(ctx, http.MethodDelete, path, nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// UpdateScheduleArgs merges args into a scheduled job's keyword arguments.
func (c *Client) UpdateScheduleArgs(ctx context.Context, jobID string, args map[string]any) (*ScheduledJob, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("args required")
	}
	path, err := schedulePath(jobID)
	if err != nil {
		return nil, err
	}
	var payload ScheduledJob
	if err := c.do(ctx, http.MethodPost, path+"/args", args, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ReloadSchedules discards manual schedule edits on the server.
func (c *Client) ReloadSchedules(ctx context.Context) ([]ScheduledJob, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var payload []ScheduledJob
	if err := c.do(ctx, http.MethodPost, "/api/schedule/reload", nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func schedulePath(jobID string) (string, error) {
	id := strings.TrimSpace(jobID)
	if id == "" {
		return "", fmt.Errorf("job id required")
	}
	return "/api/schedule/" + url.PathEscape(id), nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	rel := &url.URL{Path: path}
	return c.doURL(ctx, method, rel, body, dest)
}

func (c *Client) doURL(ctx context.Context, method string, rel *url.URL, body, dest any) error {
	err := c.roundTrip(ctx, method, rel, body, dest)
	if err != nil {
		c.notify(err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method string, rel *url.URL, body, dest any) error {
	reqURL := c.baseURL.ResolveReference(rel)

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Method: method, Path: rel.Path, Err: fmt.Errorf("execute request: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			Method: method,
			Path:   rel.Path,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(text)),
		}
	}
	if dest == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(dest); err != nil {
		return &APIError{
			Method: method,
			Path:   rel.Path,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}

func (c *Client) notify(err error) {
	c.hooksMu.RLock()
	hooks := slices.Clone(c.hooks)
	c.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(err)
	}
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse base url %q: missing host", raw)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func parseSessionCookie(raw string) ([]*http.Cookie, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	if !strings.Contains(trimmed, "=") {
		return []*http.Cookie{{Name: defaultCookieName, Value: trimmed, Path: "/"}}, nil
	}
	cookies, err := http.ParseCookie(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse session cookie: %w", err)
	}
	for _, cookie := range cookies {
		cookie.Path = "/"
	}
	return cookies, nil
}
