// Package upstream talks to the external verification service: a CSRF
// handshake, a streaming batch submission, and a status poll for
// verifications still under review.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	DefaultBaseURL = "https://neigui.1key.me"
	requestTimeout = 60 * time.Second

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	programID = "google-student"
)

var (
	ErrNoCsrfToken = errors.New("unable to obtain upstream CSRF token")
	ErrNoStream    = errors.New("upstream did not return an event stream")
)

var htmlTokenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)name=["']csrf-token["']\s+content=["']([^"']+)["']`),
	regexp.MustCompile(`(?i)content=["']([^"']+)["']\s+name=["']csrf-token["']`),
	regexp.MustCompile(`(?i)CSRF_TOKEN\s*=?\s*["']([^"']+)["']`),
	regexp.MustCompile(`(?i)csrfToken["']?\s*[:=]\s*["']([^"']+)["']`),
	regexp.MustCompile(`(?i)csrf-token["']?\s*[:=]\s*["']([^"']+)["']`),
}

// cookie names recognized as carrying the CSRF token
var csrfCookieNames = []string{"csrf", "xsrf", "_token"}

// CsrfSession is the token+cookie pair authorizing upstream calls. It
// is advisory only: a stale session simply makes the next call fail and
// a fresh handshake is performed on the next attempt.
type CsrfSession struct {
	Token  string
	Cookie string
}

// Client owns one cached CSRF session against the upstream service. It
// is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client

	mu      sync.Mutex
	cookies map[string]string
}

type Config struct {
	BaseURL string `mapstructure:"base_url"`
}

func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
		cookies: make(map[string]string),
	}
}

func (c *Client) defaultHeaders(req *http.Request) {
	req.Header.Set("Accept", "text/html,application/json,*/*")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", c.baseURL+"/")
}

// mergeCookies folds every Set-Cookie from a response into the session
// jar, last value per name winning.
func (c *Client) mergeCookies(resp *http.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "" {
			continue
		}
		c.cookies[cookie.Name] = cookie.Value
	}
}

func (c *Client) cookieHeader() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	parts := make([]string, 0, len(c.cookies))
	for name, value := range c.cookies {
		parts = append(parts, name+"="+value)
	}
	return strings.Join(parts, "; ")
}

func tokenFromCookies(resp *http.Response) string {
	for _, cookie := range resp.Cookies() {
		lower := strings.ToLower(cookie.Name)
		for _, name := range csrfCookieNames {
			if strings.Contains(lower, name) {
				return cookie.Value
			}
		}
	}
	return ""
}

func tokenFromHTML(body string) string {
	for _, pattern := range htmlTokenPatterns {
		if m := pattern.FindStringSubmatch(body); m != nil {
			return m[1]
		}
	}
	return ""
}

// AcquireCsrfSession walks the handshake fallback chain: the primary
// page first, then the csrf endpoint. At each step the token is taken
// from a response header, a recognized cookie, or an embedded pattern
// in the body, in that order.
func (c *Client) AcquireCsrfSession(ctx context.Context) (CsrfSession, error) {
	for _, path := range []string{"/", "/api/csrf"} {
		token, err := c.fetchToken(ctx, path)
		if err != nil {
			return CsrfSession{}, err
		}
		if token != "" {
			return CsrfSession{Token: token, Cookie: c.cookieHeader()}, nil
		}
	}
	return CsrfSession{}, ErrNoCsrfToken
}

func (c *Client) fetchToken(ctx context.Context, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", fmt.Errorf("build csrf request: %w", err)
	}
	c.defaultHeaders(req)
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("csrf handshake: %w", err)
	}
	defer resp.Body.Close()

	c.mergeCookies(resp)

	if token := resp.Header.Get("X-Csrf-Token"); token != "" {
		return token, nil
	}
	if token := tokenFromCookies(resp); token != "" {
		return token, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read csrf response: %w", err)
	}

	if gjson.ValidBytes(body) {
		if token := gjson.GetBytes(body, "csrfToken").String(); token != "" {
			return token, nil
		}
		if token := gjson.GetBytes(body, "token").String(); token != "" {
			return token, nil
		}
	}
	return tokenFromHTML(string(body)), nil
}

func (c *Client) authedRequest(ctx context.Context, session CsrfSession, path string, payload any, accept string) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal upstream payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	req.Header.Set("X-CSRF-Token", session.Token)
	req.Header.Set("Origin", c.baseURL)
	req.Header.Set("Referer", c.baseURL+"/")
	req.Header.Set("User-Agent", userAgent)
	if session.Cookie != "" {
		req.Header.Set("Cookie", session.Cookie)
	}
	return req, nil
}

type batchRequest struct {
	VerificationIDs []string `json:"verificationIds"`
	HCaptchaToken   string   `json:"hCaptchaToken"`
	ProgramID       string   `json:"programId"`
}

// SubmitBatch posts a list of verification ids and returns the raw
// event-stream body. The caller owns closing it.
func (c *Client) SubmitBatch(ctx context.Context, ids []string, secret string) (io.ReadCloser, error) {
	if secret == "" {
		return nil, errors.New("upstream secret is not configured")
	}

	session, err := c.AcquireCsrfSession(ctx)
	if err != nil {
		return nil, err
	}

	req, err := c.authedRequest(ctx, session, "/api/batch", batchRequest{
		VerificationIDs: ids,
		HCaptchaToken:   secret,
		ProgramID:       programID,
	}, "text/event-stream")
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit batch: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("upstream request failed: %d %s", resp.StatusCode, strings.TrimSpace(string(text)))
	}
	if resp.Body == nil {
		return nil, ErrNoStream
	}
	return resp.Body, nil
}

type pollRequest struct {
	CheckToken string `json:"checkToken"`
}

// PollStatus asks the upstream for the state of a verification under
// review. The response is returned as JSON bytes; an unparseable body
// is wrapped into an error-shaped payload instead of failing.
func (c *Client) PollStatus(ctx context.Context, checkToken string) ([]byte, error) {
	session, err := c.AcquireCsrfSession(ctx)
	if err != nil {
		return nil, err
	}

	req, err := c.authedRequest(ctx, session, "/api/check-status", pollRequest{CheckToken: checkToken}, "application/json")
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll status: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read poll response: %w", err)
	}

	if gjson.ValidBytes(body) && gjson.ParseBytes(body).IsObject() {
		return body, nil
	}

	wrapped, _ := sjson.SetBytes([]byte(`{"status":"error"}`), "message", string(body))
	return wrapped, nil
}
