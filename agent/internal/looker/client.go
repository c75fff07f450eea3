package looker

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/obsidianstack/lookerhealth/agent/internal/config"
)

// tokenRefreshMargin is subtracted from the token lifetime so a request never
// starts with a token that expires in flight.
const tokenRefreshMargin = time.Minute

var (
	// ErrUnauthorized is returned when Looker rejects the credentials.
	ErrUnauthorized = errors.New("looker: unauthorized")
	// ErrNotFound is returned for a 404 on an artifact lookup.
	ErrNotFound = errors.New("looker: not found")
)

// Client talks to one Looker instance. It is safe for concurrent use.
type Client struct {
	api          string // base URL + /api/<version>
	clientID     string
	clientSecret string
	queryLimit   int

	http  *http.Client // authenticated
	login *http.Client // plain, used only for /login

	mu      sync.Mutex
	token   string
	expires time.Time
	now     func() time.Time // injectable for deterministic tests
}

// New builds a Client from the Looker section of the config. Credentials are
// resolved from the environment once, here.
func New(cfg config.LookerConfig) *Client {
	version := cfg.APIVersion
	if version == "" {
		version = config.DefaultAPIVersion
	}
	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
		},
	}
	c := &Client{
		api:          strings.TrimRight(cfg.BaseURL, "/") + "/api/" + version,
		clientID:     cfg.ClientID(),
		clientSecret: cfg.ClientSecret(),
		queryLimit:   cfg.QueryLimit,
		login:        &http.Client{Transport: base, Timeout: cfg.Timeout},
		now:          time.Now,
	}
	if c.queryLimit <= 0 {
		c.queryLimit = config.DefaultQueryLimit
	}
	c.http = &http.Client{
		Transport: &authRoundTripper{base: base, c: c},
		Timeout:   cfg.Timeout,
	}
	return c
}

// authRoundTripper injects the Looker access token into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	c    *Client
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.c.accessToken(req.Context())
	if err != nil {
		return nil, err
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "token "+tok)
	return t.base.RoundTrip(req)
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns the cached token, logging in when there is none or it
// is about to expire.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expires) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.api+"/login",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("looker: build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.login.Do(req)
	if err != nil {
		return "", fmt.Errorf("looker: login: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: login returned HTTP %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("looker: login: unexpected status %d", resp.StatusCode)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", fmt.Errorf("looker: decode login response: %w", err)
	}
	if lr.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrUnauthorized)
	}

	ttl := time.Duration(lr.ExpiresIn)*time.Second - tokenRefreshMargin
	if ttl <= 0 {
		ttl = time.Duration(lr.ExpiresIn) * time.Second
	}
	c.token = lr.AccessToken
	c.expires = c.now().Add(ttl)
	slog.Debug("looker: logged in", "expires_in", lr.ExpiresIn)
	return c.token, nil
}

// invalidate drops the cached token so the next request logs in again.
func (c *Client) invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// do sends an authenticated request to path (relative to the API root) and
// returns the response body. A 401 triggers one re-login and retry.
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.api+path, rd)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, path, err)
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized && attempt == 0:
			slog.Debug("looker: token rejected, logging in again", "path", path)
			c.invalidate()
			continue
		case resp.StatusCode == http.StatusUnauthorized:
			return nil, fmt.Errorf("%w: %s %s", ErrUnauthorized, method, path)
		case resp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		case resp.StatusCode != http.StatusOK:
			return nil, fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
		}
		if readErr != nil {
			return nil, fmt.Errorf("%s %s: read body: %w", method, path, readErr)
		}
		return data, nil
	}
}
