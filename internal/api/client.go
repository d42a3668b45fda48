// Package api holds the HTTP clients for the remote LexDrum service: the
// session gateway (register/login), the conversation gateway (chat, list,
// history) and the admin ingestion endpoints. All protected calls carry the
// current bearer token; the token itself lives with the session manager.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrUnauthorized wraps any 401 from the service.
var ErrUnauthorized = errors.New("unauthorized")

// Error is a non-2xx response carrying the service's human-readable detail.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("service error: status %d", e.Status)
	}
	return e.Detail
}

// TokenSource yields the current bearer token; empty means signed out. The
// session manager is the only implementation in the program.
type TokenSource interface {
	Token() string
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	log     *slog.Logger

	// onUnauthorized fires when an authenticated call (one that actually
	// carried a token) comes back 401, meaning the stored token is stale.
	// A 401 on login is a credential failure and does not fire it.
	onUnauthorized func()
}

func NewClient(baseURL string, tokens TokenSource, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		log:     log,
	}
}

// SetOnUnauthorized installs the stale-token hook. Single policy, wired
// once at startup.
func (c *Client) SetOnUnauthorized(fn func()) { c.onUnauthorized = fn }

// SetTokenSource breaks the construction cycle between the client and the
// session manager: the manager logs in through the client, the client reads
// tokens from the manager.
func (c *Client) SetTokenSource(tokens TokenSource) { c.tokens = tokens }

func (c *Client) do(ctx context.Context, method, path string, header http.Header, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	// The two public endpoints never carry a token: a 401 from them is a
	// credential failure, not a stale session.
	authed := false
	if c.tokens != nil && path != "/login" && path != "/register" {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
			authed = true
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := decodeDetail(resp.Body)
		c.log.Warn("service request failed",
			"method", method, "path", path, "status", resp.StatusCode, "detail", detail)
		if resp.StatusCode == http.StatusUnauthorized {
			if authed && c.onUnauthorized != nil {
				c.onUnauthorized()
			}
			if detail == "" {
				return ErrUnauthorized
			}
			return fmt.Errorf("%w: %s", ErrUnauthorized, detail)
		}
		return &Error{Status: resp.StatusCode, Detail: detail}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeDetail(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 4*1024))
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return strings.TrimSpace(string(body))
}
