package feed

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
	"strconv"
	"strings"
	"time"

	"quacker/backend/internal/models"

	"github.com/gorilla/websocket"
)

var (
	// ErrUnauthenticated means the server has no session for this client
	ErrUnauthenticated = errors.New("not logged in")
	// ErrServerUnavailable means the server could not reach its message store
	ErrServerUnavailable = errors.New("server unavailable")
)

// APIError is a non-2xx answer from the server
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server answered %d", e.Status)
	}
	return fmt.Sprintf("server answered %d %s: %s", e.Status, e.Code, e.Message)
}

// Is maps status codes onto the package sentinels
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthenticated:
		return e.Status == http.StatusUnauthorized
	case ErrServerUnavailable:
		return e.Status == http.StatusServiceUnavailable
	}
	return false
}

// HTTPClient talks to the chat server. It keeps the session cookie in a
// cookie jar, so one HTTPClient is one logged-in user.
type HTTPClient struct {
	base   *url.URL
	client *http.Client
}

// NewHTTPClient creates a client for the server at baseURL. hc may be nil;
// a cookie jar is attached when it has none.
func NewHTTPClient(baseURL string, hc *http.Client) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported server url scheme %q", base.Scheme)
	}

	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		hc.Jar = jar
	}
	return &HTTPClient{base: base, client: hc}, nil
}

type sessionBody struct {
	Nickname string `json:"nickname"`
}

// Login starts a session and returns the nickname the server accepted
func (c *HTTPClient) Login(ctx context.Context, nickname string) (string, error) {
	var out sessionBody
	if err := c.do(ctx, http.MethodPost, "/login", nil, sessionBody{Nickname: nickname}, &out); err != nil {
		return "", err
	}
	return out.Nickname, nil
}

// Session returns the nickname of the current session
func (c *HTTPClient) Session(ctx context.Context) (string, error) {
	var out sessionBody
	if err := c.do(ctx, http.MethodGet, "/session", nil, nil, &out); err != nil {
		return "", err
	}
	return out.Nickname, nil
}

// Logout ends the session
func (c *HTTPClient) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/logout", nil, nil, nil)
}

// Fetch implements Fetcher with GET /chat. An absent upper bound is sent
// as to=-1.
func (c *HTTPClient) Fetch(ctx context.Context, req models.RangeRequest) ([]models.Message, error) {
	to := int64(-1)
	if req.To != nil {
		to = *req.To
	}
	q := url.Values{
		"from":  {strconv.FormatInt(req.From, 10)},
		"to":    {strconv.FormatInt(to, 10)},
		"limit": {strconv.Itoa(req.Limit)},
	}

	var out []models.Message
	if err := c.do(ctx, http.MethodGet, "/chat", q, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Message{}
	}
	return out, nil
}

// Post appends body as the session user
func (c *HTTPClient) Post(ctx context.Context, body string) (models.Message, error) {
	var out models.Message
	err := c.do(ctx, http.MethodPost, "/chat", nil, map[string]string{"message": body}, &out)
	return out, err
}

// DialNotifications opens the post notification socket with the session cookie
func (c *HTTPClient) DialNotifications(ctx context.Context) (*websocket.Conn, error) {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
		Jar:              c.client.Jar,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode}
		}
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}
	return conn, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query.Encode()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
