// Package converse is the client for agent-led conversations.
//
// A Client opens a websocket to the conversation server. A Conversation
// binds that connection to local speech capture and playback, keeps the
// transcript, and produces a summary when the participant ends the session.
package converse

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-converse/pkg/core"
)

const (
	defaultBaseURL     = "http://localhost:8000"
	defaultDialTimeout = 15 * time.Second
	defaultHTTPTimeout = 30 * time.Second
)

// Client is the main entry point for the SDK.
type Client struct {
	Sessions *SessionsService

	baseURL     string
	apiBaseURL  string
	httpClient  *http.Client
	timeout     time.Duration
	dialer      *websocket.Dialer
	dialTimeout time.Duration
	logger      *slog.Logger
}

// NewClient creates a new client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     defaultBaseURL,
		dialTimeout: defaultDialTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	if c.dialer == nil {
		c.dialer = websocket.DefaultDialer
	}

	c.Sessions = &SessionsService{client: c}
	return c
}

// BaseURL returns the configured conversation server URL.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) endpoint(base, path string) (string, error) {
	rawBaseURL := strings.TrimSpace(base)
	if rawBaseURL == "" {
		return "", core.NewInvalidRequestError("base URL is not configured (set WithBaseURL)")
	}

	u, err := url.Parse(rawBaseURL)
	if err != nil || strings.TrimSpace(u.Scheme) == "" || strings.TrimSpace(u.Host) == "" {
		return "", core.NewInvalidRequestError("invalid base URL")
	}
	if u.User != nil {
		return "", core.NewInvalidRequestError("base URL must not include credentials")
	}

	u.RawQuery = ""
	u.Fragment = ""

	cleanPath := "/" + strings.TrimLeft(path, "/")
	basePath := strings.TrimSuffix(u.Path, "/")
	if basePath == "" || basePath == "/" {
		u.Path = cleanPath
	} else {
		u.Path = basePath + cleanPath
	}
	return u.String(), nil
}

func (c *Client) webSocketEndpoint(path string) (string, error) {
	endpoint, err := c.endpoint(c.baseURL, path)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", core.NewInvalidRequestError("invalid base URL")
	}
	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// already websocket scheme.
	default:
		return "", core.NewInvalidRequestError("base URL must use http(s) or ws(s)")
	}
	return u.String(), nil
}

func (c *Client) httpEndpoint(path string) (string, error) {
	base := c.apiBaseURL
	if strings.TrimSpace(base) == "" {
		base = c.baseURL
	}
	endpoint, err := c.endpoint(base, path)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", core.NewInvalidRequestError("invalid base URL")
	}
	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	return u.String(), nil
}
