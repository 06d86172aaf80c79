// Package client requests upload credentials from the issuance endpoint and drives upload
// attempts through their state machine.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tendant/signed-upload/pkg/signedupload"
	"github.com/tendant/signed-upload/pkg/signedupload/credential"
)

// TransportKind selects how the issuance endpoint is reached
type TransportKind string

const (
	TransportDirect    TransportKind = "direct"
	TransportFunctions TransportKind = "functions"
)

// Config describes the issuance endpoint
type Config struct {
	Transport TransportKind
	// Endpoint is the issuer URL (direct) or the project base URL (functions).
	Endpoint     string
	FunctionName string
	AnonKey      string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// TokenSource yields the caller's current bearer token
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

// TokenFunc adapts a function to TokenSource
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Diagnostics is the test-mode answer of the issuance endpoint
type Diagnostics struct {
	TestMode      bool            `json:"test_mode"`
	Authenticated bool            `json:"authenticated"`
	Configured    map[string]bool `json:"configured"`
	Ready         bool            `json:"ready"`
}

// Client requests credentials over a Transport
type Client struct {
	transport Transport
	tokens    TokenSource
	logger    *slog.Logger
}

// NewTransport builds the transport described by cfg
func NewTransport(cfg Config) (Transport, error) {
	if cfg.Endpoint == "" {
		return nil, errNoEndpoint
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	switch TransportKind(strings.ToLower(string(cfg.Transport))) {
	case TransportDirect, "":
		return &DirectTransport{URL: cfg.Endpoint, HTTPClient: hc}, nil
	case TransportFunctions:
		return &FunctionsTransport{
			BaseURL:    cfg.Endpoint,
			Function:   cfg.FunctionName,
			AnonKey:    cfg.AnonKey,
			HTTPClient: hc,
		}, nil
	default:
		return nil, fmt.Errorf("client: unknown transport %q", cfg.Transport)
	}
}

// New creates a Client from cfg
func New(cfg Config, tokens TokenSource) (*Client, error) {
	t, err := NewTransport(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithTransport(t, tokens), nil
}

// NewWithTransport creates a Client around an existing transport
func NewWithTransport(t Transport, tokens TokenSource) *Client {
	return &Client{transport: t, tokens: tokens, logger: slog.Default()}
}

// SetLogger replaces the client's logger
func (c *Client) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

func (c *Client) token(ctx context.Context) (string, error) {
	if c.tokens == nil {
		return "", signedupload.Errorf(signedupload.KindUnauthenticated, "no session")
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", signedupload.Wrap(signedupload.KindUnauthenticated, err, "no session")
	}
	if strings.TrimSpace(token) == "" {
		return "", signedupload.Errorf(signedupload.KindUnauthenticated, "no session")
	}
	return token, nil
}

// RequestCredential asks the endpoint for a fresh bundle. A missing session fails without a
// network call.
func (c *Client) RequestCredential(ctx context.Context, req Request) (credential.RawBundle, error) {
	req.TestMode = false
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	body, err := c.transport.Invoke(ctx, token, req)
	if err != nil {
		c.logger.Debug("Credential request failed", "kind", signedupload.KindOf(err), "err", err)
		return nil, err
	}
	return decodeBundle(body)
}

// Probe runs a test-mode request, reporting which signing values the server has configured.
func (c *Client) Probe(ctx context.Context) (*Diagnostics, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	body, err := c.transport.Invoke(ctx, token, Request{TestMode: true})
	if err != nil {
		return nil, err
	}

	var d Diagnostics
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, signedupload.Wrap(signedupload.KindInternal, err, "unreadable test mode response")
	}
	return &d, nil
}
