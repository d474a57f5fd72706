// Package registry is the HTTP client for the remote study registry:
// a single sign-in that yields an authenticated client, and sequential bulk
// upload of payloads with rate-limit-aware retry.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

var (
	// ErrAuthentication is returned when the registry rejects the credentials.
	ErrAuthentication = errors.New("registry sign-in failed")
	// ErrProtocol is returned when a successful sign-in response violates the
	// server contract by omitting the token header.
	ErrProtocol = errors.New("sign-in response missing Authorization header")
)

// Config holds the settings for a registry client.
type Config struct {
	BaseURL  string
	Email    string
	Password string
	Timeout  time.Duration

	// MaxRetries is the per-payload rate-limit retry budget.
	MaxRetries int
	// BackoffBase is the exponential backoff base in seconds (wait is
	// base^attempt when the server supplies no Retry-After hint).
	BackoffBase float64

	Logger *slog.Logger
}

// Client is an authenticated registry transport. It is read-only after Login
// returns: the bearer token and headers never change mid-run.
type Client struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	maxRetries  int
	backoffBase float64
	log         *slog.Logger
}

// Login exchanges credentials for a bearer token and returns an authenticated
// client. Authentication is attempted exactly once: credential and
// configuration problems are not transient, so there is no retry here.
func Login(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}

	body, err := json.Marshal(map[string]string{
		"email":    cfg.Email,
		"password": cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		cfg.BaseURL+"/auth/sign_in", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create sign-in request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrAuthentication, resp.StatusCode)
	}

	token := resp.Header.Get("Authorization")
	if token == "" {
		return nil, ErrProtocol
	}

	cfg.Logger.Info("authenticated with registry",
		"base_url", cfg.BaseURL,
		"component", "registry",
	)

	return &Client{
		baseURL:     cfg.BaseURL,
		token:       token,
		httpClient:  httpClient,
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
		log:         cfg.Logger,
	}, nil
}

// setHeaders applies the fixed authenticated headers to a request.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}
