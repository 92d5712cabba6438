// Package yoma wraps the Yoma B2B API: client-credentials authentication,
// reference data lookups, and external partner user creation.
package yoma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/yomakenya/smsbridge/internal/models"
)

// Default endpoints for the Yoma production environment.
const (
	DefaultAPIURL  = "https://api.yoma.world/api/v3"
	DefaultAuthURL = "https://yoma.world/auth/realms/yoma"
)

// DefaultRequestTimeout bounds a single API call.
const DefaultRequestTimeout = 10 * time.Second

// tokenExpirySlack is subtracted from the declared token lifetime so a token
// is refreshed before it can expire mid-request.
const tokenExpirySlack = 60 * time.Second

// Opts holds configuration options for the Yoma client.
type Opts struct {
	APIURL       string
	AuthURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Option defines a configuration option for the Yoma client.
type Option func(*Opts)

// WithAPIURL sets the B2B API base URL.
func WithAPIURL(u string) Option {
	return func(o *Opts) { o.APIURL = u }
}

// WithAuthURL sets the OAuth realm base URL.
func WithAuthURL(u string) Option {
	return func(o *Opts) { o.AuthURL = u }
}

// WithClientID sets the OAuth client id.
func WithClientID(id string) Option {
	return func(o *Opts) { o.ClientID = id }
}

// WithClientSecret sets the OAuth client secret.
func WithClientSecret(secret string) Option {
	return func(o *Opts) { o.ClientSecret = secret }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Client talks to the Yoma B2B API with a cached bearer token.
type Client struct {
	httpClient *http.Client
	cfg        Opts

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a Yoma client. Options missing from opts fall back to
// environment variables.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIURL == "" {
		cfg.APIURL = os.Getenv("YOMA_API_URL")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = os.Getenv("YOMA_AUTH_URL")
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.ClientID == "" {
		cfg.ClientID = os.Getenv("YOMA_CLIENT_ID")
	}
	if cfg.ClientSecret == "" {
		cfg.ClientSecret = os.Getenv("YOMA_CLIENT_SECRET")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}

	slog.Debug("Yoma client config loaded",
		"api_url", cfg.APIURL,
		"auth_url", cfg.AuthURL,
		"client_id_set", cfg.ClientID != "",
		"client_secret_set", cfg.ClientSecret != "")

	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("yoma client id and secret must be provided")
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// authToken returns a valid bearer token, exchanging client credentials when
// the cached token is missing or near expiry.
func (c *Client) authToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
	}
	endpoint := c.cfg.AuthURL + "/protocol/openid-connect/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("Yoma token exchange failed", "error", err)
		return "", fmt.Errorf("token exchange failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		slog.Error("Yoma token exchange rejected", "status", resp.StatusCode, "body", string(body))
		return "", fmt.Errorf("token exchange returned status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token response missing access token")
	}

	c.token = tr.AccessToken
	lifetime := time.Duration(tr.ExpiresIn) * time.Second
	if lifetime > tokenExpirySlack {
		lifetime -= tokenExpirySlack
	}
	c.tokenExpiry = time.Now().Add(lifetime)
	slog.Debug("Yoma token refreshed", "expires_in_s", tr.ExpiresIn)
	return c.token, nil
}

// Lookup fetches the reference data list for a category (e.g. "gender",
// "education") from the B2B API.
func (c *Client) Lookup(ctx context.Context, category string) ([]models.ReferenceOption, error) {
	token, err := c.authToken(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/lookup/%s", c.cfg.APIURL, url.PathEscape(category))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build lookup request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("Yoma lookup failed", "error", err, "category", category)
		return nil, fmt.Errorf("lookup %s failed: %w", category, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("lookup %s: %w", category, models.ErrUnknownCategory)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		slog.Error("Yoma lookup rejected", "status", resp.StatusCode, "category", category, "body", string(body))
		return nil, fmt.Errorf("lookup %s returned status %d", category, resp.StatusCode)
	}

	var options []models.ReferenceOption
	if err := json.NewDecoder(resp.Body).Decode(&options); err != nil {
		return nil, fmt.Errorf("failed to decode lookup response: %w", err)
	}
	slog.Debug("Yoma lookup succeeded", "category", category, "count", len(options))
	return options, nil
}

// apiError is the error envelope the B2B API returns on failed requests.
type apiError struct {
	Message string `json:"message"`
}

// CreateUser submits a registration to the external partner endpoint and
// returns the created user. Provider errors reporting an existing account are
// mapped to models.ErrAlreadyRegistered.
func (c *Client) CreateUser(ctx context.Context, rec models.RegistrationRecord) (*models.OnboardedUser, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	token, err := c.authToken(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode registration: %w", err)
	}

	endpoint := c.cfg.APIURL + "/externalpartner/user"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build create user request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("Yoma create user failed", "error", err)
		return nil, fmt.Errorf("create user failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read create user response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ae apiError
		if err := json.Unmarshal(respBody, &ae); err == nil && strings.Contains(strings.ToLower(ae.Message), "already exists") {
			slog.Info("Yoma reports account already exists")
			return nil, models.ErrAlreadyRegistered
		}
		slog.Error("Yoma create user rejected", "status", resp.StatusCode, "body", string(respBody))
		return nil, fmt.Errorf("create user returned status %d", resp.StatusCode)
	}

	var user models.OnboardedUser
	if err := json.Unmarshal(respBody, &user); err != nil {
		return nil, fmt.Errorf("failed to decode created user: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("create user response missing id")
	}
	slog.Info("Yoma user created", "user_id", user.ID)
	return &user, nil
}
