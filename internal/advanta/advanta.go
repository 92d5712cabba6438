// Package advanta wraps the Advanta SMS API used to relay outbound texts.
package advanta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// DefaultAPIURL is the Advanta send endpoint used when none is configured.
const DefaultAPIURL = "https://api.advantasms.com/send"

// DefaultRequestTimeout bounds a single send call.
const DefaultRequestTimeout = 10 * time.Second

// Opts holds configuration options for the Advanta client.
type Opts struct {
	APIURL    string
	APIKey    string
	PartnerID string
	Shortcode string
	Timeout   time.Duration
}

// Option defines a configuration option for the Advanta client.
type Option func(*Opts)

// WithAPIURL sets the Advanta send endpoint.
func WithAPIURL(url string) Option {
	return func(o *Opts) { o.APIURL = url }
}

// WithAPIKey sets the Advanta API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithPartnerID sets the Advanta partner identifier.
func WithPartnerID(id string) Option {
	return func(o *Opts) { o.PartnerID = id }
}

// WithShortcode sets the sender shortcode.
func WithShortcode(code string) Option {
	return func(o *Opts) { o.Shortcode = code }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Client sends SMS messages through the Advanta API.
type Client struct {
	httpClient *http.Client
	cfg        Opts
}

// sendRequest is the JSON body Advanta expects.
type sendRequest struct {
	PartnerID string `json:"partnerID"`
	APIKey    string `json:"apikey"`
	Shortcode string `json:"shortcode"`
	Mobile    string `json:"mobile"`
	Message   string `json:"message"`
}

// sendResponse is the (partial) JSON body Advanta returns. Only the message
// id is extracted; the rest is logged for diagnostics.
type sendResponse struct {
	Responses []struct {
		MessageID string `json:"messageid"`
	} `json:"responses"`
}

// NewClient creates an Advanta client. Options missing from opts fall back to
// environment variables, matching how the rest of the service is configured.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIURL == "" {
		cfg.APIURL = os.Getenv("ADVANTA_SMS_API_URL")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ADVANTA_SMS_API_KEY")
	}
	if cfg.PartnerID == "" {
		cfg.PartnerID = os.Getenv("ADVANTA_PARTNER_ID")
	}
	if cfg.Shortcode == "" {
		cfg.Shortcode = os.Getenv("ADVANTA_SHORTCODE")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}

	slog.Debug("Advanta client config loaded",
		"api_url", cfg.APIURL,
		"api_key_set", cfg.APIKey != "",
		"partner_id_set", cfg.PartnerID != "",
		"shortcode_set", cfg.Shortcode != "")

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("advanta API key must be provided")
	}
	if cfg.Shortcode == "" {
		return nil, fmt.Errorf("advanta shortcode must be provided")
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
	}, nil
}

// SendSMS sends a message to the given mobile number (bare digits, no plus).
// It returns the provider message id when one is present in the response.
func (c *Client) SendSMS(ctx context.Context, mobile, message string) (string, error) {
	body, err := json.Marshal(sendRequest{
		PartnerID: c.cfg.PartnerID,
		APIKey:    c.cfg.APIKey,
		Shortcode: c.cfg.Shortcode,
		Mobile:    mobile,
		Message:   message,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode advanta request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build advanta request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("Advanta send request failed", "error", err, "mobile", mobile)
		return "", fmt.Errorf("advanta send failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read advanta response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("Advanta send rejected", "status", resp.StatusCode, "mobile", mobile, "body", string(respBody))
		return "", fmt.Errorf("advanta send returned status %d", resp.StatusCode)
	}

	var parsed sendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		// Delivery succeeded; the response body is only used for the message id.
		slog.Warn("Advanta response not parseable", "error", err, "mobile", mobile)
		return "", nil
	}

	messageID := ""
	if len(parsed.Responses) > 0 {
		messageID = parsed.Responses[0].MessageID
	}
	slog.Info("SMS sent via Advanta", "mobile", mobile, "message_id", messageID)
	return messageID, nil
}
