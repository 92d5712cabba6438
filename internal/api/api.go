// Package api provides the HTTP surface of the SMS onboarding bridge.
//
// It exposes the aggregator webhook, a health probe, a read-only audit
// listing, and Prometheus metrics, and wires the conversation engine,
// stores, messaging transport, and registration client together.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yomakenya/smsbridge/internal/advanta"
	"github.com/yomakenya/smsbridge/internal/convstore"
	"github.com/yomakenya/smsbridge/internal/flow"
	"github.com/yomakenya/smsbridge/internal/messaging"
	"github.com/yomakenya/smsbridge/internal/refdata"
	"github.com/yomakenya/smsbridge/internal/scheduler"
	"github.com/yomakenya/smsbridge/internal/store"
	"github.com/yomakenya/smsbridge/internal/yoma"
)

// Default server configuration constants
const (
	// DefaultAddr is the default API server listen address
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful shutdown on SIGINT/SIGTERM
	DefaultShutdownTimeout = 10 * time.Second
	// ProviderAdvanta selects the Advanta SMS transport
	ProviderAdvanta = "advanta"
	// ProviderTwilio selects the Twilio SMS transport
	ProviderTwilio = "twilio"
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr            string
	WebhookToken    string
	SMSProvider     string
	CountryCode     string
	ExternalTimeout time.Duration
	SweepInterval   time.Duration
	RefdataTTL      time.Duration
}

// Option configures API server options.
type Option func(*Opts)

// WithAddr sets the server listen address, falling back to the API_ADDR
// environment variable when empty.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		if addr == "" {
			addr = os.Getenv("API_ADDR")
		}
		o.Addr = addr
	}
}

// WithWebhookToken sets the aggregator shared secret, falling back to the
// ADVANTA_TOKEN environment variable when empty.
func WithWebhookToken(token string) Option {
	return func(o *Opts) {
		if token == "" {
			token = os.Getenv("ADVANTA_TOKEN")
		}
		o.WebhookToken = token
	}
}

// WithSMSProvider selects the outbound SMS transport ("advanta" or
// "twilio"), falling back to the SMS_PROVIDER environment variable.
func WithSMSProvider(provider string) Option {
	return func(o *Opts) {
		if provider == "" {
			provider = os.Getenv("SMS_PROVIDER")
		}
		o.SMSProvider = strings.ToLower(provider)
	}
}

// WithCountryCode sets the registration country, falling back to the
// COUNTRY_CODE environment variable when empty.
func WithCountryCode(code string) Option {
	return func(o *Opts) {
		if code == "" {
			code = os.Getenv("COUNTRY_CODE")
		}
		o.CountryCode = code
	}
}

// WithExternalTimeout bounds each outbound Yoma/SMS call.
func WithExternalTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.ExternalTimeout = d
	}
}

// WithSweepInterval sets the conversation sweep cadence.
func WithSweepInterval(d time.Duration) Option {
	return func(o *Opts) {
		o.SweepInterval = d
	}
}

// WithRefdataTTL sets the reference data cache TTL.
func WithRefdataTTL(d time.Duration) Option {
	return func(o *Opts) {
		o.RefdataTTL = d
	}
}

// Server handles the bridge's HTTP endpoints.
type Server struct {
	engine       *flow.Engine
	msgService   messaging.Service
	audit        store.Store
	webhookToken string
}

// NewServer creates a Server around an already-wired engine and stores.
func NewServer(engine *flow.Engine, msgService messaging.Service, audit store.Store, webhookToken string) *Server {
	return &Server{
		engine:       engine,
		msgService:   msgService,
		audit:        audit,
		webhookToken: webhookToken,
	}
}

// Handler returns the server's HTTP routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook/sms", s.webhookHandler)
	mux.HandleFunc("/send", s.sendHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/onboarded", s.onboardedHandler)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Run wires all modules from their options, starts the background sweep and
// the HTTP server, and blocks until SIGINT/SIGTERM triggers a graceful
// shutdown.
func Run(storeOpts []store.Option, convOpts []convstore.Option, advantaOpts []advanta.Option, twilioOpts []messaging.TwilioOption, yomaOpts []yoma.Option, apiOpts []Option) error {
	var cfg Opts
	for _, opt := range apiOpts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.SMSProvider == "" {
		cfg.SMSProvider = ProviderAdvanta
	}
	if cfg.ExternalTimeout <= 0 {
		cfg.ExternalTimeout = flow.DefaultExternalTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = convstore.DefaultSweepInterval
	}
	if cfg.RefdataTTL <= 0 {
		cfg.RefdataTTL = refdata.DefaultTTL
	}
	if cfg.WebhookToken == "" {
		slog.Error("API webhook token not set")
		return fmt.Errorf("webhook token not set")
	}

	// Audit store: in-memory unless a DSN was configured.
	auditStore, err := buildAuditStore(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize audit store: %w", err)
	}
	defer auditStore.Close()

	// Conversation store: Redis when a URL is configured, memory otherwise.
	var convCfg convstore.Opts
	for _, opt := range convOpts {
		opt(&convCfg)
	}
	maxIdle := convCfg.MaxIdle
	if maxIdle <= 0 {
		maxIdle = convstore.DefaultMaxIdle
	}
	var convStore convstore.Store
	if convCfg.RedisURL != "" {
		redisStore, err := convstore.NewRedisStore(context.Background(), convCfg.RedisURL, maxIdle)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis conversation store: %w", err)
		}
		defer redisStore.Close()
		convStore = redisStore
		slog.Info("Using Redis conversation store", "maxIdle", maxIdle)
	} else {
		convStore = convstore.NewInMemoryStore()
		slog.Info("Using in-memory conversation store", "maxIdle", maxIdle)
	}

	msgService, err := buildMessagingService(cfg.SMSProvider, advantaOpts, twilioOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize SMS transport: %w", err)
	}

	yomaClient, err := yoma.NewClient(yomaOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize Yoma client: %w", err)
	}

	cache := refdata.NewCache(yomaClient, cfg.RefdataTTL)
	submitter := flow.NewSubmitter(yomaClient, auditStore, cfg.CountryCode)
	engine := flow.NewEngine(convStore, cache, msgService, submitter, cfg.ExternalTimeout)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.ScheduleSweep(convStore, maxIdle, cfg.SweepInterval); err != nil {
		return fmt.Errorf("failed to schedule conversation sweep: %w", err)
	}

	server := NewServer(engine, msgService, auditStore, cfg.WebhookToken)
	httpServer := &http.Server{Addr: cfg.Addr, Handler: server.Handler()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("SMS bridge API listening", "addr", cfg.Addr, "provider", cfg.SMSProvider)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutdown signal received, draining HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
		return err
	}
	slog.Info("SMS bridge stopped")
	return nil
}

func buildAuditStore(storeOpts []store.Option) (store.Store, error) {
	var storeCfg store.Opts
	for _, opt := range storeOpts {
		opt(&storeCfg)
	}
	if storeCfg.DSN == "" {
		slog.Info("No database DSN configured, using in-memory audit store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(storeCfg.DSN) == "postgres" {
		slog.Info("Using Postgres audit store")
		return store.NewPostgresStore(storeOpts...)
	}
	slog.Info("Using SQLite audit store", "path", storeCfg.DSN)
	return store.NewSQLiteStore(storeOpts...)
}

func buildMessagingService(provider string, advantaOpts []advanta.Option, twilioOpts []messaging.TwilioOption) (messaging.Service, error) {
	switch provider {
	case ProviderTwilio:
		return messaging.NewTwilioService(twilioOpts...)
	case ProviderAdvanta:
		client, err := advanta.NewClient(advantaOpts...)
		if err != nil {
			return nil, err
		}
		return messaging.NewAdvantaService(client), nil
	default:
		return nil, fmt.Errorf("unknown SMS provider %q", provider)
	}
}
