package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/yomakenya/smsbridge/internal/advanta"
	"github.com/yomakenya/smsbridge/internal/api"
	"github.com/yomakenya/smsbridge/internal/convstore"
	"github.com/yomakenya/smsbridge/internal/messaging"
	"github.com/yomakenya/smsbridge/internal/refdata"
	"github.com/yomakenya/smsbridge/internal/store"
	"github.com/yomakenya/smsbridge/internal/util"
	"github.com/yomakenya/smsbridge/internal/yoma"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for bridge state data
	DefaultStateDir = "/var/lib/smsbridge"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "smsbridge.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Build module options
	storeOpts := buildStoreOptions(flags)
	convOpts := buildConversationOptions(config)
	advantaOpts := buildAdvantaOptions(config)
	twilioOpts := buildTwilioOptions(config)
	yomaOpts := buildYomaOptions(config)
	apiOpts := buildAPIOptions(config, flags)

	slog.Info("Bootstrapping SMS bridge with configured modules")
	slog.Debug("Module options counts",
		"store", len(storeOpts), "conv", len(convOpts), "advanta", len(advantaOpts),
		"twilio", len(twilioOpts), "yoma", len(yomaOpts), "api", len(apiOpts))
	if err := api.Run(storeOpts, convOpts, advantaOpts, twilioOpts, yomaOpts, apiOpts); err != nil {
		slog.Error("SMS bridge failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("SMS bridge exited successfully")
}

// Config holds environment configuration
type Config struct {
	APIAddr         string
	WebhookToken    string
	SMSProvider     string
	CountryCode     string
	DatabaseURL     string
	StateDir        string
	RedisURL        string
	AdvantaAPIURL   string
	AdvantaAPIKey   string
	AdvantaPartner  string
	AdvantaShort    string
	TwilioSID       string
	TwilioToken     string
	TwilioFrom      string
	YomaAPIURL      string
	YomaAuthURL     string
	YomaClientID    string
	YomaSecret      string
	MaxIdle         time.Duration
	SweepInterval   time.Duration
	ExternalTimeout time.Duration
	RefdataTTL      time.Duration
}

// Flags holds command line flag values
type Flags struct {
	apiAddr      *string
	dbDSN        *string
	stateDir     *string
	webhookToken *string
	smsProvider  *string
	countryCode  *string
}

// initializeLogger sets up structured logging. LOG_DEBUG=true lowers the
// level to debug.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("LOG_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		APIAddr:         os.Getenv("API_ADDR"),
		WebhookToken:    os.Getenv("ADVANTA_TOKEN"),
		SMSProvider:     os.Getenv("SMS_PROVIDER"),
		CountryCode:     os.Getenv("COUNTRY_CODE"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StateDir:        util.GetEnvOrDefault("SMSBRIDGE_STATE_DIR", DefaultStateDir),
		RedisURL:        os.Getenv("REDIS_URL"),
		AdvantaAPIURL:   os.Getenv("ADVANTA_SMS_API_URL"),
		AdvantaAPIKey:   os.Getenv("ADVANTA_SMS_API_KEY"),
		AdvantaPartner:  os.Getenv("ADVANTA_PARTNER_ID"),
		AdvantaShort:    os.Getenv("ADVANTA_SHORTCODE"),
		TwilioSID:       os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:     os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:      os.Getenv("TWILIO_FROM_NUMBER"),
		YomaAPIURL:      os.Getenv("YOMA_API_URL"),
		YomaAuthURL:     os.Getenv("YOMA_AUTH_URL"),
		YomaClientID:    os.Getenv("YOMA_CLIENT_ID"),
		YomaSecret:      os.Getenv("YOMA_CLIENT_SECRET"),
		MaxIdle:         util.ParseDurationEnv("CONVERSATION_MAX_IDLE", convstore.DefaultMaxIdle),
		SweepInterval:   util.ParseDurationEnv("SWEEP_INTERVAL", convstore.DefaultSweepInterval),
		ExternalTimeout: util.ParseDurationEnv("EXTERNAL_TIMEOUT", 0),
		RefdataTTL:      util.ParseDurationEnv("REFDATA_TTL", refdata.DefaultTTL),
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"API_ADDR", config.APIAddr,
		"ADVANTA_TOKEN_SET", config.WebhookToken != "",
		"SMS_PROVIDER", config.SMSProvider,
		"COUNTRY_CODE", config.CountryCode,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"SMSBRIDGE_STATE_DIR", config.StateDir,
		"REDIS_URL_SET", config.RedisURL != "",
		"ADVANTA_SMS_API_KEY_SET", config.AdvantaAPIKey != "",
		"TWILIO_ACCOUNT_SID_SET", config.TwilioSID != "",
		"YOMA_CLIENT_ID_SET", config.YomaClientID != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		apiAddr:      flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		dbDSN:        flag.String("db-dsn", config.DatabaseURL, "database DSN for the audit store (overrides $DATABASE_URL)"),
		stateDir:     flag.String("state-dir", config.StateDir, "state directory for bridge data (overrides $SMSBRIDGE_STATE_DIR)"),
		webhookToken: flag.String("webhook-token", config.WebhookToken, "aggregator webhook shared secret (overrides $ADVANTA_TOKEN)"),
		smsProvider:  flag.String("sms-provider", config.SMSProvider, "outbound SMS transport, advanta or twilio (overrides $SMS_PROVIDER)"),
		countryCode:  flag.String("country-code", config.CountryCode, "registration country code (overrides $COUNTRY_CODE)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"apiAddr", *flags.apiAddr,
		"dbDSN_set", *flags.dbDSN != "",
		"stateDir", *flags.stateDir,
		"webhookTokenSet", *flags.webhookToken != "",
		"smsProvider", *flags.smsProvider,
		"countryCode", *flags.countryCode)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// buildStoreOptions constructs audit store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL audit store")
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite audit store", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory audit store")
	}
	return storeOpts
}

// buildConversationOptions constructs conversation store configuration options
func buildConversationOptions(config Config) []convstore.Option {
	var convOpts []convstore.Option
	if config.RedisURL != "" {
		convOpts = append(convOpts, convstore.WithRedisURL(config.RedisURL))
	}
	if config.MaxIdle > 0 {
		convOpts = append(convOpts, convstore.WithMaxIdle(config.MaxIdle))
	}
	return convOpts
}

// buildAdvantaOptions constructs Advanta SMS client configuration options
func buildAdvantaOptions(config Config) []advanta.Option {
	var opts []advanta.Option
	if config.AdvantaAPIURL != "" {
		opts = append(opts, advanta.WithAPIURL(config.AdvantaAPIURL))
	}
	if config.AdvantaAPIKey != "" {
		opts = append(opts, advanta.WithAPIKey(config.AdvantaAPIKey))
	}
	if config.AdvantaPartner != "" {
		opts = append(opts, advanta.WithPartnerID(config.AdvantaPartner))
	}
	if config.AdvantaShort != "" {
		opts = append(opts, advanta.WithShortcode(config.AdvantaShort))
	}
	if config.ExternalTimeout > 0 {
		opts = append(opts, advanta.WithTimeout(config.ExternalTimeout))
	}
	return opts
}

// buildTwilioOptions constructs Twilio transport configuration options
func buildTwilioOptions(config Config) []messaging.TwilioOption {
	var opts []messaging.TwilioOption
	if config.TwilioSID != "" {
		opts = append(opts, messaging.WithAccountSID(config.TwilioSID))
	}
	if config.TwilioToken != "" {
		opts = append(opts, messaging.WithAuthToken(config.TwilioToken))
	}
	if config.TwilioFrom != "" {
		opts = append(opts, messaging.WithFromNumber(config.TwilioFrom))
	}
	return opts
}

// buildYomaOptions constructs Yoma B2B client configuration options
func buildYomaOptions(config Config) []yoma.Option {
	var opts []yoma.Option
	if config.YomaAPIURL != "" {
		opts = append(opts, yoma.WithAPIURL(config.YomaAPIURL))
	}
	if config.YomaAuthURL != "" {
		opts = append(opts, yoma.WithAuthURL(config.YomaAuthURL))
	}
	if config.YomaClientID != "" {
		opts = append(opts, yoma.WithClientID(config.YomaClientID))
	}
	if config.YomaSecret != "" {
		opts = append(opts, yoma.WithClientSecret(config.YomaSecret))
	}
	if config.ExternalTimeout > 0 {
		opts = append(opts, yoma.WithTimeout(config.ExternalTimeout))
	}
	return opts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(config Config, flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.webhookToken != "" {
		apiOpts = append(apiOpts, api.WithWebhookToken(*flags.webhookToken))
	}
	if *flags.smsProvider != "" {
		apiOpts = append(apiOpts, api.WithSMSProvider(*flags.smsProvider))
	}
	if *flags.countryCode != "" {
		apiOpts = append(apiOpts, api.WithCountryCode(*flags.countryCode))
	}
	if config.ExternalTimeout > 0 {
		apiOpts = append(apiOpts, api.WithExternalTimeout(config.ExternalTimeout))
	}
	if config.SweepInterval > 0 {
		apiOpts = append(apiOpts, api.WithSweepInterval(config.SweepInterval))
	}
	if config.RefdataTTL > 0 {
		apiOpts = append(apiOpts, api.WithRefdataTTL(config.RefdataTTL))
	}
	return apiOpts
}
