package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gramcare/gramcare/internal/api"
	"github.com/gramcare/gramcare/internal/flow"
	"github.com/gramcare/gramcare/internal/genai"
	"github.com/gramcare/gramcare/internal/lockfile"
	"github.com/gramcare/gramcare/internal/messaging"
	"github.com/gramcare/gramcare/internal/store"
	"github.com/gramcare/gramcare/internal/twiliowhatsapp"
	"github.com/gramcare/gramcare/internal/util"
	"github.com/gramcare/gramcare/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for GramCare state data
	DefaultStateDir = "/var/lib/gramcare"
	// DefaultWhatsAppDBFileName is the default whatsmeow session database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultAppDBFileName is the default profile store database filename
	DefaultAppDBFileName = "gramcare.db"

	// ChannelTwilio routes WhatsApp traffic through the Twilio webhook/REST API.
	ChannelTwilio = "twilio"
	// ChannelWhatsApp connects directly via whatsmeow.
	ChannelWhatsApp = "whatsapp"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// One instance per state directory; the whatsmeow session and SQLite
	// store do not tolerate concurrent writers.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer lock.Release()

	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	apiOpts := buildAPIOptions(flags)
	coordOpts := buildCoordinatorOptions(config)

	slog.Info("Bootstrapping GramCare", "channel", *flags.channel)
	if err := api.Run(storeOpts, genaiOpts, buildServiceFactory(flags), coordOpts, apiOpts...); err != nil {
		slog.Error("GramCare failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("GramCare exited successfully")
}

// Config holds environment configuration
type Config struct {
	WhatsAppDBDSN    string
	ApplicationDBDSN string
	StateDir         string
	OpenAIKey        string
	APIAddr          string
	Channel          string
	ReminderCron     string
	SerializeSenders bool
}

// Flags holds command line flag values
type Flags struct {
	qrOutput      *string
	numeric       *bool
	stateDir      *string
	whatsappDBDSN *string
	appDBDSN      *string
	openaiKey     *string
	apiAddr       *string
	channel       *string
	reminderCron  *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and
// the .env file.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		WhatsAppDBDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		ApplicationDBDSN: os.Getenv("DATABASE_DSN"),
		StateDir:         os.Getenv("GRAMCARE_STATE_DIR"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		APIAddr:          os.Getenv("API_ADDR"),
		Channel:          os.Getenv("GRAMCARE_CHANNEL"),
		ReminderCron:     os.Getenv("REMINDER_CRON"),
		SerializeSenders: util.ParseBoolEnv("GRAMCARE_SERIALIZE_SENDERS", true),
	}

	// DATABASE_URL is the legacy name for the application store DSN.
	if config.ApplicationDBDSN == "" {
		config.ApplicationDBDSN = os.Getenv("DATABASE_URL")
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No GRAMCARE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.Channel == "" {
		config.Channel = ChannelTwilio
	}

	if config.WhatsAppDBDSN == "" {
		config.WhatsAppDBDSN = "file:" + filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
		slog.Debug("No WhatsApp session DSN provided, defaulting to SQLite", "sqlite_path", config.WhatsAppDBDSN)
	}
	if config.ApplicationDBDSN == "" {
		config.ApplicationDBDSN = filepath.Join(config.StateDir, DefaultAppDBFileName)
		slog.Debug("No application DSN provided, defaulting to SQLite", "sqlite_path", config.ApplicationDBDSN)
	}

	slog.Debug("environment variables loaded",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDBDSN != "",
		"DATABASE_DSN_SET", config.ApplicationDBDSN != "",
		"GRAMCARE_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"GRAMCARE_CHANNEL", config.Channel,
		"REMINDER_CRON", config.ReminderCron,
		"GRAMCARE_SERIALIZE_SENDERS", config.SerializeSenders)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:      flag.String("qr-output", "", "path to write the WhatsApp login QR code"),
		numeric:       flag.Bool("numeric-code", false, "use a numeric WhatsApp login code instead of a QR code"),
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for GramCare data (overrides $GRAMCARE_STATE_DIR)"),
		whatsappDBDSN: flag.String("whatsapp-db-dsn", config.WhatsAppDBDSN, "whatsmeow session database DSN (overrides $WHATSAPP_DB_DSN)"),
		appDBDSN:      flag.String("db-dsn", config.ApplicationDBDSN, "profile store database DSN (overrides $DATABASE_DSN or $DATABASE_URL)"),
		openaiKey:     flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		channel:       flag.String("channel", config.Channel, "WhatsApp channel: twilio or whatsapp (overrides $GRAMCARE_CHANNEL)"),
		reminderCron:  flag.String("reminder-cron", config.ReminderCron, "cron expression for onboarding nudges (overrides $REMINDER_CRON)"),
	}

	flag.Parse()

	// Retarget defaulted SQLite paths when the state directory was changed
	// on the command line.
	if *flags.whatsappDBDSN == config.WhatsAppDBDSN && *flags.stateDir != config.StateDir {
		*flags.whatsappDBDSN = "file:" + filepath.Join(*flags.stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}
	if *flags.appDBDSN == config.ApplicationDBDSN && *flags.stateDir != config.StateDir {
		*flags.appDBDSN = filepath.Join(*flags.stateDir, DefaultAppDBFileName)
	}

	return flags
}

// ensureDirectoriesExist creates the directories file-based databases live in
func ensureDirectoriesExist(flags Flags) error {
	for _, dsn := range []string{*flags.appDBDSN, *flags.whatsappDBDSN} {
		if store.DetectDSNType(dsn) == "postgres" {
			continue
		}
		dir := filepath.Dir(sqliteFilePath(dsn))
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return os.MkdirAll(*flags.stateDir, 0755)
}

// sqliteFilePath strips the file: scheme and query options from a SQLite DSN.
func sqliteFilePath(dsn string) string {
	path := dsn
	if len(path) > 5 && path[:5] == "file:" {
		path = path[5:]
	}
	for i := 0; i < len(path); i++ {
		if path[i] == '?' {
			return path[:i]
		}
	}
	return path
}

// buildStoreOptions constructs profile store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.appDBDSN == "" {
		slog.Debug("No database DSN provided, will use in-memory store")
		return storeOpts
	}
	if store.DetectDSNType(*flags.appDBDSN) == "postgres" {
		storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.appDBDSN))
	} else {
		storeOpts = append(storeOpts, store.WithSQLiteDSN(sqliteFilePath(*flags.appDBDSN)))
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.reminderCron != "" {
		apiOpts = append(apiOpts, api.WithReminderCron(*flags.reminderCron))
	}
	return apiOpts
}

// buildCoordinatorOptions constructs conversation coordinator options
func buildCoordinatorOptions(config Config) []flow.CoordinatorOption {
	var coordOpts []flow.CoordinatorOption
	if !config.SerializeSenders {
		slog.Warn("Per-sender serialization disabled; concurrent messages from one sender may race")
		coordOpts = append(coordOpts, flow.WithSenderSerialization(false))
	}
	return coordOpts
}

// buildWhatsAppOptions constructs whatsmeow client configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.whatsappDBDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.whatsappDBDSN))
	}
	return waOpts
}

// buildServiceFactory returns the messaging service constructor for the
// selected channel. The factory receives the inbound handler because the
// direct WhatsApp channel delivers messages as events rather than webhooks.
func buildServiceFactory(flags Flags) func(messaging.Handler) (messaging.Service, error) {
	return func(handler messaging.Handler) (messaging.Service, error) {
		switch *flags.channel {
		case ChannelWhatsApp:
			waClient, err := whatsapp.NewClient(buildWhatsAppOptions(flags)...)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize WhatsApp client: %w", err)
			}
			return messaging.NewWhatsAppService(waClient, handler), nil
		case ChannelTwilio:
			twClient, err := twiliowhatsapp.NewClient()
			if err != nil {
				return nil, fmt.Errorf("failed to initialize Twilio client: %w", err)
			}
			return messaging.NewTwilioService(twClient), nil
		default:
			return nil, fmt.Errorf("unknown channel %q", *flags.channel)
		}
	}
}
