package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gramcare/gramcare/internal/messaging"
	"github.com/gramcare/gramcare/internal/models"
)

// clearConfigEnv removes every environment variable the config loader
// reads so defaults can be asserted deterministically.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"WHATSAPP_DB_DSN", "DATABASE_DSN", "DATABASE_URL",
		"GRAMCARE_STATE_DIR", "OPENAI_API_KEY", "API_ADDR",
		"GRAMCARE_CHANNEL", "REMINDER_CRON", "GRAMCARE_SERIALIZE_SENDERS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadEnvironmentConfigDefaults(t *testing.T) {
	clearConfigEnv(t)

	config := loadEnvironmentConfig()

	if config.StateDir != DefaultStateDir {
		t.Errorf("StateDir = %q, want %q", config.StateDir, DefaultStateDir)
	}
	expectedWhatsAppDSN := "file:" + filepath.Join(DefaultStateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	if config.WhatsAppDBDSN != expectedWhatsAppDSN {
		t.Errorf("WhatsAppDBDSN = %q, want %q", config.WhatsAppDBDSN, expectedWhatsAppDSN)
	}
	expectedAppDSN := filepath.Join(DefaultStateDir, DefaultAppDBFileName)
	if config.ApplicationDBDSN != expectedAppDSN {
		t.Errorf("ApplicationDBDSN = %q, want %q", config.ApplicationDBDSN, expectedAppDSN)
	}
	if config.Channel != ChannelTwilio {
		t.Errorf("Channel = %q, want %q", config.Channel, ChannelTwilio)
	}
	if !config.SerializeSenders {
		t.Error("SerializeSenders should default to true")
	}
}

func TestLoadEnvironmentConfigDSNPrecedence(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DATABASE_DSN", "postgres://dsn-wins/db")
	t.Setenv("DATABASE_URL", "postgres://legacy-loses/db")

	config := loadEnvironmentConfig()

	if config.ApplicationDBDSN != "postgres://dsn-wins/db" {
		t.Errorf("ApplicationDBDSN = %q, DATABASE_DSN should take precedence over DATABASE_URL", config.ApplicationDBDSN)
	}
}

func TestLoadEnvironmentConfigLegacyDatabaseURL(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DATABASE_URL", "postgres://legacy/db")

	config := loadEnvironmentConfig()

	if config.ApplicationDBDSN != "postgres://legacy/db" {
		t.Errorf("ApplicationDBDSN = %q, want legacy DATABASE_URL value", config.ApplicationDBDSN)
	}
}

func TestLoadEnvironmentConfigCustomStateDir(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("GRAMCARE_STATE_DIR", "/tmp/gramcare-test")

	config := loadEnvironmentConfig()

	if config.StateDir != "/tmp/gramcare-test" {
		t.Errorf("StateDir = %q, want /tmp/gramcare-test", config.StateDir)
	}
	expectedWhatsAppDSN := "file:/tmp/gramcare-test/whatsmeow.db?_foreign_keys=on"
	if config.WhatsAppDBDSN != expectedWhatsAppDSN {
		t.Errorf("WhatsAppDBDSN = %q, want %q", config.WhatsAppDBDSN, expectedWhatsAppDSN)
	}
	if config.ApplicationDBDSN != "/tmp/gramcare-test/gramcare.db" {
		t.Errorf("ApplicationDBDSN = %q, want state-dir SQLite default", config.ApplicationDBDSN)
	}
}

func TestLoadEnvironmentConfigSerializationOptOut(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("GRAMCARE_SERIALIZE_SENDERS", "false")

	config := loadEnvironmentConfig()

	if config.SerializeSenders {
		t.Error("SerializeSenders should honor an explicit false")
	}
}

func TestSQLiteFilePath(t *testing.T) {
	cases := []struct {
		dsn  string
		want string
	}{
		{"file:/var/lib/gramcare/whatsmeow.db?_foreign_keys=on", "/var/lib/gramcare/whatsmeow.db"},
		{"file:/tmp/app.db", "/tmp/app.db"},
		{"/tmp/plain.db", "/tmp/plain.db"},
		{"/tmp/opts.db?cache=shared", "/tmp/opts.db"},
	}
	for _, c := range cases {
		if got := sqliteFilePath(c.dsn); got != c.want {
			t.Errorf("sqliteFilePath(%q) = %q, want %q", c.dsn, got, c.want)
		}
	}
}

// testFlags builds a Flags value without going through the flag package,
// which only tolerates a single Parse per process.
func testFlags(stateDir, whatsappDSN, appDSN, openaiKey, apiAddr, channel, reminderCron string) Flags {
	qr := ""
	numeric := false
	return Flags{
		qrOutput:      &qr,
		numeric:       &numeric,
		stateDir:      &stateDir,
		whatsappDBDSN: &whatsappDSN,
		appDBDSN:      &appDSN,
		openaiKey:     &openaiKey,
		apiAddr:       &apiAddr,
		channel:       &channel,
		reminderCron:  &reminderCron,
	}
}

func TestBuildStoreOptions(t *testing.T) {
	if opts := buildStoreOptions(testFlags("", "", "", "", "", ChannelTwilio, "")); len(opts) != 0 {
		t.Errorf("empty DSN should produce no store options, got %d", len(opts))
	}
	if opts := buildStoreOptions(testFlags("", "", "postgres://host/db", "", "", ChannelTwilio, "")); len(opts) != 1 {
		t.Errorf("postgres DSN should produce one store option, got %d", len(opts))
	}
	if opts := buildStoreOptions(testFlags("", "", "file:/tmp/app.db?cache=shared", "", "", ChannelTwilio, "")); len(opts) != 1 {
		t.Errorf("sqlite DSN should produce one store option, got %d", len(opts))
	}
}

func TestBuildGenAIOptions(t *testing.T) {
	if opts := buildGenAIOptions(testFlags("", "", "", "", "", ChannelTwilio, "")); len(opts) != 0 {
		t.Errorf("no API key should produce no genai options, got %d", len(opts))
	}
	if opts := buildGenAIOptions(testFlags("", "", "", "sk-test", "", ChannelTwilio, "")); len(opts) != 1 {
		t.Errorf("API key should produce one genai option, got %d", len(opts))
	}
}

func TestBuildAPIOptions(t *testing.T) {
	if opts := buildAPIOptions(testFlags("", "", "", "", "", ChannelTwilio, "")); len(opts) != 0 {
		t.Errorf("no addr or cron should produce no API options, got %d", len(opts))
	}
	if opts := buildAPIOptions(testFlags("", "", "", "", ":9090", ChannelTwilio, "0 8 * * *")); len(opts) != 2 {
		t.Errorf("addr and cron should produce two API options, got %d", len(opts))
	}
}

func TestBuildCoordinatorOptions(t *testing.T) {
	if opts := buildCoordinatorOptions(Config{SerializeSenders: true}); len(opts) != 0 {
		t.Errorf("serialized config should produce no coordinator options, got %d", len(opts))
	}
	if opts := buildCoordinatorOptions(Config{SerializeSenders: false}); len(opts) != 1 {
		t.Errorf("opt-out should produce one coordinator option, got %d", len(opts))
	}
}

func TestBuildServiceFactoryUnknownChannel(t *testing.T) {
	factory := buildServiceFactory(testFlags("", "", "", "", "", "carrier-pigeon", ""))

	noopHandler := func(ctx context.Context, msg models.InboundMessage) (string, error) { return "", nil }
	if _, err := factory(messaging.Handler(noopHandler)); err == nil {
		t.Error("unknown channel should fail service construction")
	}
}

func TestEnsureDirectoriesExist(t *testing.T) {
	base := t.TempDir()
	stateDir := filepath.Join(base, "state")
	flags := testFlags(stateDir,
		"file:"+filepath.Join(stateDir, "whatsmeow.db")+"?_foreign_keys=on",
		filepath.Join(stateDir, "gramcare.db"),
		"", "", ChannelTwilio, "")

	if err := ensureDirectoriesExist(flags); err != nil {
		t.Fatalf("ensureDirectoriesExist: %v", err)
	}
	if info, err := os.Stat(stateDir); err != nil || !info.IsDir() {
		t.Errorf("state directory was not created: %v", err)
	}
}

func TestEnsureDirectoriesExistSkipsPostgres(t *testing.T) {
	base := t.TempDir()
	stateDir := filepath.Join(base, "state")
	flags := testFlags(stateDir, "postgres://host/sessions", "postgres://host/app", "", "", ChannelTwilio, "")

	if err := ensureDirectoriesExist(flags); err != nil {
		t.Fatalf("ensureDirectoriesExist: %v", err)
	}
	if info, err := os.Stat(stateDir); err != nil || !info.IsDir() {
		t.Errorf("state directory was not created: %v", err)
	}
}
