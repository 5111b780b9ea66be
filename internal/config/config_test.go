package config

import (
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

var envMu sync.Mutex

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STORE_BACKEND", "mongo")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
}

func TestLoadAll_Defaults(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)
	setBaseEnv(t)

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected Server.Address default: %q", cfg.Server.Address)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "*" {
		t.Fatalf("unexpected CORS origins: %v", cfg.Server.CORSOrigins)
	}
	if cfg.Store.MongoDatabase != "boletos" {
		t.Fatalf("unexpected MongoDatabase default: %q", cfg.Store.MongoDatabase)
	}
	if cfg.Channel.Provider != "whatsmeow" || !cfg.Channel.Autostart {
		t.Fatalf("unexpected channel defaults: %+v", cfg.Channel)
	}
	if cfg.Channel.ScanTimeout != 60*time.Second || cfg.Channel.SendTimeout != 30*time.Second {
		t.Fatalf("unexpected channel timeouts: %+v", cfg.Channel)
	}
	if cfg.Channel.MaxChallenges != 3 || cfg.Channel.MaxReconnects != 5 {
		t.Fatalf("unexpected channel limits: %+v", cfg.Channel)
	}
	if cfg.Channel.DefaultRegion != "" {
		t.Fatalf("unexpected default region: %q", cfg.Channel.DefaultRegion)
	}
	if cfg.Scheduler.Interval != 24*time.Hour || cfg.Scheduler.RunHour != 9 {
		t.Fatalf("unexpected scheduler defaults: %+v", cfg.Scheduler)
	}
	if cfg.Scheduler.Window != 72*time.Hour {
		t.Fatalf("unexpected reminder window: %v", cfg.Scheduler.Window)
	}
	if cfg.AttemptLog.Backend != "file" || cfg.AttemptLog.BodyMax != 500 {
		t.Fatalf("unexpected attempt log defaults: %+v", cfg.AttemptLog)
	}
	if cfg.Storage.Backend != "local" || cfg.Storage.MaxBytes != 10<<20 {
		t.Fatalf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.Redis.Enabled {
		t.Fatalf("expected Redis disabled when REDIS_ADDR not set")
	}
	if cfg.Alert.Enabled {
		t.Fatalf("expected alerts disabled when SMTP_HOST not set")
	}
}

func TestLoadAll_WithRedisMinioAndSMTP(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)
	setBaseEnv(t)

	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_TTL_SECONDS", "42")
	t.Setenv("ATTEMPT_LOG_BACKEND", "redis")

	t.Setenv("MINIO_ENDPOINT", "localhost:9000")
	t.Setenv("MINIO_ACCESS_KEY", "ak")
	t.Setenv("MINIO_SECRET_KEY", "sk")

	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_USERNAME", "bot@example.com")
	t.Setenv("ALERT_EMAIL", "ops@example.com")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if !cfg.Redis.Enabled || cfg.Redis.DB != 3 || cfg.Redis.TTL != 42*time.Second {
		t.Fatalf("unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.AttemptLog.Backend != "redis" {
		t.Fatalf("unexpected attempt log backend: %q", cfg.AttemptLog.Backend)
	}
	if cfg.Storage.Backend != "minio" || cfg.Storage.MinIOBucket != "boletos" {
		t.Fatalf("unexpected storage config: %+v", cfg.Storage)
	}
	if !cfg.Alert.Enabled || cfg.Alert.Port != 587 || cfg.Alert.From != "bot@example.com" {
		t.Fatalf("unexpected alert config: %+v", cfg.Alert)
	}
}

func TestLoadAll_RequiredEnvMissing(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	cases := []struct {
		name string
		set  func(t *testing.T)
		want string
	}{
		{
			name: "missing MONGODB_URI",
			set:  func(t *testing.T) { t.Setenv("STORE_BACKEND", "mongo") },
			want: "MONGODB_URI",
		},
		{
			name: "missing POSTGRES_URL",
			set:  func(t *testing.T) { t.Setenv("STORE_BACKEND", "postgres") },
			want: "POSTGRES_URL",
		},
		{
			name: "missing HOSTED_API_URL",
			set: func(t *testing.T) {
				setBaseEnv(t)
				t.Setenv("CHANNEL_PROVIDER", "hosted")
			},
			want: "HOSTED_API_URL",
		},
		{
			name: "missing ALERT_EMAIL",
			set: func(t *testing.T) {
				setBaseEnv(t)
				t.Setenv("SMTP_HOST", "smtp.example.com")
			},
			want: "ALERT_EMAIL",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearTestEnv(t)
			tc.set(t)

			_, err := LoadAll()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got: %v", tc.want, err)
			}
		})
	}
}

func TestLoadAll_InvalidValues(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	cases := []struct {
		name string
		key  string
		val  string
	}{
		{"invalid SCHED_INTERVAL_SECONDS", "SCHED_INTERVAL_SECONDS", "nope"},
		{"zero SCHED_INTERVAL_SECONDS", "SCHED_INTERVAL_SECONDS", "0"},
		{"out of range SCHED_RUN_HOUR", "SCHED_RUN_HOUR", "24"},
		{"invalid CHANNEL_AUTOSTART", "CHANNEL_AUTOSTART", "maybe"},
		{"zero CHANNEL_MAX_RECONNECTS", "CHANNEL_MAX_RECONNECTS", "0"},
		{"unknown CHANNEL_PROVIDER", "CHANNEL_PROVIDER", "telegram"},
		{"unknown STORE_BACKEND", "STORE_BACKEND", "dynamo"},
		{"invalid TIMEZONE", "TIMEZONE", "Mars/Olympus"},
		{"redis log without redis", "ATTEMPT_LOG_BACKEND", "redis"},
		{"invalid REDIS_DB", "REDIS_DB", "bad"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearTestEnv(t)
			setBaseEnv(t)

			if strings.HasPrefix(tc.key, "REDIS_") {
				t.Setenv("REDIS_ADDR", "localhost:6379")
			}
			t.Setenv(tc.key, tc.val)

			_, err := LoadAll()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.key) {
				t.Fatalf("expected error mentioning %s, got: %v", tc.key, err)
			}
		})
	}
}

func TestLoadAll_ReportsAllErrors(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("CHANNEL_MAX_CHALLENGES", "x")

	_, err := LoadAll()
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	for _, key := range []string{"POSTGRES_URL", "CHANNEL_MAX_CHALLENGES"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected error mentioning %s, got: %v", key, err)
		}
	}
}

func TestRequireEnv(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	_, err := requireEnv("MISSING_KEY")
	if err == nil {
		t.Fatalf("expected error, got nil")
	}

	t.Setenv("FOO", "bar")
	v, err := requireEnv("FOO")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "bar" {
		t.Fatalf("expected %q, got %q", "bar", v)
	}
}

func TestGetEnvInt(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	got, err := getEnvInt("MISSING", 7)
	if err != nil || got != 7 {
		t.Fatalf("expected default 7, got %d err=%v", got, err)
	}

	t.Setenv("N", "123")
	got, err = getEnvInt("N", 7)
	if err != nil || got != 123 {
		t.Fatalf("expected 123, got %d err=%v", got, err)
	}

	t.Setenv("BAD", "abc")
	_, err = getEnvInt("BAD", 7)
	if err == nil || !strings.Contains(err.Error(), "BAD") {
		t.Fatalf("expected error mentioning BAD, got: %v", err)
	}
}

func TestGetEnvBool(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	if got, err := getEnvBool("MISSING", true); err != nil || !got {
		t.Fatalf("expected default true, got %v err=%v", got, err)
	}

	t.Setenv("A", "false")
	if got, err := getEnvBool("A", true); err != nil || got {
		t.Fatalf("expected false, got %v err=%v", got, err)
	}

	t.Setenv("BAD", "yes please")
	if _, err := getEnvBool("BAD", true); err == nil || !strings.Contains(err.Error(), "BAD") {
		t.Fatalf("expected error mentioning BAD, got: %v", err)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" http://a.test , ,http://b.test")
	if len(got) != 2 || got[0] != "http://a.test" || got[1] != "http://b.test" {
		t.Fatalf("unexpected list: %v", got)
	}
}

func TestJoinErrors(t *testing.T) {
	if err := joinErrors(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}

	e1 := errors.New("one")
	e2 := errors.New("two")
	err := joinErrors([]error{e1, e2})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Fatalf("expected both errors to be wrapped, got %v", err)
	}
}

func clearTestEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"SERVER_ADDRESS", "APP_ENV", "CORS_ORIGINS",
		"STORE_BACKEND", "MONGODB_URI", "MONGODB_DATABASE", "POSTGRES_URL",
		"CHANNEL_PROVIDER", "CHANNEL_AUTOSTART", "CHANNEL_SCAN_TIMEOUT_SECONDS", "CHANNEL_SEND_TIMEOUT_SECONDS",
		"CHANNEL_MAX_CHALLENGES", "CHANNEL_MAX_RECONNECTS", "CHANNEL_BACKOFF_BASE_SECONDS", "CHANNEL_BACKOFF_MAX_SECONDS",
		"RECIPIENT_DEFAULT_REGION",
		"WHATSMEOW_STORE_PATH", "WHATSMEOW_DEVICE_NAME", "WHATSMEOW_PRINT_QR", "WHATSMEOW_SENDS_PER_MINUTE",
		"HOSTED_API_URL", "HOSTED_API_KEY",
		"ATTEMPT_LOG_BACKEND", "ATTEMPT_LOG_PATH", "ATTEMPT_LOG_BODY_MAX",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "REDIS_TTL_SECONDS",
		"SCHED_INTERVAL_SECONDS", "SCHED_RUN_HOUR", "REMINDER_WINDOW_DAYS", "CRITICAL_AFTER_DAYS", "TIMEZONE",
		"UPLOAD_DIR", "UPLOAD_MAX_BYTES",
		"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_BUCKET", "MINIO_USE_SSL",
		"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM", "ALERT_EMAIL",
		"FOO", "A", "N", "BAD",
	}
	for _, k := range keys {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
}
