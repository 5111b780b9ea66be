package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

type Config struct {
	Server     ServerConfig
	Store      StoreConfig
	Channel    ChannelConfig
	Whatsmeow  WhatsmeowConfig
	Hosted     HostedConfig
	AttemptLog AttemptLogConfig
	Redis      RedisConfig
	Scheduler  SchedulerConfig
	Storage    StorageConfig
	Alert      AlertConfig
}

type ServerConfig struct {
	Address     string
	Env         string
	CORSOrigins []string
}

type StoreConfig struct {
	Backend       string
	MongoURI      string
	MongoDatabase string
	PostgresURL   string
}

type ChannelConfig struct {
	Provider      string
	Autostart     bool
	ScanTimeout   time.Duration
	SendTimeout   time.Duration
	MaxChallenges int
	MaxReconnects int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	DefaultRegion string
}

type WhatsmeowConfig struct {
	StorePath      string
	DeviceName     string
	PrintQR        bool
	SendsPerMinute int
}

type HostedConfig struct {
	URL    string
	APIKey string
}

type AttemptLogConfig struct {
	Backend string
	Path    string
	BodyMax int
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type SchedulerConfig struct {
	Interval time.Duration
	// RunHour is -1 when the first sweep runs immediately.
	RunHour           int
	Window            time.Duration
	CriticalAfterDays int
	Timezone          string
}

type StorageConfig struct {
	Backend        string
	UploadDir      string
	MaxBytes       int64
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
}

type AlertConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

// LoadAll reads the process environment and reports every problem at once.
func LoadAll() (*Config, error) {
	var errs []error
	l := loader{errs: &errs}

	cfg := &Config{
		Server: ServerConfig{
			Address:     getEnv("SERVER_ADDRESS", ":8080"),
			Env:         getEnv("APP_ENV", "development"),
			CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),
		},
		Store: l.store(),
		Channel: ChannelConfig{
			Provider:      strings.ToLower(getEnv("CHANNEL_PROVIDER", "whatsmeow")),
			Autostart:     l.bool("CHANNEL_AUTOSTART", true),
			ScanTimeout:   l.seconds("CHANNEL_SCAN_TIMEOUT_SECONDS", 60),
			SendTimeout:   l.seconds("CHANNEL_SEND_TIMEOUT_SECONDS", 30),
			MaxChallenges: l.int("CHANNEL_MAX_CHALLENGES", 3),
			MaxReconnects: l.int("CHANNEL_MAX_RECONNECTS", 5),
			BackoffBase:   l.seconds("CHANNEL_BACKOFF_BASE_SECONDS", 2),
			BackoffMax:    l.seconds("CHANNEL_BACKOFF_MAX_SECONDS", 60),
			DefaultRegion: strings.ToUpper(os.Getenv("RECIPIENT_DEFAULT_REGION")),
		},
		Whatsmeow: WhatsmeowConfig{
			StorePath:      getEnv("WHATSMEOW_STORE_PATH", "data/whatsmeow.db"),
			DeviceName:     getEnv("WHATSMEOW_DEVICE_NAME", "boleto-reminder"),
			PrintQR:        l.bool("WHATSMEOW_PRINT_QR", true),
			SendsPerMinute: l.int("WHATSMEOW_SENDS_PER_MINUTE", 20),
		},
		AttemptLog: AttemptLogConfig{
			Backend: strings.ToLower(getEnv("ATTEMPT_LOG_BACKEND", "file")),
			Path:    getEnv("ATTEMPT_LOG_PATH", "data/attempts.jsonl"),
			BodyMax: l.int("ATTEMPT_LOG_BODY_MAX", 500),
		},
		Redis: l.redis(),
		Scheduler: SchedulerConfig{
			Interval:          l.seconds("SCHED_INTERVAL_SECONDS", 86400),
			RunHour:           l.int("SCHED_RUN_HOUR", 9),
			Window:            time.Duration(l.int("REMINDER_WINDOW_DAYS", 3)) * 24 * time.Hour,
			CriticalAfterDays: l.int("CRITICAL_AFTER_DAYS", 7),
			Timezone:          getEnv("TIMEZONE", "America/Sao_Paulo"),
		},
		Storage: l.storage(),
		Alert:   l.alert(),
	}

	if cfg.Channel.Provider == "hosted" {
		cfg.Hosted = HostedConfig{
			URL:    l.require("HOSTED_API_URL"),
			APIKey: os.Getenv("HOSTED_API_KEY"),
		}
	}

	validate(cfg, &errs)
	return cfg, joinErrors(errs)
}

type loader struct {
	errs *[]error
}

func (l loader) add(err error) {
	*l.errs = append(*l.errs, err)
}

func (l loader) require(key string) string {
	v, err := requireEnv(key)
	if err != nil {
		l.add(err)
	}
	return v
}

func (l loader) int(key string, def int) int {
	v, err := getEnvInt(key, def)
	if err != nil {
		l.add(err)
	}
	return v
}

func (l loader) bool(key string, def bool) bool {
	v, err := getEnvBool(key, def)
	if err != nil {
		l.add(err)
	}
	return v
}

func (l loader) seconds(key string, def int) time.Duration {
	return time.Duration(l.int(key, def)) * time.Second
}

func (l loader) store() StoreConfig {
	sc := StoreConfig{Backend: strings.ToLower(getEnv("STORE_BACKEND", "mongo"))}

	switch sc.Backend {
	case "mongo":
		sc.MongoURI = l.require("MONGODB_URI")
		sc.MongoDatabase = getEnv("MONGODB_DATABASE", "boletos")
	case "postgres":
		sc.PostgresURL = l.require("POSTGRES_URL")
	}
	return sc
}

func (l loader) redis() RedisConfig {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       l.int("REDIS_DB", 0),
		TTL:      l.seconds("REDIS_TTL_SECONDS", 86400),
	}
}

func (l loader) storage() StorageConfig {
	sc := StorageConfig{
		Backend:   "local",
		UploadDir: getEnv("UPLOAD_DIR", "uploads"),
		MaxBytes:  int64(l.int("UPLOAD_MAX_BYTES", 10<<20)),
	}

	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		return sc
	}

	sc.Backend = "minio"
	sc.MinIOEndpoint = endpoint
	sc.MinIOAccessKey = l.require("MINIO_ACCESS_KEY")
	sc.MinIOSecretKey = l.require("MINIO_SECRET_KEY")
	sc.MinIOBucket = getEnv("MINIO_BUCKET", "boletos")
	sc.MinIOUseSSL = l.bool("MINIO_USE_SSL", false)
	return sc
}

func (l loader) alert() AlertConfig {
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		return AlertConfig{Enabled: false}
	}

	return AlertConfig{
		Enabled:  true,
		Host:     host,
		Port:     l.int("SMTP_PORT", 587),
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     getEnv("SMTP_FROM", os.Getenv("SMTP_USERNAME")),
		To:       l.require("ALERT_EMAIL"),
	}
}

func validate(cfg *Config, errs *[]error) {
	fail := func(format string, args ...any) {
		*errs = append(*errs, fmt.Errorf(format, args...))
	}

	switch cfg.Store.Backend {
	case "mongo", "postgres", "memory":
	default:
		fail("STORE_BACKEND must be mongo, postgres or memory, got %q", cfg.Store.Backend)
	}
	switch cfg.Channel.Provider {
	case "whatsmeow", "hosted", "null":
	default:
		fail("CHANNEL_PROVIDER must be whatsmeow, hosted or null, got %q", cfg.Channel.Provider)
	}
	switch cfg.AttemptLog.Backend {
	case "file":
	case "redis":
		if !cfg.Redis.Enabled {
			fail("ATTEMPT_LOG_BACKEND=redis requires REDIS_ADDR")
		}
	default:
		fail("ATTEMPT_LOG_BACKEND must be file or redis, got %q", cfg.AttemptLog.Backend)
	}

	if cfg.Scheduler.Interval <= 0 {
		fail("SCHED_INTERVAL_SECONDS must be > 0")
	}
	if cfg.Scheduler.RunHour < -1 || cfg.Scheduler.RunHour > 23 {
		fail("SCHED_RUN_HOUR must be between -1 and 23")
	}
	if cfg.Scheduler.Window <= 0 {
		fail("REMINDER_WINDOW_DAYS must be > 0")
	}
	if cfg.Scheduler.CriticalAfterDays <= 0 {
		fail("CRITICAL_AFTER_DAYS must be > 0")
	}
	if _, err := time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
		fail("invalid TIMEZONE %q: %w", cfg.Scheduler.Timezone, err)
	}
	if cfg.Channel.ScanTimeout <= 0 {
		fail("CHANNEL_SCAN_TIMEOUT_SECONDS must be > 0")
	}
	if cfg.Channel.SendTimeout <= 0 {
		fail("CHANNEL_SEND_TIMEOUT_SECONDS must be > 0")
	}
	if cfg.Channel.MaxChallenges <= 0 {
		fail("CHANNEL_MAX_CHALLENGES must be > 0")
	}
	if cfg.Channel.MaxReconnects <= 0 {
		fail("CHANNEL_MAX_RECONNECTS must be > 0")
	}
	if cfg.Channel.BackoffBase <= 0 || cfg.Channel.BackoffMax < cfg.Channel.BackoffBase {
		fail("CHANNEL_BACKOFF_BASE_SECONDS must be > 0 and <= CHANNEL_BACKOFF_MAX_SECONDS")
	}
	if cfg.Whatsmeow.SendsPerMinute < 0 {
		fail("WHATSMEOW_SENDS_PER_MINUTE must be >= 0")
	}
	if cfg.AttemptLog.BodyMax <= 0 {
		fail("ATTEMPT_LOG_BODY_MAX must be > 0")
	}
	if cfg.Storage.MaxBytes <= 0 {
		fail("UPLOAD_MAX_BYTES must be > 0")
	}
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid int for env %s: %q", key, v)
	}
	return i, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("invalid bool for env %s: %q", key, v)
	}
	return b, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
