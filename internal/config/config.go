package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Port        string
	DBDriver    string
	DBPath      string
	DatabaseURL string
	JWTSecret   string
	TokenTTL    time.Duration
	CORSOrigins []string
	AdminEmails []string

	NATSURL           string
	NATSSubjectPrefix string

	FocusSeconds      int
	ShortBreakSeconds int
	LongBreakSeconds  int
	TotalSessions     int

	PersistDebounce    time.Duration
	PersistMaxAttempts int
	PersistBackoff     time.Duration

	ControlRatePerSecond float64
	ControlRateBurst     int
	AuthCacheTTL         time.Duration

	LogLevel        string
	LogFormat       string
	TracingExporter string
	TracingEndpoint string
}

// SetDefaults registers every key with its default so that AutomaticEnv and
// Unmarshal-style lookups see it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("db_driver", DriverSQLite)
	v.SetDefault("db_path", "./data/studyhub.db")
	v.SetDefault("database_url", "")
	v.SetDefault("jwt_secret", "change-this-secret")
	v.SetDefault("token_ttl_hours", 72)
	v.SetDefault("cors_origins", "http://localhost:5173,http://127.0.0.1:5173")
	v.SetDefault("admin_emails", "")

	v.SetDefault("nats_url", "")
	v.SetDefault("nats_subject_prefix", "studyhub")

	v.SetDefault("focus_seconds", 1500)
	v.SetDefault("short_break_seconds", 300)
	v.SetDefault("long_break_seconds", 900)
	v.SetDefault("total_sessions", 4)

	v.SetDefault("persist_debounce", "5s")
	v.SetDefault("persist_max_attempts", 5)
	v.SetDefault("persist_backoff", "200ms")

	v.SetDefault("control_rate_per_second", 5.0)
	v.SetDefault("control_rate_burst", 10)
	v.SetDefault("auth_cache_ttl", "30s")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("tracing_exporter", "none")
	v.SetDefault("tracing_endpoint", "")
}

// Load reads configuration from v. Environment variables use the upper-case
// key names (PORT, DB_DRIVER, ...).
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	cfg := Config{
		Port:        v.GetString("port"),
		DBDriver:    strings.ToLower(v.GetString("db_driver")),
		DBPath:      v.GetString("db_path"),
		DatabaseURL: v.GetString("database_url"),
		JWTSecret:   v.GetString("jwt_secret"),
		TokenTTL:    time.Duration(v.GetInt("token_ttl_hours")) * time.Hour,
		CORSOrigins: splitList(v.GetString("cors_origins")),
		AdminEmails: splitList(v.GetString("admin_emails")),

		NATSURL:           v.GetString("nats_url"),
		NATSSubjectPrefix: v.GetString("nats_subject_prefix"),

		FocusSeconds:      v.GetInt("focus_seconds"),
		ShortBreakSeconds: v.GetInt("short_break_seconds"),
		LongBreakSeconds:  v.GetInt("long_break_seconds"),
		TotalSessions:     v.GetInt("total_sessions"),

		PersistDebounce:    v.GetDuration("persist_debounce"),
		PersistMaxAttempts: v.GetInt("persist_max_attempts"),
		PersistBackoff:     v.GetDuration("persist_backoff"),

		ControlRatePerSecond: v.GetFloat64("control_rate_per_second"),
		ControlRateBurst:     v.GetInt("control_rate_burst"),
		AuthCacheTTL:         v.GetDuration("auth_cache_ttl"),

		LogLevel:        v.GetString("log_level"),
		LogFormat:       v.GetString("log_format"),
		TracingExporter: strings.ToLower(v.GetString("tracing_exporter")),
		TracingEndpoint: v.GetString("tracing_endpoint"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver))
	}

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET must not be empty"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL_HOURS must be positive"))
	}
	if c.FocusSeconds <= 0 || c.ShortBreakSeconds <= 0 || c.LongBreakSeconds <= 0 {
		errs = append(errs, errors.New("phase durations must be positive"))
	}
	if c.TotalSessions <= 0 {
		errs = append(errs, errors.New("TOTAL_SESSIONS must be positive"))
	}
	if c.PersistDebounce <= 0 {
		errs = append(errs, errors.New("PERSIST_DEBOUNCE must be positive"))
	}
	if c.PersistMaxAttempts <= 0 {
		errs = append(errs, errors.New("PERSIST_MAX_ATTEMPTS must be positive"))
	}
	if c.ControlRatePerSecond < 0 {
		errs = append(errs, errors.New("CONTROL_RATE_PER_SECOND must not be negative"))
	}

	return errors.Join(errs...)
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
