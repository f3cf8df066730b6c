package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"vn.io.arda/realtime/internal/connection"
	"vn.io.arda/realtime/internal/domain"
	"vn.io.arda/realtime/internal/infrastructure/memory"
)

// Poll source names.
const (
	PollSourceNone     = ""
	PollSourceHTTP     = "http"
	PollSourcePostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Transport     TransportConfig     `mapstructure:"transport"`
	Poll          PollConfig          `mapstructure:"poll"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"`
	// APIToken guards the local API. Empty disables the check.
	APIToken     string   `mapstructure:"api_token"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// TransportConfig configures the persistent connection. An empty URL disables it.
type TransportConfig struct {
	URL                  string `mapstructure:"url"`
	MaxReconnectAttempts int    `mapstructure:"max_reconnect_attempts"`
	ReconnectIntervalMS  int    `mapstructure:"reconnect_interval_ms"`
	Backoff              string `mapstructure:"backoff"` // fixed | exponential
	JitterMS             int    `mapstructure:"jitter_ms"`
	MaxBackoffMS         int    `mapstructure:"max_backoff_ms"`
	WriteTimeoutMS       int    `mapstructure:"write_timeout_ms"`
}

type PollConfig struct {
	Source     string `mapstructure:"source"` // "" | http | postgres
	URL        string `mapstructure:"url"`
	IntervalMS int    `mapstructure:"interval_ms"`
	Limit      int    `mapstructure:"limit"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type NotificationsConfig struct {
	Capacity   int      `mapstructure:"capacity"`
	AlertKinds []string `mapstructure:"alert_kinds"`
}

// Load reads configuration from environment variables and config files.
// Environment variables override file values. Prefix: ARDA_RT_
// A non-empty file is read strictly; otherwise ./config.yaml and
// ./config/config.yaml are tried.
func Load(file string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", "8095")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.api_token", "")
	v.SetDefault("server.allow_origins", []string{"*"})
	v.SetDefault("transport.url", "")
	v.SetDefault("transport.max_reconnect_attempts", connection.DefaultMaxReconnectAttempts)
	v.SetDefault("transport.reconnect_interval_ms", connection.DefaultReconnectInterval.Milliseconds())
	v.SetDefault("transport.backoff", connection.BackoffFixed)
	v.SetDefault("transport.jitter_ms", 0)
	v.SetDefault("transport.max_backoff_ms", connection.DefaultMaxBackoff.Milliseconds())
	v.SetDefault("transport.write_timeout_ms", connection.DefaultWriteTimeout.Milliseconds())
	v.SetDefault("poll.source", PollSourceNone)
	v.SetDefault("poll.url", "")
	v.SetDefault("poll.interval_ms", 30000)
	v.SetDefault("poll.limit", 50)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "arda_realtime")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("notifications.capacity", memory.DefaultCapacity)
	v.SetDefault("notifications.alert_kinds", kindStrings(memory.DefaultAlertKinds))

	// Environment variables (e.g. ARDA_RT_TRANSPORT_URL -> transport.url)
	v.SetEnvPrefix("ARDA_RT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Also support simple env vars without prefix for Docker Compose convenience
	_ = v.BindEnv("database.host", "ARDA_RT_DATABASE_HOST", "DB_HOST")
	_ = v.BindEnv("database.port", "ARDA_RT_DATABASE_PORT", "DB_PORT")
	_ = v.BindEnv("database.name", "ARDA_RT_DATABASE_NAME", "DB_NAME")
	_ = v.BindEnv("database.user", "ARDA_RT_DATABASE_USER", "DB_USER")
	_ = v.BindEnv("database.password", "ARDA_RT_DATABASE_PASSWORD", "DB_PASSWORD")
	_ = v.BindEnv("transport.url", "ARDA_RT_TRANSPORT_URL", "REALTIME_URL")
	_ = v.BindEnv("server.port", "ARDA_RT_SERVER_PORT", "PORT")

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		_ = v.ReadInConfig() // Not required
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		fail("server.port: %q is not a port", c.Server.Port)
	}

	t := c.Transport
	if t.URL != "" {
		if u, err := url.Parse(t.URL); err != nil || u.Scheme == "" {
			fail("transport.url: invalid url %q", t.URL)
		}
	}
	if t.MaxReconnectAttempts < 0 {
		fail("transport.max_reconnect_attempts: must be >= 0")
	}
	if t.ReconnectIntervalMS <= 0 {
		fail("transport.reconnect_interval_ms: must be > 0")
	}
	if t.JitterMS < 0 {
		fail("transport.jitter_ms: must be >= 0")
	}
	if t.MaxBackoffMS <= 0 || t.WriteTimeoutMS <= 0 {
		fail("transport: max_backoff_ms and write_timeout_ms must be > 0")
	}
	switch t.Backoff {
	case connection.BackoffFixed, connection.BackoffExponential:
	default:
		fail("transport.backoff: unknown strategy %q", t.Backoff)
	}

	p := c.Poll
	switch p.Source {
	case PollSourceNone, PollSourcePostgres:
	case PollSourceHTTP:
		if p.URL == "" {
			fail("poll.url: required for the http source")
		}
	default:
		fail("poll.source: unknown source %q", p.Source)
	}
	if p.Source != PollSourceNone && p.IntervalMS <= 0 {
		fail("poll.interval_ms: must be > 0")
	}
	if p.Limit <= 0 {
		fail("poll.limit: must be > 0")
	}

	if c.Notifications.Capacity <= 0 {
		fail("notifications.capacity: must be > 0")
	}
	for _, k := range c.Notifications.AlertKinds {
		if domain.ParseKind(k) != domain.Kind(k) {
			fail("notifications.alert_kinds: unknown kind %q", k)
		}
	}

	return errors.Join(errs...)
}

// ConnectionOptions maps the transport section onto connection.Options.
// Tokens are supplied per session.
func (t TransportConfig) ConnectionOptions() connection.Options {
	return connection.Options{
		URL:                  t.URL,
		MaxReconnectAttempts: t.MaxReconnectAttempts,
		ReconnectInterval:    ms(t.ReconnectIntervalMS),
		Backoff:              t.Backoff,
		Jitter:               ms(t.JitterMS),
		MaxBackoff:           ms(t.MaxBackoffMS),
		WriteTimeout:         ms(t.WriteTimeoutMS),
	}
}

// Interval returns the poll period.
func (p PollConfig) Interval() time.Duration { return ms(p.IntervalMS) }

// StoreOptions maps the notifications section onto memory.Options.
func (n NotificationsConfig) StoreOptions(alerter memory.Alerter) memory.Options {
	kinds := make([]domain.Kind, 0, len(n.AlertKinds))
	for _, k := range n.AlertKinds {
		kinds = append(kinds, domain.ParseKind(k))
	}
	return memory.Options{Capacity: n.Capacity, AlertKinds: kinds, Alerter: alerter}
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + strconv.Itoa(d.Port) +
		" dbname=" + d.Name +
		" user=" + d.User +
		" password=" + d.Password +
		" sslmode=disable"
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func kindStrings(kinds []domain.Kind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
