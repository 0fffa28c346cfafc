package config

import (
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/httpapi"
	"github.com/MrEthical07/authcore/internal/obs"
	"github.com/MrEthical07/authcore/internal/users"
	"github.com/redis/go-redis/v9"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

type Redis struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Options converts to go-redis client options.
func (r Redis) Options() *redis.Options {
	return &redis.Options{
		Addr:         r.Addr,
		Password:     r.Password,
		DB:           r.DB,
		PoolSize:     r.PoolSize,
		DialTimeout:  r.DialTimeout,
		ReadTimeout:  r.ReadTimeout,
		WriteTimeout: r.WriteTimeout,
	}
}

type DB struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

func (d DB) Pool() users.PoolConfig {
	return users.PoolConfig{
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		ConnMaxIdleTime: d.ConnMaxIdleTime,
		QueryTimeout:    d.QueryTimeout,
	}
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type JWT struct {
	Secret    string        `mapstructure:"secret"`
	Issuer    string        `mapstructure:"issuer"`
	AccessTTL time.Duration `mapstructure:"access_ttl"`
	Leeway    time.Duration `mapstructure:"leeway"`
}

type Session struct {
	RefreshTTL        time.Duration `mapstructure:"refresh_ttl"`
	MaxActiveSessions int           `mapstructure:"max_active_sessions"`
	Namespace         string        `mapstructure:"namespace"`
	RetryAttempts     int           `mapstructure:"retry_attempts"`
}

type Throttle struct {
	MaxAttempts           int           `mapstructure:"max_attempts"`
	MaxIPAttempts         int           `mapstructure:"max_ip_attempts"`
	Window                time.Duration `mapstructure:"window"`
	FailureAlertThreshold int           `mapstructure:"failure_alert_threshold"`
	MetricsRetention      time.Duration `mapstructure:"metrics_retention"`
}

type Password struct {
	Memory           uint32 `mapstructure:"memory"`
	Time             uint32 `mapstructure:"time"`
	Parallelism      uint8  `mapstructure:"parallelism"`
	SaltLength       uint32 `mapstructure:"salt_length"`
	KeyLength        uint32 `mapstructure:"key_length"`
	MaxPasswordBytes int    `mapstructure:"max_password_bytes"`
}

type Authz struct {
	Roles    map[string][]string `mapstructure:"roles"`
	CacheTTL time.Duration       `mapstructure:"cache_ttl"`
}

type Audit struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
	DropIfFull bool `mapstructure:"drop_if_full"`
}

type Metrics struct {
	Enabled           bool `mapstructure:"enabled"`
	LatencyHistograms bool `mapstructure:"latency_histograms"`
}

// Telemetry configures OTLP metric push. An empty endpoint disables it.
type Telemetry struct {
	OTLPEndpoint   string        `mapstructure:"otlp_endpoint"`
	OTLPInsecure   bool          `mapstructure:"otlp_insecure"`
	ExportInterval time.Duration `mapstructure:"export_interval"`
}

type HTTP struct {
	CookieSecure   bool    `mapstructure:"cookie_secure"`
	MaxBodyBytes   int64   `mapstructure:"max_body_bytes"`
	EdgeRate       float64 `mapstructure:"edge_rate"`
	EdgeBurst      int     `mapstructure:"edge_burst"`
	EdgeMaxClients int     `mapstructure:"edge_max_clients"`
	TrustForwarded bool    `mapstructure:"trust_forwarded"`
}

// Config is the full authd configuration.
type Config struct {
	App      App      `mapstructure:"app"`
	Server   Server   `mapstructure:"server"`
	Redis    Redis    `mapstructure:"redis"`
	DB       DB       `mapstructure:"db"`
	Log      Log      `mapstructure:"log"`
	JWT      JWT      `mapstructure:"jwt"`
	Session  Session  `mapstructure:"session"`
	Throttle Throttle `mapstructure:"throttle"`
	Password Password `mapstructure:"password"`
	Authz    Authz    `mapstructure:"authz"`
	Audit    Audit    `mapstructure:"audit"`
	Metrics  Metrics  `mapstructure:"metrics"`
	HTTP     HTTP     `mapstructure:"http"`

	Telemetry Telemetry `mapstructure:"telemetry"`
}

// Engine returns the engine section as an authcore.Config.
func (c *Config) Engine() authcore.Config {
	return authcore.Config{
		JWT: authcore.JWTConfig{
			Secret:    []byte(c.JWT.Secret),
			AccessTTL: c.JWT.AccessTTL,
			Issuer:    c.JWT.Issuer,
			Leeway:    c.JWT.Leeway,
		},
		Session: authcore.SessionConfig{
			RefreshTTL:        c.Session.RefreshTTL,
			MaxActiveSessions: c.Session.MaxActiveSessions,
			Namespace:         c.Session.Namespace,
			RetryAttempts:     c.Session.RetryAttempts,
		},
		Throttle: authcore.ThrottleConfig{
			MaxAttempts:           c.Throttle.MaxAttempts,
			MaxIPAttempts:         c.Throttle.MaxIPAttempts,
			Window:                c.Throttle.Window,
			FailureAlertThreshold: c.Throttle.FailureAlertThreshold,
			MetricsRetention:      c.Throttle.MetricsRetention,
		},
		Password: authcore.PasswordConfig{
			Memory:           c.Password.Memory,
			Time:             c.Password.Time,
			Parallelism:      c.Password.Parallelism,
			SaltLength:       c.Password.SaltLength,
			KeyLength:        c.Password.KeyLength,
			MaxPasswordBytes: c.Password.MaxPasswordBytes,
		},
		Authz: authcore.AuthzConfig{
			Roles:    c.Authz.Roles,
			CacheTTL: c.Authz.CacheTTL,
		},
		Audit: authcore.AuditConfig{
			Enabled:    c.Audit.Enabled,
			BufferSize: c.Audit.BufferSize,
			DropIfFull: c.Audit.DropIfFull,
		},
		Metrics: authcore.MetricsConfig{
			Enabled:                 c.Metrics.Enabled,
			EnableLatencyHistograms: c.Metrics.LatencyHistograms,
		},
	}
}

func (c *Config) LoggerConfig() obs.LogConfig {
	return obs.LogConfig{
		Level:   c.Log.Level,
		Pretty:  c.Log.Pretty,
		Service: c.App.Name,
		Env:     c.App.Env,
		Version: c.App.Version,
	}
}

func (c *Config) HTTPConfig() httpapi.Config {
	return httpapi.Config{
		CookieSecure:   c.HTTP.CookieSecure,
		RefreshTTL:     c.Session.RefreshTTL,
		MaxBodyBytes:   c.HTTP.MaxBodyBytes,
		EdgeRate:       c.HTTP.EdgeRate,
		EdgeBurst:      c.HTTP.EdgeBurst,
		EdgeMaxClients: c.HTTP.EdgeMaxClients,
		TrustForwarded: c.HTTP.TrustForwarded,
	}
}

func (c *Config) TelemetryConfig() obs.TelemetryConfig {
	return obs.TelemetryConfig{
		OTLPEndpoint: c.Telemetry.OTLPEndpoint,
		Insecure:     c.Telemetry.OTLPInsecure,
		Interval:     c.Telemetry.ExportInterval,
		Service:      c.App.Name,
		Version:      c.App.Version,
	}
}
