package config

import (
	"strings"
	"time"
)

// Config is the fully-resolved runtime configuration, loaded once at
// startup (see Load/LoadFromFile) and never mutated afterward.
type Config struct {
	Environment string       `mapstructure:"environment"`
	Server      ServerConfig `mapstructure:"server"`
	Auth        AuthConfig   `mapstructure:"auth"`
	Salesforce  SFConfig     `mapstructure:"salesforce"`
	Conversion  ConversionConfig `mapstructure:"conversion"`
	TemplateCache TemplateCacheConfig `mapstructure:"template_cache"`
	Poller      PollerConfig `mapstructure:"poller"`
	Images      ImagesConfig `mapstructure:"images"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Logging     LoggingConfig `mapstructure:"logging"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port            string `mapstructure:"port"`
	ReadTimeout     int    `mapstructure:"read_timeout"`
	WriteTimeout    int    `mapstructure:"write_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
	SwaggerUI       bool   `mapstructure:"swagger_ui"`
	MaxBodyBytes    int64  `mapstructure:"max_body_bytes"`
}

func (s ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}
func (s ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}
func (s ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Second
}
func (s ServerConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(s.RequestTimeout) * time.Second
}

// AuthConfig configures inbound bearer-token validation (§4.1, §4.12).
type AuthConfig struct {
	Issuer                 string `mapstructure:"issuer"`
	Audience               string `mapstructure:"audience"`
	JWKSUri                string `mapstructure:"jwks_uri"`
	AuthBypassDevelopment  bool   `mapstructure:"auth_bypass_development"`
}

// EffectiveBypass returns whether auth bypass actually applies, hard-gating
// on Environment regardless of the raw config value — per §9's "must be
// impossible to enable in any other environment regardless of config."
func (c Config) EffectiveBypass() bool {
	return c.Environment == "development" && c.Auth.AuthBypassDevelopment
}

// SFConfig configures outbound auth to the record store (§4.1, §4.2).
type SFConfig struct {
	Domain        string `mapstructure:"domain"`
	ClientID      string `mapstructure:"client_id"`
	Username      string `mapstructure:"username"`
	PrivateKeyPEM string `mapstructure:"private_key_pem"`
}

type ConversionConfig struct {
	TimeoutMs     int    `mapstructure:"timeout_ms"`
	Workdir       string `mapstructure:"workdir"`
	MaxConcurrent int    `mapstructure:"max_concurrent"`
	BinPath       string `mapstructure:"bin_path"`
}

func (c ConversionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

type TemplateCacheConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

type PollerConfig struct {
	ActiveIntervalMs int `mapstructure:"active_interval_ms"`
	IdleIntervalMs   int `mapstructure:"idle_interval_ms"`
	BatchSize        int `mapstructure:"batch_size"`
	LockTtlMs        int `mapstructure:"lock_ttl_ms"`
	MaxAttempts      int `mapstructure:"max_attempts"`
}

func (p PollerConfig) ActiveInterval() time.Duration {
	return time.Duration(p.ActiveIntervalMs) * time.Millisecond
}
func (p PollerConfig) IdleInterval() time.Duration {
	return time.Duration(p.IdleIntervalMs) * time.Millisecond
}
func (p PollerConfig) LockTTL() time.Duration {
	return time.Duration(p.LockTtlMs) * time.Millisecond
}

// ImagesConfig holds the SSRF-defense host allowlist for external image
// URLs in templates (§4.1, §4.4). Configured as a comma-separated string
// (the natural shape for an env var) and split on read.
type ImagesConfig struct {
	AllowlistRaw string `mapstructure:"allowlist_raw"`
}

func (i ImagesConfig) Allowlist() []string {
	if strings.TrimSpace(i.AllowlistRaw) == "" {
		return nil
	}
	parts := strings.Split(i.AllowlistRaw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

type IdempotencyConfig struct {
	WindowHours int `mapstructure:"window_hours"`
}

func (i IdempotencyConfig) Window() time.Duration {
	return time.Duration(i.WindowHours) * time.Hour
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"` // empty disables exporters
	ServiceName  string `mapstructure:"service_name"`
}
