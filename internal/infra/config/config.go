package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from YAML files and environment variables.
// Environment variables take precedence over YAML values.
// Env prefix: DOCGEN_ (e.g., DOCGEN_SERVER_PORT).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("app")
	v.SetConfigType("yaml")
	v.AddConfigPath("./settings")
	v.AddConfigPath("../settings")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DOCGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	bindEnvVars(v)
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// LoadFromFile loads configuration from a specific YAML file path.
// Environment variables still override YAML values.
func LoadFromFile(filePath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filePath)

	v.SetEnvPrefix("DOCGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", filePath, err)
	}

	bindEnvVars(v)
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads configuration and panics on error — used by tests and
// local tooling where a missing config is a programmer error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// bindEnvVars explicitly binds environment variables to config keys.
// Required because Viper's AutomaticEnv doesn't work reliably with
// Unmarshal into a nested struct.
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("environment")

	v.BindEnv("server.port")
	v.BindEnv("server.read_timeout")
	v.BindEnv("server.write_timeout")
	v.BindEnv("server.shutdown_timeout")
	v.BindEnv("server.request_timeout")
	v.BindEnv("server.swagger_ui")
	v.BindEnv("server.max_body_bytes")

	v.BindEnv("auth.issuer")
	v.BindEnv("auth.audience")
	v.BindEnv("auth.jwks_uri")
	v.BindEnv("auth.auth_bypass_development")

	v.BindEnv("salesforce.domain")
	v.BindEnv("salesforce.client_id")
	v.BindEnv("salesforce.username")
	v.BindEnv("salesforce.private_key_pem")

	v.BindEnv("conversion.timeout_ms")
	v.BindEnv("conversion.workdir")
	v.BindEnv("conversion.max_concurrent")
	v.BindEnv("conversion.bin_path")

	v.BindEnv("template_cache.max_bytes")

	v.BindEnv("poller.active_interval_ms")
	v.BindEnv("poller.idle_interval_ms")
	v.BindEnv("poller.batch_size")
	v.BindEnv("poller.lock_ttl_ms")
	v.BindEnv("poller.max_attempts")

	v.BindEnv("images.allowlist_raw")

	v.BindEnv("idempotency.window_hours")

	v.BindEnv("logging.level")
	v.BindEnv("logging.format")

	v.BindEnv("telemetry.otlp_endpoint")
	v.BindEnv("telemetry.service_name")
}

// setDefaults mirrors §4.1's documented defaults.
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "production")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.shutdown_timeout", 10)
	v.SetDefault("server.request_timeout", 90)
	v.SetDefault("server.swagger_ui", false)
	v.SetDefault("server.max_body_bytes", 10*1024*1024)

	v.SetDefault("auth.auth_bypass_development", false)

	v.SetDefault("conversion.timeout_ms", 60000)
	v.SetDefault("conversion.workdir", "/tmp")
	v.SetDefault("conversion.max_concurrent", 8)
	v.SetDefault("conversion.bin_path", "soffice")

	v.SetDefault("template_cache.max_bytes", int64(500*1024*1024))

	v.SetDefault("poller.active_interval_ms", 15000)
	v.SetDefault("poller.idle_interval_ms", 60000)
	v.SetDefault("poller.batch_size", 20)
	v.SetDefault("poller.lock_ttl_ms", 120000)
	v.SetDefault("poller.max_attempts", 3)

	v.SetDefault("images.allowlist_raw", "")

	v.SetDefault("idempotency.window_hours", 24)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("telemetry.service_name", "docgen")
}
