package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Load reads config from a JSON5 file, then overlays environment variables.
// A missing file is not an error; defaults apply. Flag overrides are the
// caller's responsibility and run after Load.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays GOFORGE_* env vars onto the config. Env values
// take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	envStr("GOFORGE_LLM_PROVIDER", &c.LLM.Provider)
	envStr("GOFORGE_LLM_MODEL", &c.LLM.Model)
	envInt("GOFORGE_MAX_LLM_WALL_CLOCK", &c.LLM.MaxWallClockSeconds)

	envStr("GOFORGE_PROJECT_PATH", &c.Project.Path)
	envStr("GOFORGE_DEFAULT_PROJECT_NAME", &c.Project.DefaultName)

	envInt("GOFORGE_SERVER_PORT", &c.Gateway.Port)
	envStr("GOFORGE_SERVER_HOST", &c.Gateway.Host)
	envInt("GOFORGE_RATE_LIMIT_RPM", &c.Gateway.RateLimitRPM)

	envInt("GOFORGE_LOOP_TIMEOUT", &c.Loop.TimeoutSeconds)
	envInt("GOFORGE_IDLE_THRESHOLD", &c.Loop.IdleThresholdSeconds)
	envInt("GOFORGE_IDLE_TICKS_REQUIRED", &c.Loop.IdleTicksRequired)
	envInt("GOFORGE_MONITOR_PERIOD", &c.Loop.MonitorPeriodSeconds)

	envInt("GOFORGE_INBOX_CAPACITY", &c.Bus.InboxCapacity)
	envInt("GOFORGE_ROUTER_CAPACITY", &c.Bus.RouterCapacity)

	envStr("GOFORGE_AWS_REGION", &c.Creds.AWSRegion)
	envStr("GOFORGE_AWS_ACCESS_KEY_ID", &c.Creds.AWSAccessKeyID)
	envStr("GOFORGE_AWS_SECRET_ACCESS_KEY", &c.Creds.AWSSecretAccessKey)
	envStr("GOFORGE_AWS_SESSION_TOKEN", &c.Creds.AWSSessionToken)
	envStr("GOFORGE_OPENROUTER_API_KEY", &c.Creds.OpenRouterAPIKey)
	envStr("GOFORGE_GEMINI_API_KEY", &c.Creds.GeminiAPIKey)
	envStr("GOFORGE_ANTHROPIC_API_KEY", &c.Creds.AnthropicAPIKey)
	envStr("GOFORGE_LOCAL_ENDPOINT", &c.Creds.LocalEndpoint)

	envStr("GOFORGE_STORE_DRIVER", &c.Store.Driver)
	envStr("GOFORGE_STORE_DSN", &c.Store.DSN)

	envStr("GOFORGE_OTLP_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("GOFORGE_OTLP_PROTOCOL", &c.Telemetry.Protocol)
	if v := os.Getenv("GOFORGE_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "1" || v == "true"
	}
}

// Validate rejects configurations the process cannot start with.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "local", "aws_managed", "openrouter_aggregator", "google_gemini", "anthropic_direct":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Gateway.Port)
	}
	if c.Loop.TimeoutSeconds <= 0 {
		return fmt.Errorf("loop timeout must be positive")
	}
	return nil
}
