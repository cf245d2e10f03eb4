package config

import "time"

// Config is the full runtime configuration. Values load from a JSON5 file,
// then environment variables, then command-line flags, in increasing
// precedence.
type Config struct {
	LLM       LLMConfig       `json:"llm"`
	Project   ProjectConfig   `json:"project"`
	Gateway   GatewayConfig   `json:"gateway"`
	Loop      LoopConfig      `json:"loop"`
	Bus       BusConfig       `json:"bus"`
	Tools     ToolsConfig     `json:"tools"`
	Creds     CredsConfig     `json:"credentials"`
	Store     StoreConfig     `json:"store"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// LLMConfig selects the active provider and model.
type LLMConfig struct {
	Provider string `json:"provider"` // local | aws_managed | openrouter_aggregator | google_gemini | anthropic_direct
	Model    string `json:"model"`    // empty = provider default
	// MaxWallClockSeconds bounds one generation call.
	MaxWallClockSeconds int `json:"max_wall_clock_seconds"`
}

type ProjectConfig struct {
	Path        string `json:"path"`
	DefaultName string `json:"default_name"`
	// Watch mirrors external file changes into the project context.
	Watch bool `json:"watch"`
}

type GatewayConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPM   int      `json:"rate_limit_rpm"`
}

// LoopConfig tunes loop supervision. All durations are in seconds.
type LoopConfig struct {
	TimeoutSeconds       int `json:"timeout_seconds"`
	IdleThresholdSeconds int `json:"idle_threshold_seconds"`
	IdleTicksRequired    int `json:"idle_ticks_required"`
	MonitorPeriodSeconds int `json:"monitor_period_seconds"`
}

type BusConfig struct {
	InboxCapacity  int `json:"inbox_capacity"`
	RouterCapacity int `json:"router_capacity"`
}

type ToolsConfig struct {
	RestrictToWorkspace bool `json:"restrict_to_workspace"`
}

// CredsConfig holds provider secrets. These normally come from the
// environment, not the config file.
type CredsConfig struct {
	AWSRegion          string `json:"aws_region"`
	AWSAccessKeyID     string `json:"aws_access_key_id"`
	AWSSecretAccessKey string `json:"aws_secret_access_key"`
	AWSSessionToken    string `json:"aws_session_token"`
	OpenRouterAPIKey   string `json:"openrouter_api_key"`
	GeminiAPIKey       string `json:"gemini_api_key"`
	AnthropicAPIKey    string `json:"anthropic_api_key"`
	LocalEndpoint      string `json:"local_endpoint"`
}

// StoreConfig selects the persistence backend. Driver "" disables the store.
type StoreConfig struct {
	Driver string `json:"driver"` // postgres | sqlite | ""
	DSN    string `json:"dsn"`
}

type TelemetryConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
	Protocol string `json:"protocol"` // grpc | http
}

// Default returns a Config with the documented defaults.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:            "anthropic_direct",
			MaxWallClockSeconds: 60,
		},
		Project: ProjectConfig{
			Path:        ".",
			DefaultName: "default",
		},
		Gateway: GatewayConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			RateLimitRPM: 0,
		},
		Loop: LoopConfig{
			TimeoutSeconds:       int((20 * time.Minute).Seconds()),
			IdleThresholdSeconds: 30,
			IdleTicksRequired:    6,
			MonitorPeriodSeconds: 5,
		},
		Bus: BusConfig{
			InboxCapacity:  100,
			RouterCapacity: 1000,
		},
		Tools: ToolsConfig{
			RestrictToWorkspace: true,
		},
		Telemetry: TelemetryConfig{
			Protocol: "grpc",
		},
	}
}

// Duration helpers.

func (c LoopConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c LoopConfig) IdleThreshold() time.Duration {
	return time.Duration(c.IdleThresholdSeconds) * time.Second
}

func (c LoopConfig) MonitorPeriod() time.Duration {
	return time.Duration(c.MonitorPeriodSeconds) * time.Second
}

func (c LLMConfig) MaxWallClock() time.Duration {
	return time.Duration(c.MaxWallClockSeconds) * time.Second
}
