package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"chatrun/internal/domain"
)

// CLIProviderConfig is the operator-configured invocation surface for one
// CLI provider identity: the binary to spawn, the baseline args it is
// always launched with, and an optional sandbox wrapper.
type CLIProviderConfig struct {
	BinaryPath  string
	BaseArgs    []string
	WrapperPath string
	WrapperEnv  map[string]string
}

// Config is the orchestrator's process-wide configuration.
type Config struct {
	Environment    string
	ListenAddr     string
	DataDir        string // root of <dataDir>/sessions/<id>/events.jsonl
	AgentConfigDir string // directory of YAML agent definitions
	Debug          bool   // gates the redacted-payload introspection endpoint

	AnthropicAPIKey  string
	AnthropicBaseURL string
	DefaultModel     string

	DefaultMaxToolIterations int     // validated only; agents without max_tool_iterations use a fixed 100
	ToolRatePerSecond        float64 // token-bucket refill for the per-session tool limiter
	ToolRateBurst            int

	WebhookTimeout     time.Duration // webhook delivery: per-attempt timeout
	WebhookMaxAttempts int           // webhook delivery: up to N attempts

	CLIA CLIProviderConfig
	CLIB CLIProviderConfig
	CLIC CLIProviderConfig

	CORSOrigins string
}

// Load populates Config from the process environment. .env loading is the
// caller's responsibility (godotenv.Load() before Load runs).
func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Environment:    env,
		ListenAddr:     getEnv("LISTEN_ADDR", ":8080"),
		DataDir:        getEnv("DATA_DIR", "./data"),
		AgentConfigDir: getEnv("AGENT_CONFIG_DIR", "./agents"),
		Debug:          getEnv("DEBUG", getDefaultDebug(env)) == "true",

		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicBaseURL: getEnv("ANTHROPIC_BASE_URL", ""),
		DefaultModel:     getEnv("DEFAULT_MODEL", "claude-haiku-4-5-20251001"),

		DefaultMaxToolIterations: getEnvInt("DEFAULT_MAX_TOOL_ITERATIONS", 100),
		ToolRatePerSecond:        getEnvFloat("TOOL_RATE_PER_SECOND", 5),
		ToolRateBurst:            getEnvInt("TOOL_RATE_BURST", 10),

		WebhookTimeout:     getEnvDuration("WEBHOOK_TIMEOUT", 30*time.Second),
		WebhookMaxAttempts: getEnvInt("WEBHOOK_MAX_ATTEMPTS", 3),

		CLIA: CLIProviderConfig{
			BinaryPath: getEnv("CLI_A_PATH", "claude"),
			BaseArgs:   []string{"-p", "--verbose", "--output-format", "stream-json", "--include-partial-messages"},
		},
		CLIB: CLIProviderConfig{
			BinaryPath: getEnv("CLI_B_PATH", "codex"),
			BaseArgs:   []string{"exec", "--json"},
		},
		CLIC: CLIProviderConfig{
			BinaryPath: getEnv("CLI_C_PATH", "pi"),
			BaseArgs:   []string{"--mode", "json"},
		},

		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000"),
	}
}

// Validate checks the configuration with go-ozzo/ozzo-validation before
// any component is constructed from it.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.ListenAddr, validation.Required),
		validation.Field(&c.DataDir, validation.Required),
		validation.Field(&c.DefaultModel, validation.Required),
		validation.Field(&c.DefaultMaxToolIterations, validation.Min(1)),
		validation.Field(&c.ToolRatePerSecond, validation.Min(0.0)),
		validation.Field(&c.ToolRateBurst, validation.Min(1)),
		validation.Field(&c.WebhookMaxAttempts, validation.Min(1)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
