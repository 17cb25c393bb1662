package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// TierQuotas maps a subscription tier to its per-feature daily allowance.
// A limit of -1 means infinite.
type TierQuotas map[string]map[string]int

type Config struct {
	Port           string
	DatabaseURL    string
	RedisURL       string
	SlackBotToken  string
	OpenAIAPIKey   string
	OpenAIModel    string
	MailServiceURL string

	// InternalBotIDs are bot ids whose messages are always excluded from
	// collection (our own helper bots echoing into channels).
	InternalBotIDs []string

	// InternalTestTeamIDs get every summary shape concatenated with labeled
	// headers instead of the priority-selected one.
	InternalTestTeamIDs []string

	SummaryBudgetChars int
	MaxRootMessages    int
	Quotas             TierQuotas
	// DefaultTier applies to every team until billing lookup lands.
	DefaultTier string

	LogLevel    string
	LogFormat   string
	Environment string
}

func Load() *Config {
	return &Config{
		Port:                getEnvOrDefault("PORT", "8080"),
		DatabaseURL:         getEnvOrDefault("DATABASE_URL", "postgres://localhost/recapbot?sslmode=disable"),
		RedisURL:            getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		SlackBotToken:       os.Getenv("SLACK_BOT_TOKEN"),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:         getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		MailServiceURL:      os.Getenv("MAIL_SERVICE_URL"),
		InternalBotIDs:      splitList(os.Getenv("INTERNAL_BOT_IDS")),
		InternalTestTeamIDs: splitList(os.Getenv("INTERNAL_TEST_TEAM_IDS")),
		SummaryBudgetChars:  getEnvIntOrDefault("SUMMARY_BUDGET_CHARS", 48000),
		MaxRootMessages:     getEnvIntOrDefault("MAX_ROOT_MESSAGES", 300),
		Quotas:              defaultQuotas(),
		DefaultTier:         getEnvOrDefault("DEFAULT_TIER", "free"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "INFO"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "text"),
		Environment:         getEnvOrDefault("ENVIRONMENT", "development"),
	}
}

func defaultQuotas() TierQuotas {
	return TierQuotas{
		"free": {
			"summarize_channel": getEnvIntOrDefault("QUOTA_FREE_CHANNEL", 3),
			"summarize_thread":  getEnvIntOrDefault("QUOTA_FREE_THREAD", 10),
			"send_digest":       getEnvIntOrDefault("QUOTA_FREE_DIGEST", 1),
		},
		"pro": {
			"summarize_channel": -1,
			"summarize_thread":  -1,
			"send_digest":       -1,
		},
	}
}

func (c *Config) Validate() error {
	var problems []string

	if c.SlackBotToken == "" {
		problems = append(problems, "SLACK_BOT_TOKEN is required")
	}
	if c.OpenAIAPIKey == "" {
		problems = append(problems, "OPENAI_API_KEY is required")
	}
	if c.DatabaseURL == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	if c.RedisURL == "" {
		problems = append(problems, "REDIS_URL is required")
	}

	if c.SlackBotToken != "" && !strings.HasPrefix(c.SlackBotToken, "xoxb-") {
		problems = append(problems, "SLACK_BOT_TOKEN must start with 'xoxb-'")
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	if !contains(validLogLevels, strings.ToUpper(c.LogLevel)) {
		problems = append(problems, "LOG_LEVEL must be one of: DEBUG, INFO, WARN, ERROR")
	}

	validLogFormats := []string{"text", "json"}
	if !contains(validLogFormats, strings.ToLower(c.LogFormat)) {
		problems = append(problems, "LOG_FORMAT must be one of: text, json")
	}

	if c.SummaryBudgetChars <= 0 {
		problems = append(problems, "SUMMARY_BUDGET_CHARS must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return strings.ToLower(c.Environment) == "production"
}

func (c *Config) IsDevelopment() bool {
	return strings.ToLower(c.Environment) == "development"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
