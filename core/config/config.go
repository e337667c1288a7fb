package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	OTel      OTelConfig
	OpenAI    OpenAIConfig
	SMTP      SMTPConfig
	Issues    IssueConfig
	Events    EventsConfig
	Env       string
	Port      string
	NodeID    int64
	RemoteRef string
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// SMTPConfig mirrors the variables the editor plugin has always read.
// SSL means implicit TLS on connect (usually port 465); StartTLS upgrades
// a plain connection (usually port 587).
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	SSL      bool
	StartTLS bool
}

type IssueConfig struct {
	Provider      string // "github" or "gitlab"
	GitHubToken   string
	GitHubBaseURL string // Optional: GitHub Enterprise API root
	GitLabToken   string
	GitLabBaseURL string // Optional: self-hosted GitLab
}

type EventsConfig struct {
	RedisURL    string
	RedisStream string
}

const (
	IssueProviderGitHub = "github"
	IssueProviderGitLab = "gitlab"
)

// Load loads configuration from environment variables.
// In development it first loads a .env file from the working directory if one exists.
func Load() (Config, error) {
	if getEnv("CODEASK_ENV", "development") == "development" {
		_ = godotenv.Load(".env")
	}

	cfg := Config{
		Env:       getEnv("CODEASK_ENV", "development"),
		Port:      getEnv("PORT", "8377"),
		NodeID:    int64(getEnvInt("SNOWFLAKE_NODE_ID", 1)),
		RemoteRef: getEnv("GIT_REMOTE", "origin"),
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "codeask"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			BaseURL: getEnv("OPENAI_BASE_URL", ""),
			Model:   getEnv("OPENAI_MODEL", "gpt-4.1"),
		},
		SMTP: LoadSMTP(),
		Issues: IssueConfig{
			Provider:      strings.ToLower(getEnv("ISSUE_PROVIDER", IssueProviderGitHub)),
			GitHubToken:   getEnv("GITHUB_TOKEN", ""),
			GitHubBaseURL: getEnv("GITHUB_API_URL", ""),
			GitLabToken:   getEnv("GITLAB_TOKEN", ""),
			GitLabBaseURL: getEnv("GITLAB_BASE_URL", ""),
		},
		Events: EventsConfig{
			RedisURL:    getEnv("REDIS_URL", ""),
			RedisStream: getEnv("REDIS_STREAM", "codeask_escalations"),
		},
	}

	switch cfg.Issues.Provider {
	case IssueProviderGitHub, IssueProviderGitLab:
	default:
		return Config{}, fmt.Errorf("unsupported ISSUE_PROVIDER: %s", cfg.Issues.Provider)
	}

	return cfg, nil
}

// LoadSMTP reads the SMTP_* variables. Port defaults to 587, implicit TLS is
// inferred from port 465 and STARTTLS defaults to the negation of implicit TLS.
func LoadSMTP() SMTPConfig {
	port := getEnvInt("SMTP_PORT", 587)
	user := strings.TrimSpace(getEnv("SMTP_USER", ""))

	from := strings.TrimSpace(getEnv("SMTP_FROM", ""))
	if from == "" {
		from = user
	}

	ssl := getEnvBool("SMTP_SSL", port == 465)
	startTLS := getEnvBool("SMTP_STARTTLS", !ssl)

	return SMTPConfig{
		Host:     strings.TrimSpace(getEnv("SMTP_HOST", "")),
		Port:     port,
		Username: user,
		Password: strings.TrimSpace(getEnv("SMTP_PASS", "")),
		From:     from,
		SSL:      ssl,
		StartTLS: startTLS,
	}
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != ""
}

func (c SMTPConfig) Enabled() bool {
	return c.Validate() == nil
}

// Validate reports the first missing required SMTP setting.
func (c SMTPConfig) Validate() error {
	switch {
	case c.Host == "":
		return fmt.Errorf("SMTP_HOST missing")
	case c.Username == "":
		return fmt.Errorf("SMTP_USER missing")
	case c.Password == "":
		return fmt.Errorf("SMTP_PASS missing")
	}
	return nil
}

func (c IssueConfig) Enabled() bool {
	switch c.Provider {
	case IssueProviderGitHub:
		return c.GitHubToken != ""
	case IssueProviderGitLab:
		return c.GitLabToken != ""
	}
	return false
}

func (c EventsConfig) Enabled() bool {
	return c.RedisURL != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}
