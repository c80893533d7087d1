// Package config loads the process configuration for the review bot.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// BackendQuery sends reviews to the hosted review service.
	BackendQuery = "query"
	// BackendAnthropic sends reviews to the Anthropic Messages API.
	BackendAnthropic = "anthropic"

	// ProviderDynamoDB stores settings in DynamoDB.
	ProviderDynamoDB = "dynamodb"
	// ProviderPostgres stores settings in PostgreSQL.
	ProviderPostgres = "postgres"
	// ProviderLocal reads settings from a YAML file.
	ProviderLocal = "local"
)

// ErrMissingValue is matched by every MissingValueError.
var ErrMissingValue = errors.New("missing required configuration value")

// MissingValueError names the environment variable that must be set.
type MissingValueError struct {
	Key string
}

func (e *MissingValueError) Error() string {
	return fmt.Sprintf("missing required configuration value: %s", e.Key)
}

func (e *MissingValueError) Is(target error) bool {
	return target == ErrMissingValue
}

// Config is built once at startup and passed to every component.
type Config struct {
	AI        AIConfig        `koanf:"ai"`
	Anthropic AnthropicConfig `koanf:"anthropic"`
	GitHub    GitHubConfig    `koanf:"github"`
	GitLab    GitLabConfig    `koanf:"gitlab"`
	Store     StoreConfig     `koanf:"store"`
	Server    ServerConfig    `koanf:"server"`
	Review    ReviewConfig    `koanf:"review"`
}

// AIConfig configures the review service.
type AIConfig struct {
	URL     string `koanf:"url"`
	APIKey  string `koanf:"api_key"`
	Backend string `koanf:"backend"`
}

// AnthropicConfig is used when AIConfig.Backend is BackendAnthropic.
type AnthropicConfig struct {
	APIKey    string `koanf:"api_key"`
	Model     string `koanf:"model"`
	FastModel string `koanf:"fast_model"`
}

// GitHubConfig holds the GitHub App credentials.
type GitHubConfig struct {
	AppID      int64  `koanf:"app_id"`
	PrivateKey string `koanf:"private_key"`
	APIURL     string `koanf:"api_url"`
}

// GitLabConfig controls merge request handling.
type GitLabConfig struct {
	APIURL string `koanf:"api_url"`
	// BaseBranch overrides the comparison base. Empty means the merge request's target branch.
	BaseBranch string `koanf:"base_branch"`
	// TriggerActions limits which merge request actions start a review. Empty means every event.
	TriggerActions []string `koanf:"trigger_actions"`
	// PostRate is the number of discussions created per second.
	PostRate float64 `koanf:"post_rate"`
}

// StoreConfig selects and configures the settings store.
type StoreConfig struct {
	Provider          string `koanf:"provider"`
	DynamoDBTable     string `koanf:"dynamodb_table"`
	RepositoriesTable string `koanf:"repositories_table"`
	AWSRegion         string `koanf:"aws_region"`
	DatabaseURL       string `koanf:"database_url"`
	SettingsFile      string `koanf:"settings_file"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port int `koanf:"port"`
	// SessionTimeout bounds a single review session. Zero disables the bound.
	SessionTimeout time.Duration `koanf:"session_timeout"`
}

// ReviewConfig holds the trigger policy and the review pipeline knobs.
type ReviewConfig struct {
	Mention       string        `koanf:"mention"`
	SentinelLabel string        `koanf:"sentinel_label"`
	Concurrency   int           `koanf:"concurrency"`
	MaxAttempts   int           `koanf:"max_attempts"`
	RetryDelay    time.Duration `koanf:"retry_delay"`
	Exclude       []string      `koanf:"exclude"`
}

var defaults = map[string]interface{}{
	"ai.backend":               BackendQuery,
	"anthropic.model":          "claude-sonnet-4-20250514",
	"anthropic.fast_model":     "claude-3-5-haiku-20241022",
	"github.api_url":           "https://api.github.com",
	"gitlab.api_url":           "https://gitlab.com/api/v4",
	"gitlab.post_rate":         5.0,
	"store.provider":           ProviderDynamoDB,
	"store.repositories_table": "onboard-repositories",
	"store.aws_region":         "us-east-1",
	"server.port":              3000,
	"review.mention":           "@reviewbot",
	"review.sentinel_label":    "reviewbot",
	"review.concurrency":       1,
	"review.max_attempts":      3,
	"review.retry_delay":       "1s",
}

// envKeys maps environment variables to configuration keys.
var envKeys = map[string]string{
	"AI_API_URL":                  "ai.url",
	"AI_API_KEY":                  "ai.api_key",
	"AI_BACKEND":                  "ai.backend",
	"ANTHROPIC_API_KEY":           "anthropic.api_key",
	"ANTHROPIC_MODEL":             "anthropic.model",
	"ANTHROPIC_FAST_MODEL":        "anthropic.fast_model",
	"GITHUB_APP_ID":               "github.app_id",
	"GITHUB_PRIVATE_KEY":          "github.private_key",
	"GITHUB_API_URL":              "github.api_url",
	"GITLAB_API_URL":              "gitlab.api_url",
	"GITLAB_BASE_BRANCH":          "gitlab.base_branch",
	"GITLAB_TRIGGER_ACTIONS":      "gitlab.trigger_actions",
	"GITLAB_POST_RATE":            "gitlab.post_rate",
	"DB_PROVIDER":                 "store.provider",
	"DYNAMODB_TABLE":              "store.dynamodb_table",
	"DYNAMODB_REPOSITORIES_TABLE": "store.repositories_table",
	"AWS_REGION":                  "store.aws_region",
	"DATABASE_URL":                "store.database_url",
	"SETTINGS_FILE":               "store.settings_file",
	"PORT":                        "server.port",
	"SESSION_TIMEOUT":             "server.session_timeout",
	"BOT_MENTION":                 "review.mention",
	"SENTINEL_LABEL":              "review.sentinel_label",
	"REVIEW_CONCURRENCY":          "review.concurrency",
	"REVIEW_MAX_ATTEMPTS":         "review.max_attempts",
	"REVIEW_RETRY_DELAY":          "review.retry_delay",
	"REVIEW_EXCLUDE":              "review.exclude",
}

// listKeys are configuration keys whose environment values are comma separated.
var listKeys = map[string]bool{
	"gitlab.trigger_actions": true,
	"review.exclude":         true,
}

// envValue maps an environment variable to its configuration key. Unknown
// variables map to "" and are ignored by koanf.
func envValue(name, value string) (string, interface{}) {
	key := envKeys[name]
	if listKeys[key] {
		return key, strings.Split(value, ",")
	}
	return key, value
}

// keyEnv is the reverse of envKeys, used to report missing values by the name operators set.
var keyEnv = func() map[string]string {
	m := make(map[string]string, len(envKeys))
	for e, k := range envKeys {
		m[k] = e
	}
	return m
}()

// Load builds the configuration from defaults, an optional TOML file,
// an optional dotenv file and the process environment, in that order.
// The result is validated before it is returned.
func Load(configFile, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configFile != "" {
		if err := k.Load(file.Provider(configFile), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configFile, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// PEM keys passed through a single-line variable carry escaped newlines.
	cfg.GitHub.PrivateKey = strings.ReplaceAll(cfg.GitHub.PrivateKey, `\n`, "\n")
	cfg.Review.Exclude = compact(cfg.Review.Exclude)
	cfg.GitLab.TriggerActions = compact(cfg.GitLab.TriggerActions)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type requirement struct {
	key string
	ok  bool
}

// Validate reports the first required value that is missing.
func (c *Config) Validate() error {
	required := []requirement{
		{"github.app_id", c.GitHub.AppID != 0},
		{"github.private_key", c.GitHub.PrivateKey != ""},
	}

	switch c.AI.Backend {
	case BackendQuery:
		required = append(required,
			requirement{"ai.url", c.AI.URL != ""},
			requirement{"ai.api_key", c.AI.APIKey != ""})
	case BackendAnthropic:
		required = append(required, requirement{"anthropic.api_key", c.Anthropic.APIKey != ""})
	default:
		return fmt.Errorf("invalid AI_BACKEND %q (must be %q or %q)", c.AI.Backend, BackendQuery, BackendAnthropic)
	}

	switch c.Store.Provider {
	case ProviderDynamoDB:
		required = append(required, requirement{"store.dynamodb_table", c.Store.DynamoDBTable != ""})
	case ProviderPostgres:
		required = append(required, requirement{"store.database_url", c.Store.DatabaseURL != ""})
	case ProviderLocal:
		required = append(required, requirement{"store.settings_file", c.Store.SettingsFile != ""})
	default:
		return fmt.Errorf("invalid DB_PROVIDER %q", c.Store.Provider)
	}

	for _, r := range required {
		if !r.ok {
			return &MissingValueError{Key: keyEnv[r.key]}
		}
	}

	if c.Review.Concurrency < 1 {
		return fmt.Errorf("REVIEW_CONCURRENCY must be at least 1, got %d", c.Review.Concurrency)
	}
	if c.Review.MaxAttempts < 1 {
		return fmt.Errorf("REVIEW_MAX_ATTEMPTS must be at least 1, got %d", c.Review.MaxAttempts)
	}
	return nil
}

// TriggersOn reports whether a merge request action starts a review.
func (c GitLabConfig) TriggersOn(action string) bool {
	if len(c.TriggerActions) == 0 {
		return true
	}
	for _, a := range c.TriggerActions {
		if a == action {
			return true
		}
	}
	return false
}

// Excluded returns true if the file path matches any exclude pattern.
// A pattern containing "**" matches everything below its directory prefix;
// other patterns are matched against the full path and the base name.
func (c ReviewConfig) Excluded(p string) bool {
	for _, pattern := range c.Exclude {
		if before, after, ok := strings.Cut(pattern, "**"); ok {
			if before != "" && !strings.HasPrefix(p, before) {
				continue
			}
			after = strings.TrimPrefix(after, "/")
			if after == "" || strings.HasSuffix(p, after) {
				return true
			}
			if matched, _ := path.Match(after, path.Base(p)); matched {
				return true
			}
			continue
		}
		if matched, _ := path.Match(pattern, p); matched {
			return true
		}
		if matched, _ := path.Match(pattern, path.Base(p)); matched {
			return true
		}
	}
	return false
}

func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
