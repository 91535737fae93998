package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the full service configuration, constructed once at startup and
// injected into each component. Optional providers (OpenAI, Resend, Twilio,
// Redis) may be left unconfigured; the owning component then degrades per
// its contract instead of consulting ambient globals.
type Config struct {
	Listen      string        `koanf:"listen"`
	Debug       bool          `koanf:"debug"`
	CallTimeout time.Duration `koanf:"call_timeout"`

	Storage StorageConfig `koanf:"storage"`
	Redis   RedisConfig   `koanf:"redis"`
	OpenAI  OpenAIConfig  `koanf:"openai"`
	Resend  ResendConfig  `koanf:"resend"`
	Twilio  TwilioConfig  `koanf:"twilio"`
	Actions ActionsConfig `koanf:"actions"`
}

type StorageConfig struct {
	ConnectionString    string `koanf:"connection_string"`
	RemindersTable      string `koanf:"reminders_table"`
	DeliveryEventsQueue string `koanf:"delivery_events_queue"`
	QueueConcurrency    int    `koanf:"queue_concurrency"`
}

type RedisConfig struct {
	ConnectionString string        `koanf:"connection_string"`
	ClaimTTL         time.Duration `koanf:"claim_ttl"`
}

type OpenAIConfig struct {
	APIKey          string `koanf:"api_key"`
	Model           string `koanf:"model"`
	TranscribeModel string `koanf:"transcribe_model"`
}

type ResendConfig struct {
	APIKey string `koanf:"api_key"`
	From   string `koanf:"from"`
}

type TwilioConfig struct {
	AccountSID string `koanf:"account_sid"`
	AuthToken  string `koanf:"auth_token"`
	From       string `koanf:"from"`
}

// ActionsConfig controls the signed complete/reschedule links embedded in
// follow-up emails.
type ActionsConfig struct {
	BaseURL    string        `koanf:"base_url"`
	SigningKey string        `koanf:"signing_key"`
	TokenTTL   time.Duration `koanf:"token_ttl"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"listen":                        ":8080",
		"debug":                         false,
		"call_timeout":                  30 * time.Second,
		"storage.reminders_table":       "reminders",
		"storage.delivery_events_queue": "delivery-events",
		"storage.queue_concurrency":     4,
		"redis.claim_ttl":               10 * time.Minute,
		"openai.model":                  "gpt-4o",
		"openai.transcribe_model":       "whisper-1",
		"actions.token_ttl":             7 * 24 * time.Hour,
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// VOICENOTE_-prefixed environment variables. Nested keys use double
// underscores in the environment, e.g. VOICENOTE_STORAGE__CONNECTION_STRING.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider("VOICENOTE_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "VOICENOTE_")
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings the service cannot start without. Provider
// credentials are optional by design; only the store is mandatory.
func (c *Config) Validate() error {
	if c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required (VOICENOTE_STORAGE__CONNECTION_STRING)")
	}
	if c.Storage.RemindersTable == "" {
		return fmt.Errorf("reminders table name is required")
	}
	if c.Storage.DeliveryEventsQueue == "" {
		return fmt.Errorf("delivery events queue name is required")
	}
	if c.Storage.QueueConcurrency <= 0 {
		return fmt.Errorf("storage queue_concurrency must be positive")
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout must be positive")
	}
	if c.Actions.BaseURL != "" && c.Actions.SigningKey == "" {
		return fmt.Errorf("actions signing_key is required when actions base_url is set")
	}
	return nil
}

// EmailConfigured reports whether the email channel can be wired.
func (c *Config) EmailConfigured() bool {
	return c.Resend.APIKey != "" && c.Resend.From != ""
}

// SMSConfigured reports whether the SMS channel can be wired.
func (c *Config) SMSConfigured() bool {
	return c.Twilio.AccountSID != "" && c.Twilio.AuthToken != "" && c.Twilio.From != ""
}
