package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all streamnote environment variables.
const EnvPrefix = "STREAMNOTE_"

// Config holds all application configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	ListenAddr            string `yaml:"listen_addr"`
	MaxSessions           int    `yaml:"max_sessions"`
	SampleRate            int    `yaml:"sample_rate"`
	Language              string `yaml:"language"`
	SummaryInterval       string `yaml:"summary_interval"`
	FrameDuration         string `yaml:"frame_duration"`
	QueueDuration         string `yaml:"queue_duration"`
	SilenceTimeout        string `yaml:"silence_timeout"`
	StreamMaxDuration     string `yaml:"stream_max_duration"`
	RetryLimit            int    `yaml:"retry_limit"`
	BackoffBase           string `yaml:"backoff_base"`
	BackoffCap            string `yaml:"backoff_cap"`
	DegradedBuffer        string `yaml:"degraded_buffer"`
	DrainTimeout          string `yaml:"drain_timeout"`
	SummaryModel          string `yaml:"summary_model"`
	DeepgramModel         string `yaml:"deepgram_model"`
	DBPath                string `yaml:"db_path"`
	GDriveFolderID        string `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`

	// Secrets — env vars only, never serialized to YAML.
	DeepgramAPIKey  string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	GeminiAPIKey    string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:            ":8080",
		MaxSessions:           16,
		SampleRate:            48000,
		Language:              "en-US",
		SummaryInterval:       "30s",
		FrameDuration:         "100ms",
		QueueDuration:         "2s",
		SilenceTimeout:        "3s",
		StreamMaxDuration:     "5m",
		RetryLimit:            5,
		BackoffBase:           "250ms",
		BackoffCap:            "8s",
		DegradedBuffer:        "30s",
		DrainTimeout:          "5s",
		SummaryModel:          "gemini/gemini-2.0-flash",
		DeepgramModel:         "nova-2",
		DBPath:                "data/streamnote.db",
		GoogleCredentialsFile: "./service-account.json",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParseDurationOr parses raw as a duration, falling back when raw is
// empty or invalid. Invalid values also surface as Load warnings.
func ParseDurationOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "MAX_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.MaxSessions = n
		}
	}
	if v := os.Getenv(EnvPrefix + "SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && rate > 0 {
			cfg.SampleRate = rate
		}
	}
	if v := os.Getenv(EnvPrefix + "LANGUAGE"); v != "" {
		cfg.Language = v
	}
	if v := os.Getenv(EnvPrefix + "SUMMARY_INTERVAL"); v != "" {
		cfg.SummaryInterval = v
	}
	if v := os.Getenv(EnvPrefix + "FRAME_DURATION"); v != "" {
		cfg.FrameDuration = v
	}
	if v := os.Getenv(EnvPrefix + "QUEUE_DURATION"); v != "" {
		cfg.QueueDuration = v
	}
	if v := os.Getenv(EnvPrefix + "SILENCE_TIMEOUT"); v != "" {
		cfg.SilenceTimeout = v
	}
	if v := os.Getenv(EnvPrefix + "STREAM_MAX_DURATION"); v != "" {
		cfg.StreamMaxDuration = v
	}
	if v := os.Getenv(EnvPrefix + "RETRY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.RetryLimit = n
		}
	}
	if v := os.Getenv(EnvPrefix + "BACKOFF_BASE"); v != "" {
		cfg.BackoffBase = v
	}
	if v := os.Getenv(EnvPrefix + "BACKOFF_CAP"); v != "" {
		cfg.BackoffCap = v
	}
	if v := os.Getenv(EnvPrefix + "DEGRADED_BUFFER"); v != "" {
		cfg.DegradedBuffer = v
	}
	if v := os.Getenv(EnvPrefix + "DRAIN_TIMEOUT"); v != "" {
		cfg.DrainTimeout = v
	}
	if v := os.Getenv(EnvPrefix + "SUMMARY_MODEL"); v != "" {
		cfg.SummaryModel = v
	}
	if v := os.Getenv(EnvPrefix + "DEEPGRAM_MODEL"); v != "" {
		cfg.DeepgramModel = v
	}
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "GDRIVE_FOLDER_ID"); v != "" {
		cfg.GDriveFolderID = v
	}
	if v := os.Getenv(EnvPrefix + "GOOGLE_CREDENTIALS_FILE"); v != "" {
		cfg.GoogleCredentialsFile = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.DeepgramAPIKey == "" {
		warnings = append(warnings, "Deepgram API key not configured — live transcription is disabled. Set "+EnvPrefix+"DEEPGRAM_API_KEY.")
	}
	if key := summaryProviderKey(cfg); key == "" {
		warnings = append(warnings, fmt.Sprintf("No API key for summary model %q — session summaries are disabled.", cfg.SummaryModel))
	}

	durations := map[string]string{
		"summary_interval":    cfg.SummaryInterval,
		"frame_duration":      cfg.FrameDuration,
		"queue_duration":      cfg.QueueDuration,
		"silence_timeout":     cfg.SilenceTimeout,
		"stream_max_duration": cfg.StreamMaxDuration,
		"backoff_base":        cfg.BackoffBase,
		"backoff_cap":         cfg.BackoffCap,
		"degraded_buffer":     cfg.DegradedBuffer,
		"drain_timeout":       cfg.DrainTimeout,
	}
	for name, raw := range durations {
		if _, err := time.ParseDuration(raw); err != nil {
			warnings = append(warnings, fmt.Sprintf("Invalid %s %q — using default.", name, raw))
		}
	}

	return warnings
}

// summaryProviderKey returns the API key matching the configured summary
// model's provider prefix, or "" when no usable key is set.
func summaryProviderKey(cfg *Config) string {
	provider, _, ok := strings.Cut(cfg.SummaryModel, "/")
	if !ok {
		return ""
	}
	switch provider {
	case "openai":
		return cfg.OpenAIAPIKey
	case "anthropic":
		return cfg.AnthropicAPIKey
	case "gemini":
		return cfg.GeminiAPIKey
	}
	return ""
}
