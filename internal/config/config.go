package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "HYPESCANNER_CONFIG"
	databasePathEnv   = "DATABASE_PATH"
	deepSeekAPIKeyEnv = "DEEPSEEK_API_KEY"
	deepSeekModelEnv  = "DEEPSEEK_MODEL"
	httpAddrEnv       = "HTTP_ADDR"
	cacheTTLHoursEnv  = "CACHE_TTL_HOURS"
	logLevelEnv       = "LOG_LEVEL"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	scholarAPIKeyEnv  = "SEMANTIC_SCHOLAR_API_KEY"
	patentsAPIKeyEnv  = "PATENTSVIEW_API_KEY"
)

// Config holds high-level settings required across the application.
type Config struct {
	Server        ServerConfig       `yaml:"server"`
	Database      DatabaseConfig     `yaml:"database"`
	DeepSeek      DeepSeekConfig     `yaml:"deepseek"`
	Collectors    CollectorsConfig   `yaml:"collectors"`
	Analysis      AnalysisConfig     `yaml:"analysis"`
	Cache         CacheConfig        `yaml:"cache"`
	Notifications NotificationConfig `yaml:"notifications"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr    string `yaml:"addr"`
	GinMode string `yaml:"ginMode"`
}

// DatabaseConfig describes the sqlite cache location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// DeepSeekConfig defines how to contact the DeepSeek API.
type DeepSeekConfig struct {
	Endpoint       string  `yaml:"endpoint"`
	Model          string  `yaml:"model"`
	APIKey         string  `yaml:"apiKey"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeoutSeconds"`
}

// Timeout resolves the per-call request timeout.
func (d DeepSeekConfig) Timeout() time.Duration {
	if d.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// CollectorsConfig carries optional API keys for the upstream sources.
type CollectorsConfig struct {
	SemanticScholarAPIKey string `yaml:"semanticScholarApiKey"`
	PatentsViewAPIKey     string `yaml:"patentsViewApiKey"`
}

// AnalysisConfig carries the orchestration thresholds.
type AnalysisConfig struct {
	MinSources              int `yaml:"minSources"`
	CollectorTimeoutSeconds int `yaml:"collectorTimeoutSeconds"`
	NicheMentions30d        int `yaml:"nicheMentions30d"`
	NicheMentionsTotal      int `yaml:"nicheMentionsTotal"`
}

// CollectorTimeout resolves the batch-wide fan-out envelope.
func (a AnalysisConfig) CollectorTimeout() time.Duration {
	if a.CollectorTimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(a.CollectorTimeoutSeconds) * time.Second
}

// CacheConfig controls result reuse and the expired-row sweeper.
type CacheConfig struct {
	TTLHours          int `yaml:"ttlHours"`
	SweepIntervalMins int `yaml:"sweepIntervalMinutes"`
}

// TTL resolves the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	if c.TTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.TTLHours) * time.Hour
}

// SweepInterval resolves how often expired rows are purged.
func (c CacheConfig) SweepInterval() time.Duration {
	if c.SweepIntervalMins <= 0 {
		return 6 * time.Hour
	}
	return time.Duration(c.SweepIntervalMins) * time.Minute
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// LoggingConfig selects log verbosity and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads .env files, YAML configuration (if present), and applies
// environment overrides.
func Load() Config {
	loadDotEnv()

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func loadDotEnv() {
	for _, path := range []string{"config/.env", ".env"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err == nil {
			return
		}
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv(deepSeekAPIKeyEnv); v != "" {
		c.DeepSeek.APIKey = v
	}

	if v := os.Getenv(deepSeekModelEnv); v != "" {
		c.DeepSeek.Model = v
	}

	if v := os.Getenv(httpAddrEnv); v != "" {
		c.Server.Addr = v
	}

	if v := os.Getenv(cacheTTLHoursEnv); v != "" {
		if hours, err := strconv.Atoi(v); err == nil && hours > 0 {
			c.Cache.TTLHours = hours
		}
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(scholarAPIKeyEnv); v != "" {
		c.Collectors.SemanticScholarAPIKey = v
	}

	if v := os.Getenv(patentsAPIKeyEnv); v != "" {
		c.Collectors.PatentsViewAPIKey = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}
	if override.Server.GinMode != "" {
		base.Server.GinMode = override.Server.GinMode
	}

	if override.Database.Path != "" {
		base.Database = override.Database
	}

	if override.DeepSeek.Endpoint != "" {
		base.DeepSeek.Endpoint = override.DeepSeek.Endpoint
	}
	if override.DeepSeek.Model != "" {
		base.DeepSeek.Model = override.DeepSeek.Model
	}
	if override.DeepSeek.APIKey != "" {
		base.DeepSeek.APIKey = override.DeepSeek.APIKey
	}
	if override.DeepSeek.Temperature > 0 {
		base.DeepSeek.Temperature = override.DeepSeek.Temperature
	}
	if override.DeepSeek.TimeoutSeconds > 0 {
		base.DeepSeek.TimeoutSeconds = override.DeepSeek.TimeoutSeconds
	}

	if override.Collectors.SemanticScholarAPIKey != "" {
		base.Collectors.SemanticScholarAPIKey = override.Collectors.SemanticScholarAPIKey
	}
	if override.Collectors.PatentsViewAPIKey != "" {
		base.Collectors.PatentsViewAPIKey = override.Collectors.PatentsViewAPIKey
	}

	if override.Analysis.MinSources > 0 {
		base.Analysis.MinSources = override.Analysis.MinSources
	}
	if override.Analysis.CollectorTimeoutSeconds > 0 {
		base.Analysis.CollectorTimeoutSeconds = override.Analysis.CollectorTimeoutSeconds
	}
	if override.Analysis.NicheMentions30d > 0 {
		base.Analysis.NicheMentions30d = override.Analysis.NicheMentions30d
	}
	if override.Analysis.NicheMentionsTotal > 0 {
		base.Analysis.NicheMentionsTotal = override.Analysis.NicheMentionsTotal
	}

	if override.Cache.TTLHours > 0 {
		base.Cache.TTLHours = override.Cache.TTLHours
	}
	if override.Cache.SweepIntervalMins > 0 {
		base.Cache.SweepIntervalMins = override.Cache.SweepIntervalMins
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:    ":8000",
			GinMode: "release",
		},
		Database: DatabaseConfig{Path: "data/hypescanner.db"},
		DeepSeek: DeepSeekConfig{
			Endpoint:       "https://api.deepseek.com/v1/chat/completions",
			Model:          "deepseek-chat",
			APIKey:         "",
			Temperature:    0.3,
			TimeoutSeconds: 60,
		},
		Analysis: AnalysisConfig{
			MinSources:              3,
			CollectorTimeoutSeconds: 120,
			NicheMentions30d:        50,
			NicheMentionsTotal:      100,
		},
		Cache: CacheConfig{
			TTLHours:          24,
			SweepIntervalMins: 360,
		},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{BotToken: "", ChatID: ""},
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}
