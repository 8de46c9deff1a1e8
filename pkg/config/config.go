package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. AUTOPILOT_MATCHER_THRESHOLD.
const EnvPrefix = "AUTOPILOT"

type Config struct {
	App      AppConfig                `mapstructure:"app" yaml:"app"`
	Logger   LoggerConfig             `mapstructure:"logger" yaml:"logger"`
	Catalog  CatalogConfig            `mapstructure:"catalog" yaml:"catalog"`
	Matcher  MatcherConfig            `mapstructure:"matcher" yaml:"matcher"`
	Browser  BrowserConfig            `mapstructure:"browser" yaml:"browser"`
	Engine   EngineConfig             `mapstructure:"engine" yaml:"engine"`
	Memory   MemoryConfig             `mapstructure:"memory" yaml:"memory"`
	Gateways map[string]GatewayConfig `mapstructure:"gateways" yaml:"gateways"`
	Metrics  MetricsConfig            `mapstructure:"metrics" yaml:"metrics"`
}

type AppConfig struct {
	Name      string `mapstructure:"name" yaml:"name"`
	Workspace string `mapstructure:"workspace" yaml:"workspace"`
}

type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig names the terminal color per log level.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
}

// CatalogConfig locates the template catalog. An empty Path uses the built-in catalog.
type CatalogConfig struct {
	Path     string        `mapstructure:"path" yaml:"path"`
	Watch    bool          `mapstructure:"watch" yaml:"watch"`
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type MatcherConfig struct {
	Threshold        float64 `mapstructure:"threshold" yaml:"threshold"`
	SuggestThreshold float64 `mapstructure:"suggest_threshold" yaml:"suggest_threshold"`
	TopK             int     `mapstructure:"top_k" yaml:"top_k"`
	NGramMax         int     `mapstructure:"ngram_max" yaml:"ngram_max"`
	ExpandSynonyms   bool    `mapstructure:"expand_synonyms" yaml:"expand_synonyms"`
}

type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	FindTimeout       time.Duration `mapstructure:"find_timeout" yaml:"find_timeout"`
}

type EngineConfig struct {
	StepTimeout         time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	DefaultWait         time.Duration `mapstructure:"default_wait" yaml:"default_wait"`
	MaxWait             time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
	ScreenshotDir       string        `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	ScreenshotOnFailure bool          `mapstructure:"screenshot_on_failure" yaml:"screenshot_on_failure"`
	DesktopFallback     bool          `mapstructure:"desktop_fallback" yaml:"desktop_fallback"`
	Display             string        `mapstructure:"display" yaml:"display"`
}

type MemoryConfig struct {
	Type string `mapstructure:"type" yaml:"type"`
	Path string `mapstructure:"path" yaml:"path"`
}

type GatewayConfig struct {
	Token   string  `mapstructure:"token" yaml:"token"`
	Enabled bool    `mapstructure:"enabled" yaml:"enabled"`
	Rate    float64 `mapstructure:"rate" yaml:"rate"` // messages per second per gateway
	Burst   int     `mapstructure:"burst" yaml:"burst"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// SetDefaults registers every default so env overrides work without a file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "autopilot")
	v.SetDefault("app.workspace", ".")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "autopilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	v.SetDefault("catalog.path", "")
	v.SetDefault("catalog.watch", false)
	v.SetDefault("catalog.debounce", "500ms")

	v.SetDefault("matcher.threshold", 0.2)
	v.SetDefault("matcher.suggest_threshold", 0.05)
	v.SetDefault("matcher.top_k", 3)
	v.SetDefault("matcher.ngram_max", 2)
	v.SetDefault("matcher.expand_synonyms", false)

	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.action_timeout", "60s")
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.find_timeout", "10s")

	v.SetDefault("engine.step_timeout", "60s")
	v.SetDefault("engine.default_wait", "2s")
	v.SetDefault("engine.max_wait", "30s")
	v.SetDefault("engine.screenshot_dir", "screenshots")
	v.SetDefault("engine.screenshot_on_failure", true)
	v.SetDefault("engine.desktop_fallback", true)
	v.SetDefault("engine.display", ":0.0")

	v.SetDefault("memory.type", "sqlite")
	v.SetDefault("memory.path", "autopilot.db")

	v.SetDefault("gateways.telegram.enabled", false)
	v.SetDefault("gateways.telegram.rate", 1.0)
	v.SetDefault("gateways.telegram.burst", 3)
	v.SetDefault("gateways.discord.enabled", false)
	v.SetDefault("gateways.discord.rate", 1.0)
	v.SetDefault("gateways.discord.burst", 3)

	v.SetDefault("metrics.addr", "")
}

// Load reads .env (if present), then the config file at path, then
// AUTOPILOT_* environment overrides. With an empty path ./autopilot.yaml is
// used when it exists.
func Load(path string) (*Config, error) {
	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("autopilot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return NewConfigFromViper(v)
}

// NewConfigFromViper decodes and validates v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	_ = v.BindEnv("gateways.telegram.token", "TELEGRAM_BOT_TOKEN", EnvPrefix+"_GATEWAYS_TELEGRAM_TOKEN")
	_ = v.BindEnv("gateways.discord.token", "DISCORD_BOT_TOKEN", EnvPrefix+"_GATEWAYS_DISCORD_TOKEN")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks ranges and required fields.
func (c *Config) Validate() error {
	if c.Matcher.Threshold <= 0 || c.Matcher.Threshold > 1 {
		return fmt.Errorf("matcher.threshold must be in (0, 1], got %v", c.Matcher.Threshold)
	}
	if c.Matcher.SuggestThreshold < 0 || c.Matcher.SuggestThreshold > c.Matcher.Threshold {
		return fmt.Errorf("matcher.suggest_threshold must be in [0, threshold]")
	}
	if c.Matcher.TopK <= 0 {
		return fmt.Errorf("matcher.top_k must be a positive integer")
	}
	if c.Matcher.NGramMax < 1 || c.Matcher.NGramMax > 3 {
		return fmt.Errorf("matcher.ngram_max must be 1, 2 or 3")
	}
	if c.Engine.StepTimeout <= 0 {
		return fmt.Errorf("engine.step_timeout must be positive")
	}
	if c.Memory.Type != "sqlite" {
		return fmt.Errorf("memory.type %q is not supported", c.Memory.Type)
	}
	for name, g := range c.Gateways {
		if g.Enabled && g.Token == "" {
			return fmt.Errorf("gateways.%s is enabled but has no token", name)
		}
	}
	return nil
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (GatewayConfig, bool) {
	return c.gateway("telegram")
}

// GetDiscordConfig returns discord config if enabled
func (c *Config) GetDiscordConfig() (GatewayConfig, bool) {
	return c.gateway("discord")
}

func (c *Config) gateway(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled {
		return g, true
	}
	return GatewayConfig{}, false
}
