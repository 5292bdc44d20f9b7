package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tjfontaine/kudospace/internal/openrouter"
)

const (
	envPrefix   = "KUDOS_"
	envFile     = "KUDOS_CONFIG"
	defaultFile = "config.yaml"
)

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Storage    StorageConfig    `koanf:"storage"`
	OpenRouter OpenRouterConfig `koanf:"openrouter"`
	Users      []UserConfig     `koanf:"users"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// OpenRouterConfig mirrors openrouter.Config. Empty fields take the
// client's defaults.
type OpenRouterConfig struct {
	APIKey       string `koanf:"api_key"`
	APIURL       string `koanf:"api_url"`
	DefaultModel string `koanf:"default_model"`
	TimeoutMS    int    `koanf:"timeout_ms"`
	SiteURL      string `koanf:"site_url"`
	AppTitle     string `koanf:"app_title"`

	// DenyPrivateNetworks refuses upstream connections to private addresses.
	DenyPrivateNetworks bool `koanf:"deny_private_networks"`
}

// UserConfig is a user allowed to call the write endpoints.
type UserConfig struct {
	ID          string `koanf:"id"`
	DisplayName string `koanf:"display_name"`
	Email       string `koanf:"email"`
	AvatarURL   string `koanf:"avatar_url"`
	KeyHash     string `koanf:"key_hash"`
}

type LoggingConfig struct {
	Level string `koanf:"level"` // debug, info, warn, error
}

type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`
}

// legacyEnv maps the flat variables used by earlier deployments onto
// config keys. They only fill keys nothing else has set.
var legacyEnv = map[string]string{
	"OPENROUTER_API_KEY":       "openrouter.api_key",
	"OPENROUTER_API_URL":       "openrouter.api_url",
	"OPENROUTER_DEFAULT_MODEL": "openrouter.default_model",
	"OPENROUTER_TIMEOUT_MS":    "openrouter.timeout_ms",
	"SITE_URL":                 "openrouter.site_url",
}

var defaults = map[string]any{
	"server.port":            8080,
	"server.request_timeout": "30s",
	"storage.type":           "sqlite",
	"storage.sqlite.path":    "./data/kudospace.db",
	"logging.level":          "info",
	"telemetry.enabled":      false,
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads the file named by KUDOS_CONFIG, or config.yaml, and the
// environment.
func Load() (*Config, error) {
	path := os.Getenv(envFile)
	if path == "" {
		path = defaultFile
	}
	return LoadFile(path)
}

// LoadFile is Load with an explicit file path. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Environment variables override file config
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for name, key := range legacyEnv {
		if v, ok := os.LookupEnv(name); ok && v != "" && !k.Exists(key) {
			k.Set(key, v)
		}
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			k.Set(key, v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.OpenRouter.APIKey = substituteEnvVars(cfg.OpenRouter.APIKey)
	for i := range cfg.Users {
		cfg.Users[i].KeyHash = substituteEnvVars(cfg.Users[i].KeyHash)
	}

	return &cfg, nil
}

// OpenRouterConfig converts the openrouter section. Validation is left to
// openrouter.New.
func (c *Config) OpenRouterConfig() openrouter.Config {
	return openrouter.Config{
		APIKey:       c.OpenRouter.APIKey,
		APIURL:       c.OpenRouter.APIURL,
		DefaultModel: c.OpenRouter.DefaultModel,
		TimeoutMS:    c.OpenRouter.TimeoutMS,
		SiteURL:      c.OpenRouter.SiteURL,
		AppTitle:     c.OpenRouter.AppTitle,
	}
}

// LogLevel parses logging.level. Unknown values fall back to info.
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
