// Package config loads runtime settings from defaults, an optional TOML file
// and CHATTER_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. The first underscore after
// it separates the section, so CHATTER_CHAT_AUTO_DELETE_DELAY sets
// chat.auto_delete_delay.
const EnvPrefix = "CHATTER_"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the application configuration
type Config struct {
	User struct {
		ID   string `koanf:"id"`
		Name string `koanf:"name"`
	} `koanf:"user"`

	Storage struct {
		Backend string `koanf:"backend"` // memory, sqlite or pebble
		Path    string `koanf:"path"`    // Empty means the per-backend default location
	} `koanf:"storage"`

	Chat struct {
		AutoDeleteEnabled bool          `koanf:"auto_delete_enabled"`
		AutoDeleteDelay   time.Duration `koanf:"auto_delete_delay"`
		TypingTimeout     time.Duration `koanf:"typing_timeout"`
	} `koanf:"chat"`

	Log struct {
		Level  string `koanf:"level"`
		Dir    string `koanf:"dir"`
		Pretty bool   `koanf:"pretty"`
	} `koanf:"log"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"user.id":                  "me",
		"user.name":                "Me",
		"storage.backend":          "sqlite",
		"storage.path":             "",
		"chat.auto_delete_enabled": true,
		"chat.auto_delete_delay":   "5s",
		"chat.typing_timeout":      "3s",
		"log.level":                "info",
		"log.dir":                  "",
		"log.pretty":               false,
	}
}

// Default returns the built-in configuration, ignoring files and environment.
func Default() *Config {
	var k = koanf.New(".")
	var cfg Config
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		panic(fmt.Sprintf("config: built-in defaults do not load: %v", err))
	}
	if err := k.Unmarshal("", &cfg); err != nil {
		panic(fmt.Sprintf("config: built-in defaults do not decode: %v", err))
	}
	return &cfg
}

// Load builds the configuration. When configPath is empty the default
// locations are tried and a missing file is not an error. An explicit path
// must exist.
func Load(configPath string) (*Config, error) {
	var k = koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		for _, path := range DefaultPaths() {
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
					return nil, fmt.Errorf("error loading config %s: %w", path, err)
				}
				break
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	return &cfg, nil
}

// DefaultPaths lists where Load looks for chatter.toml, first match wins.
func DefaultPaths() []string {
	paths := []string{"./chatter.toml"}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, dir+"/Chatter/chatter.toml")
	}
	return paths
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(s, "_", ".", 1)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.User.ID == "" {
		return fmt.Errorf("%w: user.id is required", ErrInvalid)
	}
	switch c.Storage.Backend {
	case "memory", "sqlite", "pebble":
	default:
		return fmt.Errorf("%w: storage.backend %q (want memory, sqlite or pebble)", ErrInvalid, c.Storage.Backend)
	}
	if c.Chat.AutoDeleteDelay <= 0 {
		return fmt.Errorf("%w: chat.auto_delete_delay must be positive", ErrInvalid)
	}
	if c.Chat.TypingTimeout <= 0 {
		return fmt.Errorf("%w: chat.typing_timeout must be positive", ErrInvalid)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: log.level %q", ErrInvalid, c.Log.Level)
	}
	return nil
}

// InitConfig writes a sample configuration file.
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sample := `# Chatter configuration

[user]
id = "me"
name = "Me"

[storage]
backend = "sqlite" # memory, sqlite or pebble
path = ""

[chat]
auto_delete_enabled = true
auto_delete_delay = "5s"
typing_timeout = "3s"

[log]
level = "info"
pretty = false
`
	return os.WriteFile(configPath, []byte(sample), 0644)
}
