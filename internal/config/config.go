// Package config loads tracker configuration through viper. Precedence:
// explicit Set > TRK_* environment variables > config.yaml > defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Keys understood by the tracker.
const (
	KeyBackend    = "storage.backend" // "sqlite" or "mysql"
	KeyDSN        = "storage.dsn"     // file path (sqlite) or driver DSN (mysql)
	KeyLogin      = "user.login"      // default acting user
	KeyWebhookURL = "notify.webhook"  // optional webhook endpoint
	KeyMailEnable = "notify.mail"     // "true" to send mail
)

// Config wraps a viper instance rooted at the tracker data directory.
type Config struct {
	v   *viper.Viper
	dir string
}

// Dir returns the tracker data directory (".issuekit" under the working
// directory unless TRK_DIR overrides it).
func Dir() string {
	if dir := os.Getenv("TRK_DIR"); dir != "" {
		return dir
	}
	return ".issuekit"
}

// Load reads config.yaml from dir, tolerating a missing file.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.SetEnvPrefix("TRK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyBackend, "sqlite")
	v.SetDefault(KeyDSN, filepath.Join(dir, "issues.db"))
	v.SetDefault(KeyMailEnable, false)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return &Config{v: v, dir: dir}, nil
}

// Backend returns the configured storage backend name.
func (c *Config) Backend() string { return c.v.GetString(KeyBackend) }

// DSN returns the storage connection string.
func (c *Config) DSN() string { return c.v.GetString(KeyDSN) }

// Login returns the default acting user's login.
func (c *Config) Login() string { return c.v.GetString(KeyLogin) }

// WebhookURL returns the notification webhook endpoint, empty when unset.
func (c *Config) WebhookURL() string { return c.v.GetString(KeyWebhookURL) }

// MailEnabled reports whether mail notifications are on.
func (c *Config) MailEnabled() bool { return c.v.GetBool(KeyMailEnable) }

// Set overrides a key for this process.
func (c *Config) Set(key string, value any) { c.v.Set(key, value) }

// Save writes the current configuration to config.yaml in the data dir.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	return c.v.WriteConfigAs(filepath.Join(c.dir, "config.yaml"))
}
