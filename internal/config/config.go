package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/loykin/servcur/internal/auth"
	"github.com/loykin/servcur/internal/logger"
	servtls "github.com/loykin/servcur/internal/tls"
)

// EnvPrefix prefixes environment overrides, e.g. SERVCUR_SERVER_LISTEN.
const EnvPrefix = "SERVCUR"

// Config represents the daemon's TOML configuration. Every key has a default
// so the daemon starts without a file.
type Config struct {
	DataDir  string         `toml:"data_dir" mapstructure:"data_dir"`
	Env      []string       `toml:"env" mapstructure:"env"`             // KEY=VALUE added to every deployment step
	EnvFiles []string       `toml:"env_files" mapstructure:"env_files"` // .env files merged before env
	Server   ServerConfig   `toml:"server" mapstructure:"server"`
	Executor ExecutorConfig `toml:"executor" mapstructure:"executor"`
	Projects ProjectsConfig `toml:"projects" mapstructure:"projects"`
	Docker   DockerConfig   `toml:"docker" mapstructure:"docker"`
	Log      logger.Config  `toml:"log" mapstructure:"log"`
	History  HistoryConfig  `toml:"history" mapstructure:"history"`
	Metrics  MetricsConfig  `toml:"metrics" mapstructure:"metrics"`
}

type ServerConfig struct {
	Listen   string         `toml:"listen" mapstructure:"listen"`
	BasePath string         `toml:"base_path" mapstructure:"base_path"`
	TLS      servtls.Config `toml:"tls" mapstructure:"tls"`
	Auth     auth.Config    `toml:"auth" mapstructure:"auth"`
}

type ExecutorConfig struct {
	InboxSize      int    `toml:"inbox_size" mapstructure:"inbox_size"`
	StreamCapacity int    `toml:"stream_capacity" mapstructure:"stream_capacity"`
	LogDir         string `toml:"log_dir" mapstructure:"log_dir"`
}

type ProjectsConfig struct {
	Root      string `toml:"root" mapstructure:"root"`
	ScriptDir string `toml:"script_dir" mapstructure:"script_dir"`
	StoreFile string `toml:"store_file" mapstructure:"store_file"`
}

type DockerConfig struct {
	Enabled    bool   `toml:"enabled" mapstructure:"enabled"`
	Host       string `toml:"host" mapstructure:"host"`
	APIVersion string `toml:"api_version" mapstructure:"api_version"`
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	DSN     string `toml:"dsn" mapstructure:"dsn"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled" mapstructure:"enabled"`
}

var defaults = map[string]any{
	"data_dir":                 "./_data",
	"env":                      []string{},
	"env_files":                []string{},
	"server.listen":            "127.0.0.1:8080",
	"server.base_path":         "/api",
	"server.tls.enabled":       false,
	"server.tls.cert_file":     "",
	"server.tls.key_file":      "",
	"server.tls.dir":           "certs",
	"server.tls.auto_generate": false,
	"server.tls.min_version":   "",
	"server.tls.common_name":   "",
	"server.tls.dns_names":     []string{},
	"server.tls.valid_days":    365,
	"server.auth.enabled":      false,
	"server.auth.jwt_secret":   "",
	"server.auth.token_ttl":    auth.DefaultTokenTTL.String(),
	"executor.inbox_size":      32,
	"executor.stream_capacity": 128,
	"executor.log_dir":         "logs",
	"projects.root":            "projects",
	"projects.script_dir":      "temp/scripts",
	"projects.store_file":      "store/store.json",
	"docker.enabled":           true,
	"docker.host":              "",
	"docker.api_version":       "",
	"log.level":                "info",
	"log.format":               logger.FormatText,
	"log.color":                false,
	"log.timestamps":           true,
	"log.file":                 "",
	"log.max_size_mb":          logger.DefaultMaxSizeMB,
	"log.max_backups":          logger.DefaultMaxBackups,
	"log.max_age_days":         logger.DefaultMaxAgeDays,
	"log.compress":             false,
	"history.enabled":          false,
	"history.dsn":              "",
	"metrics.enabled":          true,
}

func newViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg, err := Load("")
	if err != nil {
		// defaults alone always decode
		panic(err)
	}
	return cfg
}

// Load reads path (TOML) on top of the defaults and SERVCUR_* environment
// overrides. An empty path loads defaults and environment only. Relative
// directories are resolved against data_dir.
func Load(path string) (Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg = cfg.resolve()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) resolve() Config {
	under := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(c.DataDir, p)
	}
	c.Executor.LogDir = under(c.Executor.LogDir)
	c.Projects.Root = under(c.Projects.Root)
	c.Projects.ScriptDir = under(c.Projects.ScriptDir)
	c.Projects.StoreFile = under(c.Projects.StoreFile)
	c.Server.TLS.Dir = under(c.Server.TLS.Dir)
	return c
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, errors.New("data_dir cannot be empty"))
	}
	if strings.TrimSpace(c.Server.Listen) == "" {
		errs = append(errs, errors.New("server.listen cannot be empty"))
	}
	if c.Executor.InboxSize <= 0 {
		errs = append(errs, fmt.Errorf("executor.inbox_size must be positive, got %d", c.Executor.InboxSize))
	}
	if c.Server.Auth.Enabled && len(c.Server.Auth.Users) == 0 {
		errs = append(errs, errors.New("server.auth.users is required when auth is enabled"))
	}
	if c.History.Enabled && strings.TrimSpace(c.History.DSN) == "" {
		errs = append(errs, errors.New("history.dsn is required when history is enabled"))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case logger.FormatText, logger.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	for _, kv := range c.Env {
		if i := strings.IndexByte(kv, '='); i <= 0 {
			errs = append(errs, fmt.Errorf("env entry %q must be KEY=VALUE", kv))
		}
	}
	return errors.Join(errs...)
}

// GlobalEnv merges env_files in order and then the env list, later entries
// winning.
func (c Config) GlobalEnv() (map[string]string, error) {
	m := make(map[string]string)
	for _, p := range c.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, fmt.Errorf("env file %s: %w", p, err)
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range c.Env {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m, nil
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	// Mitigate G304: sanitize user-provided path by cleaning it before use.
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i > 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			m[k] = v
		}
	}
	return m, nil
}
