// Package config loads reposearch settings from a YAML or TOML file and
// applies REPOSEARCH_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/git-pkgs/reposearch/client"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPageSize   = 50
	DefaultDebounce   = 300 * time.Millisecond
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 2
	DefaultUserAgent  = "reposearch"
	DefaultCacheSize  = 128
	DefaultCacheTTL   = time.Minute
)

// Config is the effective configuration.
type Config struct {
	Server     string      `yaml:"server" toml:"server"`
	Token      string      `yaml:"token,omitempty" toml:"token,omitempty"`
	Username   string      `yaml:"username,omitempty" toml:"username,omitempty"`
	Password   string      `yaml:"password,omitempty" toml:"password,omitempty"`
	PageSize   int         `yaml:"page_size" toml:"page_size"`
	Debounce   Duration    `yaml:"debounce" toml:"debounce"`
	Timeout    Duration    `yaml:"timeout" toml:"timeout"`
	MaxRetries int         `yaml:"max_retries" toml:"max_retries"`
	UserAgent  string      `yaml:"user_agent" toml:"user_agent"`
	Cache      CacheConfig `yaml:"cache" toml:"cache"`
}

// CacheConfig bounds the search result cache.
type CacheConfig struct {
	Size int      `yaml:"size" toml:"size"`
	TTL  Duration `yaml:"ttl" toml:"ttl"`
}

// NewConfig returns the defaults.
func NewConfig() *Config {
	return &Config{
		PageSize:   DefaultPageSize,
		Debounce:   Duration(DefaultDebounce),
		Timeout:    Duration(DefaultTimeout),
		MaxRetries: DefaultMaxRetries,
		UserAgent:  DefaultUserAgent,
		Cache: CacheConfig{
			Size: DefaultCacheSize,
			TTL:  Duration(DefaultCacheTTL),
		},
	}
}

// DefaultPath returns the configuration file location:
//   - $XDG_CONFIG_HOME/reposearch/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/reposearch/config.yaml (default)
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "reposearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "reposearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "reposearch", "config.yaml")
}

// Load reads the file at path, or DefaultPath when path is empty, on top of
// the defaults and then applies environment overrides. A missing file at the
// default location is not an error; a missing explicit path is.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	if err := cfg.loadFile(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			err = nil
		}
		if err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, c)
	case ".yaml", ".yml", "":
		err = yaml.Unmarshal(data, c)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies REPOSEARCH_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("REPOSEARCH_SERVER"); v != "" {
		c.Server = v
	}
	if v := os.Getenv("REPOSEARCH_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("REPOSEARCH_USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("REPOSEARCH_PASSWORD"); v != "" {
		c.Password = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Server == "" {
		return errors.New("server is not set (use --server, REPOSEARCH_SERVER or the config file)")
	}
	u, err := url.Parse(c.Server)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server must be an http(s) URL, got %q", c.Server)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive, got %d", c.PageSize)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("debounce must be non-negative, got %s", c.Debounce)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got %s", c.Timeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got %d", c.MaxRetries)
	}
	if c.Username != "" && c.Password == "" && c.Token == "" {
		return fmt.Errorf("password is required with username %q", c.Username)
	}
	return nil
}

// Credentials returns the credential store the settings describe: a bearer
// token if set, otherwise basic auth, otherwise nil.
func (c *Config) Credentials() client.Credentials {
	switch {
	case c.Token != "":
		// A session, so a 401 stops further requests with ErrReauthenticate
		// instead of resending a rejected token.
		return client.NewSession(c.Token, time.Time{})
	case c.Username != "":
		return client.BasicAuth(c.Username, c.Password)
	}
	return nil
}

// ClientOptions returns the HTTP client options for these settings.
func (c *Config) ClientOptions() []client.Option {
	opts := []client.Option{
		client.WithMaxRetries(c.MaxRetries),
	}
	if c.Timeout > 0 {
		opts = append(opts, client.WithTimeout(c.Timeout.Std()))
	}
	if creds := c.Credentials(); creds != nil {
		opts = append(opts, client.WithCredentials(creds))
	}
	return opts
}

// Masked returns a copy with secrets replaced, for display.
func (c *Config) Masked() *Config {
	cp := *c
	if cp.Token != "" {
		cp.Token = mask(cp.Token)
	}
	if cp.Password != "" {
		cp.Password = "****"
	}
	return &cp
}

func mask(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****"
}

// Write encodes the configuration as "yaml" or "toml".
func (c *Config) Write(w io.Writer, format string) error {
	switch format {
	case "toml":
		return toml.NewEncoder(w).Encode(c)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown config format %q (use yaml or toml)", format)
}
