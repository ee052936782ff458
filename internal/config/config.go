package config

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ProxyType selects how outbound transfers reach the network.
type ProxyType string

const (
	ProxyNone   ProxyType = "none"
	ProxySystem ProxyType = "system"
	ProxyUser   ProxyType = "user"
)

type Proxy struct {
	Type         ProxyType `toml:"type"`
	Host         string    `toml:"host"`
	Port         int       `toml:"port"`
	Authenticate bool      `toml:"authenticate"`
	Username     string    `toml:"username"`
	Password     string    `toml:"password"`
}

type Config struct {
	DocsetDir  string   `toml:"docset_dir"`
	IndexFile  string   `toml:"index_file"`
	CatalogURL string   `toml:"catalog_url"`
	Mirrors    []string `toml:"mirrors"`
	Proxy      Proxy    `toml:"proxy"`

	// UI preferences kept for the desktop front-end.
	StartMinimized  bool `toml:"start_minimized"`
	ShowSystray     bool `toml:"show_systray"`
	MinimumFontSize int  `toml:"minimum_font_size"`
}

const defaultCatalogURL = "http://api.zealdocs.org"

func baseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".dashdock")
}

func configPath() string {
	return filepath.Join(baseDir(), "config.toml")
}

func Default() *Config {
	base := baseDir()
	return &Config{
		DocsetDir:       filepath.Join(base, "docsets"),
		IndexFile:       filepath.Join(base, "docsets.db"),
		CatalogURL:      defaultCatalogURL,
		Proxy:           Proxy{Type: ProxySystem},
		MinimumFontSize: 9,
	}
}

// Load reads the settings file, falling back to defaults when it does not
// exist yet.
func Load() (*Config, error) {
	cfg := Default()

	path := configPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if cfg.CatalogURL == "" {
		cfg.CatalogURL = defaultCatalogURL
	}
	return cfg, nil
}

// Save persists the settings atomically: the file is fully written beside
// the target and renamed over it.
func Save(cfg *Config) error {
	path := configPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "config-*.toml")
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(tmp).Encode(cfg); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Func returns the proxy selector for an http.Transport.
func (p Proxy) Func() func(*http.Request) (*url.URL, error) {
	switch p.Type {
	case ProxyUser:
		u := &url.URL{
			Scheme: "http",
			Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
		}
		if p.Authenticate {
			u.User = url.UserPassword(p.Username, p.Password)
		}
		return http.ProxyURL(u)
	case ProxyNone:
		return nil
	default:
		return http.ProxyFromEnvironment
	}
}

// Client builds the HTTP client all transfers go through, honoring the
// proxy settings.
func (c *Config) Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{Proxy: c.Proxy.Func()},
	}
}
