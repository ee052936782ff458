package config

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	home := withHome(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".dashdock", "docsets"), cfg.DocsetDir)
	assert.Equal(t, "http://api.zealdocs.org", cfg.CatalogURL)
	assert.Equal(t, ProxySystem, cfg.Proxy.Type)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	withHome(t)

	cfg := Default()
	cfg.CatalogURL = "http://catalog.example"
	cfg.Mirrors = []string{"http://mirror.example"}
	cfg.Proxy = Proxy{Type: ProxyUser, Host: "proxy.example", Port: 8080}
	cfg.StartMinimized = true
	require.NoError(t, Save(cfg))

	got, err := Load()
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLoadFillsEmptyCatalogURL(t *testing.T) {
	home := withHome(t)
	dir := filepath.Join(home, ".dashdock")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"),
		[]byte("catalog_url = \"\"\n"), 0644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://api.zealdocs.org", cfg.CatalogURL)
}

func TestLoadCorruptFile(t *testing.T) {
	home := withHome(t)
	dir := filepath.Join(home, ".dashdock")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"),
		[]byte("not = [valid"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestProxyFunc(t *testing.T) {
	assert.Nil(t, Proxy{Type: ProxyNone}.Func())

	fn := Proxy{Type: ProxyUser, Host: "proxy.example", Port: 3128}.Func()
	require.NotNil(t, fn)
	req, _ := http.NewRequest(http.MethodGet, "http://target.example", nil)
	u, err := fn(req)
	require.NoError(t, err)
	assert.Equal(t, "proxy.example:3128", u.Host)
	assert.Nil(t, u.User)

	fn = Proxy{
		Type: ProxyUser, Host: "proxy.example", Port: 3128,
		Authenticate: true, Username: "u", Password: "p",
	}.Func()
	u, err = fn(req)
	require.NoError(t, err)
	require.NotNil(t, u.User)
	pw, _ := u.User.Password()
	assert.Equal(t, "u", u.User.Username())
	assert.Equal(t, "p", pw)
}
