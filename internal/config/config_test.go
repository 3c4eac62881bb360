package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "lib/convertable_files", cfg.Convert.WorkDir)
	assert.Equal(t, "ISO-8859-1", cfg.Convert.Charset)
	assert.Equal(t, 3067, cfg.Convert.SRSID)
	assert.Equal(t, 1, cfg.Convert.Workers)
	assert.Equal(t, "pvm", cfg.Convert.DateNameMarker)
	assert.Equal(t, 80, cfg.Server.Port)
	assert.Equal(t, "/vexline", cfg.Server.PathPrefix)
	assert.Equal(t, int64(104857600), cfg.Server.MaxUploadBytes)
	assert.Equal(t, 60, cfg.Server.CacheTTLMins)
	assert.Equal(t, time.Hour, cfg.Server.CacheTTL())
	assert.Equal(t, 60, cfg.Server.RequestsPerMinute)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.NoError(t, cfg.Validate("convert"))
	assert.NoError(t, cfg.Validate("serve"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
convert:
  work_dir: /data/convert
  charset: UTF-8
  workers: 4
log:
  level: debug
  format: console
server:
  port: 9090
  allowed_origins:
    - https://kartta.example
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/data/convert", cfg.Convert.WorkDir)
	assert.Equal(t, "UTF-8", cfg.Convert.Charset)
	assert.Equal(t, 4, cfg.Convert.Workers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://kartta.example"}, cfg.Server.AllowedOrigins)
	// Defaults still apply for unset values
	assert.Equal(t, 3067, cfg.Convert.SRSID)
	assert.Equal(t, "/vexline", cfg.Server.PathPrefix)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
convert:
  charset: UTF-8
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("GPKG_CONVERT_CHARSET", "windows-1252")
	t.Setenv("GPKG_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "windows-1252", cfg.Convert.Charset)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("GPKG_SERVER_PORT", "3000")
	t.Setenv("GPKG_CONVERT_SRS_ID", "3879")
	t.Setenv("GPKG_CONVERT_DATE_NAME_MARKER", "datum")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 3879, cfg.Convert.SRSID)
	assert.Equal(t, "datum", cfg.Convert.DateNameMarker)
}

func TestLoadExplicitFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	// Ignored when a path is given
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  port: 1111\n"), 0644))

	path := filepath.Join(dir, "tuotanto.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 2222\nconvert:\n  date_name_marker: paiva\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2222, cfg.Server.Port)
	assert.Equal(t, "paiva", cfg.Convert.DateNameMarker)
}

func TestLoadExplicitFileMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("convert: [unclosed"), 0644))

	_, err := Load("")
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Convert.WorkDir = "lib/convertable_files"
	cfg.Convert.Charset = "ISO-8859-1"
	cfg.Convert.SRSID = 3067
	cfg.Convert.Workers = 1
	cfg.Convert.DateNameMarker = "pvm"
	cfg.Server.Port = 80
	cfg.Server.MaxUploadBytes = 1 << 20
	cfg.Server.CacheTTLMins = 60
	cfg.Server.RequestsPerMinute = 60
	return cfg
}

func TestValidateConvert_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Convert.WorkDir = " "
	cfg.Convert.Charset = "no-such-charset"
	cfg.Convert.SRSID = 0

	err := cfg.Validate("convert")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "convert.work_dir is required")
	assert.Contains(t, err.Error(), `convert.charset "no-such-charset"`)
	assert.Contains(t, err.Error(), "convert.srs_id must be > 0")
}

func TestValidateConvert_BlankDateNameMarker(t *testing.T) {
	cfg := validDefaults()
	cfg.Convert.DateNameMarker = "  "

	err := cfg.Validate("convert")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "convert.date_name_marker is required")
}

func TestValidateConvert_IgnoresServer(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	assert.NoError(t, cfg.Validate("convert"))
}

func TestValidateConvert_NegativeWorkers(t *testing.T) {
	cfg := validDefaults()
	cfg.Convert.Workers = -1

	err := cfg.Validate("convert")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "convert.workers")
}

func TestValidateServe_ValidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 9090

	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateServe_Limits(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.MaxUploadBytes = 0
	cfg.Server.CacheTTLMins = 0
	cfg.Server.RequestsPerMinute = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_upload_bytes")
	assert.Contains(t, err.Error(), "cache_ttl_mins")
	assert.Contains(t, err.Error(), "requests_per_minute")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
