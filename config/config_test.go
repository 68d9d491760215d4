package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	// 明示されたパスが存在しない場合はエラー
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "0130", cfg.Device.ClassCode)
	assert.Equal(t, 1, cfg.Device.Instance)
	assert.Equal(t, "data/devices.json", cfg.Schema.File)
	assert.Equal(t, 8080, cfg.HTTPServer.Port)
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
debug = true

[schema]
file = "schemas/appendix.json"

[device]
class_code = "0291"
instance = 2
release = "C"

[network]
interfaces = ["eth0"]

[http_server]
host = "0.0.0.0"
port = 9000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "schemas/appendix.json", cfg.Schema.File)
	assert.Equal(t, "0291", cfg.Device.ClassCode)
	assert.Equal(t, 2, cfg.Device.Instance)
	assert.Equal(t, "C", cfg.Device.Release)
	assert.Equal(t, []string{"eth0"}, cfg.Network.Interfaces)
	assert.Equal(t, "0.0.0.0", cfg.HTTPServer.Host)
	assert.Equal(t, 9000, cfg.HTTPServer.Port)
}

func TestApplyCommandLineArgs(t *testing.T) {
	cfg := NewConfig()

	cfg.ApplyCommandLineArgs(CommandLineArgs{
		DeviceClassCode:          "0EF0",
		DeviceClassCodeSpecified: true,
		DeviceRelease:            "B",
		DeviceReleaseSpecified:   true,
		HTTPServerPort:           8888,
		HTTPServerPortSpecified:  true,
	})

	assert.Equal(t, "0EF0", cfg.Device.ClassCode)
	assert.Equal(t, "B", cfg.Device.Release)
	assert.Equal(t, 8888, cfg.HTTPServer.Port)
	// 未指定の値はデフォルトのまま
	assert.Equal(t, 1, cfg.Device.Instance)
}
