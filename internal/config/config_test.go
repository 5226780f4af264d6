package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFrom(t *testing.T) {
	tests := []struct {
		name        string
		file        string
		env         map[string]string
		wantErr     bool
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "defaults only",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, "info", cfg.Logging.Level)
				assert.Equal(t, "both", cfg.Logging.Output)
				assert.Equal(t, DefaultMaxInputSize, cfg.Data.MaxInputSize)
				assert.True(t, cfg.Security.RateLimit.Enabled)
				assert.Equal(t, 2, cfg.Data.Workers)
			},
		},
		{
			name: "file overlays defaults",
			file: `
server:
  port: 9090
  read_timeout: 5s
data:
  max_input_size: 64MB
  datasets_file: datasets.yaml
`,
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9090, cfg.Server.Port)
				assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout, "unset fields keep defaults")
				assert.Equal(t, 64*datasize.MB, cfg.Data.MaxInputSize)
				assert.Equal(t, "datasets.yaml", cfg.Data.DatasetsFile)
			},
		},
		{
			name: "env overrides file",
			file: "server:\n  port: 9090\n",
			env: map[string]string{
				"TWEAK_SERVER_PORT":              "7070",
				"TWEAK_LOGGING_LEVEL":            "debug",
				"TWEAK_DATA_CACHE_SIZE":          "1GB",
				"TWEAK_SECURITY_ALLOWED_ORIGINS": "http://a,http://b",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 7070, cfg.Server.Port)
				assert.Equal(t, "debug", cfg.Logging.Level)
				assert.Equal(t, datasize.GB, cfg.Data.CacheSize)
				assert.Equal(t, []string{"http://a", "http://b"}, cfg.Security.AllowedOrigins)
			},
		},
		{
			name:    "unknown file key",
			file:    "server:\n  prot: 1\n",
			wantErr: true,
		},
		{
			name:    "invalid port",
			env:     map[string]string{"TWEAK_SERVER_PORT": "70000"},
			wantErr: true,
		},
		{
			name:    "invalid log level",
			file:    "logging:\n  level: loud\n",
			wantErr: true,
		},
		{
			name:    "pong shorter than ping",
			file:    "websocket:\n  ping_period: 1m\n  pong_wait: 10s\n",
			wantErr: true,
		},
		{
			name:    "bad byte size",
			env:     map[string]string{"TWEAK_DATA_MAX_INPUT_SIZE": "lots"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeConfig(t, tt.file)
			}

			cfg, err := LoadFrom(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.validateCfg(t, cfg)
		})
	}
}

func TestLoadFrom_MissingFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestResolvePaths(t *testing.T) {
	base := t.TempDir()
	cfg := Default()
	cfg.Paths.BaseDir = base
	cfg.Paths.ReportsDir = filepath.Join(base, "out")

	paths, err := cfg.ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "data", "input"), paths.InputDir)
	assert.Equal(t, filepath.Join(base, "out"), paths.ReportsDir)
	assert.Equal(t, filepath.Join(base, "logs"), paths.LogsDir)

	require.NoError(t, paths.EnsureDirectories())
	assert.True(t, FileExists(paths.InputDir))
	assert.True(t, FileExists(paths.ReportsDir))

	assert.Equal(t, filepath.Join(paths.InputDir, "nyc.csv"), paths.GetInputPath("nyc.csv"))
	abs := filepath.Join(base, "elsewhere.csv")
	assert.Equal(t, abs, paths.GetInputPath(abs))
	assert.Equal(t, filepath.Join(paths.ReportsDir, "nyc.csv"), paths.GetReportPath("nyc.csv"))
}

func TestGetPaths(t *testing.T) {
	paths, err := GetPaths()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(paths.BaseDir))
	assert.Equal(t, filepath.Join(paths.BaseDir, "data", "reports"), paths.ReportsDir)
}
