package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "AudioPlayer", cfg.Player.Namespace)
	assert.Equal(t, "Content", cfg.Player.Channel)
	assert.Equal(t, 2, cfg.Player.DecoderPoolSize)
	assert.Equal(t, 64, cfg.Player.EventBufferSize)
	assert.Equal(t, 20*time.Millisecond, cfg.Decoder.Tick())
	assert.Equal(t, 10*time.Second, cfg.Decoder.LoadTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.Decoder.StallThreshold())
	assert.Equal(t, time.Duration(0), cfg.Focus.GrantDelay())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "stdout", cfg.Log.Output)
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config",
			yaml: `
server:
  addr: ":9090"
  hooks:
    on_started: ["echo started"]
player:
  decoder_pool_size: 3
decoder:
  tick_ms: 10
log:
  level: debug
`,
			wantErr: false,
		},
		{
			name:    "pool too large",
			yaml:    "player:\n  decoder_pool_size: 4\n",
			wantErr: true,
			errMsg:  "DecoderPoolSize",
		},
		{
			name:    "unknown log level",
			yaml:    "log:\n  level: loud\n",
			wantErr: true,
			errMsg:  "Level",
		},
		{
			name:    "file output without path",
			yaml:    "log:\n  output: file\n",
			wantErr: true,
			errMsg:  "File",
		},
		{
			name:    "tick too small",
			yaml:    "decoder:\n  tick_ms: 1\n",
			wantErr: true,
			errMsg:  "TickMs",
		},
		{
			name:    "broken yaml",
			yaml:    "server: [",
			wantErr: true,
			errMsg:  "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":7070\"\nplayer:\n  decoder_pool_size: 1\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, 1, cfg.Player.DecoderPoolSize)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestParse_EnvOverride(t *testing.T) {
	t.Setenv("AUDIOPLAYER_ADDR", ":6060")
	t.Setenv("AUDIOPLAYER_POOL_SIZE", "3")
	t.Setenv("AUDIOPLAYER_LOG_LEVEL", "warn")
	t.Setenv("AUDIOPLAYER_ADMIN_TOKEN", "secret")

	cfg, err := Parse([]byte("server:\n  addr: \":7070\"\n"))
	require.NoError(t, err)

	assert.Equal(t, ":6060", cfg.Server.Addr)
	assert.Equal(t, 3, cfg.Player.DecoderPoolSize)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "secret", cfg.Admin.Token)
}

func TestParse_EnvOverrideInvalidPoolSize(t *testing.T) {
	t.Setenv("AUDIOPLAYER_POOL_SIZE", "two")

	_, err := Parse([]byte("{}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUDIOPLAYER_POOL_SIZE")
}
