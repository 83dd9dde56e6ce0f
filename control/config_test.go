package control_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/miki/control"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "miki.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := control.Load("", zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:2203", cfg.ListenAddr)
	assert.Equal(t, 1024, cfg.ReadBufferSize)
	assert.True(t, cfg.AnnounceToken)
	assert.Equal(t, 100, cfg.Cache.Capacity)
	assert.Equal(t, 300*time.Second, cfg.Cache.Lifetime)
	assert.Equal(t, "none", cfg.Archive.Type)
	assert.Empty(t, cfg.Ops.ListenAddr)
	assert.Equal(t, -1, cfg.LoopCPU)
}

func TestLoadYamlOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
listen_addr: 0.0.0.0:4000
announce_token: false
cache:
  capacity: 10
  lifetime: 90s
log:
  format: json
archive:
  type: s3
  s3:
    bucket: relay-archive
`)
	cfg, err := control.Load(path, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:4000", cfg.ListenAddr)
	assert.False(t, cfg.AnnounceToken)
	assert.Equal(t, 10, cfg.Cache.Capacity)
	assert.Equal(t, 90*time.Second, cfg.Cache.Lifetime)
	assert.Equal(t, 30*time.Second, cfg.Cache.SweepInterval)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "relay-archive", cfg.Archive.S3.Bucket)
	assert.Equal(t, "miki/archive/", cfg.Archive.S3.Prefix)
}

func TestEnvOverridesYaml(t *testing.T) {
	path := writeConfig(t, "listen_addr: 0.0.0.0:4000\n")
	t.Setenv("MIKI_LISTEN_ADDR", "127.0.0.1:5000")
	t.Setenv("MIKI_OPS_ADDR", "127.0.0.1:9100")
	t.Setenv("MIKI_LOG_LEVEL", "debug")
	t.Setenv("MIKI_CACHE_CAPACITY", "7")
	t.Setenv("MIKI_CACHE_LIFETIME", "1m")

	cfg, err := control.Load(path, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:5000", cfg.ListenAddr)
	assert.Equal(t, "127.0.0.1:9100", cfg.Ops.ListenAddr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 7, cfg.Cache.Capacity)
	assert.Equal(t, time.Minute, cfg.Cache.Lifetime)
}

func TestEnvOverrideBadNumber(t *testing.T) {
	t.Setenv("MIKI_CACHE_CAPACITY", "lots")
	_, err := control.Load("", zerolog.Nop())
	assert.ErrorContains(t, err, "MIKI_CACHE_CAPACITY")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := control.Load(filepath.Join(t.TempDir(), "absent.yaml"), zerolog.Nop())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*control.Config)
		want   string
	}{
		{"ops port conflict", func(c *control.Config) { c.Ops.ListenAddr = c.ListenAddr }, "must differ"},
		{"s3 without bucket", func(c *control.Config) { c.Archive.Type = "s3" }, "bucket"},
		{"unknown archive", func(c *control.Config) { c.Archive.Type = "kafka" }, "archive.type"},
		{"zero capacity", func(c *control.Config) { c.Cache.Capacity = 0 }, "cache.capacity"},
		{"negative lifetime", func(c *control.Config) { c.Cache.Lifetime = -time.Second }, "cache.lifetime"},
		{"bad level", func(c *control.Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *control.Config) { c.Log.Format = "xml" }, "log.format"},
		{"zero buffer", func(c *control.Config) { c.ReadBufferSize = 0 }, "read_buffer_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := control.DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
	assert.NoError(t, control.DefaultConfig().Validate())
}

func TestValidateLoopCPU(t *testing.T) {
	cfg := control.DefaultConfig()
	cfg.LoopCPU = 2
	assert.NoError(t, cfg.Validate())
	cfg.LoopCPU = -2
	assert.ErrorContains(t, cfg.Validate(), "loop_cpu")
}
