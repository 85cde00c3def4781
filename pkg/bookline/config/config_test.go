package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bookline/bookline/pkg/bookline/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigAccessors(t *testing.T) {
	cfg := config.New(map[string]any{
		"name":    "booklined",
		"count":   3,
		"ratio":   2.0,
		"enabled": true,
		"timeout": "45s",
		"window":  60,
	})

	assert.Equal(t, "booklined", cfg.String("name", "fallback"))
	assert.Equal(t, "fallback", cfg.String("missing", "fallback"))
	assert.Equal(t, "fallback", cfg.String("count", "fallback"))

	assert.Equal(t, 3, cfg.Int("count", 0))
	assert.Equal(t, 2, cfg.Int("ratio", 0))
	assert.Equal(t, 9, cfg.Int("missing", 9))

	assert.True(t, cfg.Bool("enabled", false))
	assert.False(t, cfg.Bool("missing", false))

	assert.Equal(t, 45*time.Second, cfg.Duration("timeout", time.Second))
	assert.Equal(t, time.Minute, cfg.Duration("window", time.Second))
	assert.Equal(t, time.Second, cfg.Duration("missing", time.Second))

	assert.True(t, cfg.Has("name"))
	assert.False(t, cfg.Has("missing"))
}

func TestConfigNilData(t *testing.T) {
	cfg := config.New(nil)
	assert.Equal(t, "x", cfg.String("anything", "x"))
	assert.NotNil(t, cfg.Raw())
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	t.Run("yaml", func(t *testing.T) {
		cfg, err := config.FromFile(write("config.yaml",
			"nats_url: nats://example:4222\nsession_ttl: 12h\n"))
		require.NoError(t, err)
		assert.Equal(t, "nats://example:4222", cfg.String("nats_url", ""))
		assert.Equal(t, 12*time.Hour, cfg.Duration("session_ttl", 0))
	})

	t.Run("json", func(t *testing.T) {
		cfg, err := config.FromFile(write("config.json", `{"db_path":"./test.db"}`))
		require.NoError(t, err)
		assert.Equal(t, "./test.db", cfg.String("db_path", ""))
	})

	t.Run("malformed content", func(t *testing.T) {
		_, err := config.FromFile(write("bad.yaml", "\tnot yaml"))
		assert.Error(t, err)

		_, err = config.FromFile(write("bad.json", "not json"))
		assert.Error(t, err)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := config.FromFile(write("config.toml", "x = 1\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported extension")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := config.FromFile(filepath.Join(dir, "missing.yaml"))
		assert.Error(t, err)
	})
}

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"nats_url: nats://file:4222\nopenai_model: gpt-4o\ninfer_timeout: 10s\n"), 0o644))

	s, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nats://file:4222", s.NATSURL)
	assert.Equal(t, "gpt-4o", s.OpenAIModel)
	assert.Equal(t, 10*time.Second, s.InferTimeout)
	assert.Equal(t, "booklined", s.ServiceName)
	assert.Equal(t, 24*time.Hour, s.SessionTTL)
}

func TestLoadSettings_EnvOverrides(t *testing.T) {
	t.Setenv("NATS_URL", "nats://env:4222")
	t.Setenv("SESSION_TTL", "1h")

	s, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "nats://env:4222", s.NATSURL)
	assert.Equal(t, time.Hour, s.SessionTTL)
}
