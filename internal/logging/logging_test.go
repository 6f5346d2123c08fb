package logging

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestSetupWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rssnews.log")
	logger, cleanup, err := Setup(Config{Level: "debug", FilePath: path, Service: "poll"})
	require.NoError(t, err)
	defer cleanup()

	logger.Info("poll cycle complete", slog.Int("fetched", 3))
	assert.FileExists(t, path)
}

func TestSetupStderrOnly(t *testing.T) {
	logger, cleanup, err := Setup(DefaultConfig("work"))
	require.NoError(t, err)
	defer cleanup()
	assert.NotNil(t, logger)
}
