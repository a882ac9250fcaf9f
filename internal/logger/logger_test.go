package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"lily/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LogConfig
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: &config.LogConfig{
				Level:      "info",
				OutputPath: "stdout",
				Encoding:   "json",
			},
			wantErr: false,
		},
		{
			name:    "nil config",
			cfg:     nil,
			wantErr: true,
		},
		{
			name: "invalid level",
			cfg: &config.LogConfig{
				Level:      "invalid",
				OutputPath: "stdout",
				Encoding:   "json",
			},
			wantErr: false, // defaults to info level
		},
		{
			name: "console encoding",
			cfg: &config.LogConfig{
				Level:      "debug",
				OutputPath: "stdout",
				Encoding:   "console",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, logger)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, logger)
			}
		})
	}
}

func TestNewLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "lily.log")

	logger, err := NewLogger(&config.LogConfig{
		Level:      "info",
		OutputPath: path,
		Encoding:   "json",
	})
	assert.NoError(t, err)
	assert.NotNil(t, logger)

	logger.Info("rotated file sink", "path", path)
	assert.NoError(t, logger.Sync())
}

func TestLoggerMethods(t *testing.T) {
	logger := NewNop()

	// Test each log level
	logger.Debug("debug message", "key", "value")
	logger.Info("info message", "key", "value")
	logger.Warn("warn message", "key", "value")
	logger.Error("error message", "key", "value")

	child := logger.With("component", "test")
	child.Info("child logger message")
}
