package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesToFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	t.Setenv("APEXBOT_LOG_FILE", path)

	logger := InitLogger(true)
	require.NotNil(t, logger)
	assert.Same(t, logger, GetLogger())

	Named("pipeline").Info("logger file sink check")
	CleanupLogger()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "logger file sink check")
	assert.Contains(t, string(data), "pipeline")
}
