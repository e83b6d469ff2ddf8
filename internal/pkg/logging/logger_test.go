package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_DuplicatesToLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "freshcut.log")
	t.Setenv("LOG_FILE", path)

	logger, err := NewLogger("freshcut", "test")
	require.NoError(t, err)
	logger.Info("hello")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"service":"freshcut"`)
}

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "chatty")

	_, err := NewLogger("freshcut", "test")
	assert.Error(t, err)
}
