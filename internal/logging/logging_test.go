package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fnal-sbnd/rrarchiver/internal/config"
)

func TestNew_WritesJSONToLogFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "archiver.log")
	logger, closeFn := New(config.AppConfig{LogFile: logPath, LogLevel: "INFO"}, false)
	defer closeFn()

	logger.Info("hello", "run", 100)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"run":100`)
}

func TestNew_VerboseEnablesDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "archiver.log")
	logger, closeFn := New(config.AppConfig{LogFile: logPath, LogLevel: "INFO"}, true)
	defer closeFn()

	logger.Debug("debug line")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "debug line")
}

func TestNew_NoLogFile_StillReturnsUsableLogger(t *testing.T) {
	logger, closeFn := New(config.AppConfig{LogLevel: "INFO"}, false)
	defer closeFn()
	assert.NotPanics(t, func() { logger.Info("stderr only") })
}
