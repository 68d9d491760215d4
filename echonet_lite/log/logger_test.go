package log

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_Log(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, err := NewLogger(path)
	require.NoError(t, err)
	defer logger.Close()

	logger.Log("起動しました: %s", "test")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "起動しました: test")
}

func TestLogger_SlogWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, err := NewLogger(path)
	require.NoError(t, err)
	defer logger.Close()

	// *Logger を slog ハンドラの出力先として使う
	l := slog.New(slog.NewTextHandler(logger, nil))
	l.Info("server starting", "addr", "localhost:8080")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "server starting")
	assert.Contains(t, string(data), "localhost:8080")
}

func TestLogger_RotateKeepsWriting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, err := NewLogger(path)
	require.NoError(t, err)
	defer logger.Close()

	l := slog.New(slog.NewTextHandler(logger, nil))
	l.Info("before rotate")

	// ローテーション先を空けるため、現在のファイルを退避
	require.NoError(t, os.Rename(path, path+".1"))
	require.NoError(t, logger.Rotate())

	l.Info("after rotate")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "before rotate")
	assert.Contains(t, string(data), "after rotate")
}
