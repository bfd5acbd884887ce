package logging

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitAttachesLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.log")

	ctx, err := Init(context.Background(),
		WithLogLevel("debug"),
		WithLogFormat(LogFormatJSON),
		WithOutputPaths([]string{path}),
		WithInitialFields(map[string]interface{}{"app": "recordsync"}),
	)
	require.NoError(t, err)

	l := ctxzap.Extract(ctx)
	l.Info("hello", zap.String("entity_type", "customer"))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"hello"`)
	require.Contains(t, string(data), `"entity_type":"customer"`)
	require.Contains(t, string(data), `"app":"recordsync"`)
}

func TestWithLogLevelFallsBackToInfo(t *testing.T) {
	zc := zap.NewProductionConfig()
	WithLogLevel("chatty")(&zc)
	require.Equal(t, zap.InfoLevel, zc.Level.Level())
}

func TestWithLogFormat(t *testing.T) {
	zc := zap.NewProductionConfig()
	WithLogFormat(LogFormatConsole)(&zc)
	require.Equal(t, LogFormatConsole, zc.Encoding)

	WithLogFormat("xml")(&zc)
	require.Equal(t, LogFormatJSON, zc.Encoding)
}
