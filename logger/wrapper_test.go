//go:build unit

package logger_test

import (
	"testing"

	"github.com/hugolhafner/easyflow/logger"
	"github.com/stretchr/testify/require"
)

type recordingBase struct {
	levels []logger.LogLevel
	kvs    [][]any
}

func (r *recordingBase) Level() logger.LogLevel {
	return logger.DebugLevel
}

func (r *recordingBase) Log(level logger.LogLevel, _ string, kv ...any) {
	r.levels = append(r.levels, level)
	r.kvs = append(r.kvs, kv)
}

func TestLevelWrapper_With(t *testing.T) {
	base := &recordingBase{}
	root := logger.WrapLogger(base)
	child := root.With("node", "a")
	grandchild := child.With("peer", "b")

	root.Info("root", "k", 1)
	child.Warn("child")
	grandchild.Error("grandchild", "k", 2)

	require.Equal(t, []logger.LogLevel{logger.InfoLevel, logger.WarnLevel, logger.ErrorLevel}, base.levels)
	require.Equal(t, []any{"k", 1}, base.kvs[0])
	require.Equal(t, []any{"node", "a"}, base.kvs[1])
	require.Equal(t, []any{"node", "a", "peer", "b", "k", 2}, base.kvs[2])
}

func TestLogLevel_String(t *testing.T) {
	require.Equal(t, "debug", logger.DebugLevel.String())
	require.Equal(t, "error", logger.ErrorLevel.String())
	require.Equal(t, "unknown", logger.LogLevel(42).String())
}
