//go:build unit

package zaplogger

import (
	"errors"
	"testing"

	"github.com/hugolhafner/easyflow/logger"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_FieldsAndLevels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := New(zap.New(core)).With("node", "b")

	l.Error("listener failed", "error", errors.New("boom"), "attempt", 2)
	l.Debug("delivered")

	entries := logs.All()
	require.Len(t, entries, 2)

	require.Equal(t, zap.ErrorLevel, entries[0].Level)
	ctx := entries[0].ContextMap()
	require.Equal(t, "b", ctx["node"])
	require.Equal(t, "boom", ctx["error"])
	require.EqualValues(t, 2, ctx["attempt"])

	require.Equal(t, zap.DebugLevel, entries[1].Level)
}

func TestZapLogger_OddKeyValues(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := New(zap.New(core))

	l.Info("odd", "key", "value", "dangling")
	l.Info("non-string key", 42, "value")

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, map[string]any{"key": "value"}, entries[0].ContextMap())
	require.Empty(t, entries[1].ContextMap())
}

func TestZapLogger_Level(t *testing.T) {
	core, _ := observer.New(zap.WarnLevel)
	l := New(zap.New(core))

	require.Equal(t, logger.WarnLevel, l.Level())
}
