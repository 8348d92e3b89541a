//go:build unit

package listener

import (
	"testing"

	"github.com/hugolhafner/easyflow/errorhandler"
	"github.com/hugolhafner/easyflow/logger"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_LogsWarningsToStderr(t *testing.T) {
	cfg := defaultConfig()

	require.Equal(t, logger.WarnLevel, cfg.Logger.Level())
	require.NotNil(t, cfg.Telemetry)
	require.NotNil(t, cfg.Pool)
	require.Equal(t, errorhandler.ActionFail{}, cfg.ErrorHandler.Handle(t.Context(), errorhandler.ErrorContext{}))
}
