//go:build unit

package errorhandler_test

import (
	"errors"
	"testing"

	"github.com/hugolhafner/easyflow/errorhandler"
	"github.com/stretchr/testify/require"
)

func TestNewErrorContext(t *testing.T) {
	ec := errorhandler.NewErrorContext("merger", []byte("frame-1"), nil)

	require.Equal(t, "merger", ec.Node)
	require.Equal(t, []byte("frame-1"), ec.Payload)
	require.Nil(t, ec.Error)
	require.Equal(t, 1, ec.Attempt)
}

func TestNewErrorContext_CopiesPayload(t *testing.T) {
	payload := []byte("frame-1")
	ec := errorhandler.NewErrorContext("merger", payload, nil)

	payload[0] = 'X'
	require.Equal(t, []byte("frame-1"), ec.Payload)
}

func TestErrorContext_IncrementAttempt(t *testing.T) {
	ec := errorhandler.NewErrorContext("merger", nil, nil)
	require.Equal(t, 1, ec.Attempt)

	ec = ec.IncrementAttempt()
	require.Equal(t, 2, ec.Attempt)

	ec = ec.IncrementAttempt()
	require.Equal(t, 3, ec.Attempt)
}

func TestErrorContext_WithError(t *testing.T) {
	ec := errorhandler.NewErrorContext("merger", nil, nil)
	require.Nil(t, ec.Error)

	sampleErr := errors.New("sample error")
	ec = ec.WithError(sampleErr)
	require.Equal(t, sampleErr, ec.Error)
}

func TestErrorContext_WithAttempt(t *testing.T) {
	ec := errorhandler.NewErrorContext("merger", nil, nil)

	ec = ec.WithAttempt(5)
	require.Equal(t, 5, ec.Attempt)
}
