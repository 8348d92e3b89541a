package mocklogger

import (
	"testing"

	"github.com/hugolhafner/easyflow/logger"
)

func (m *MockLogger) AssertCalledWithMessage(tb testing.TB, message string) {
	tb.Helper()

	for _, entry := range m.Entries() {
		if entry.Message == message {
			return
		}
	}

	tb.Errorf("expected log message '%s' to be called", message)
}

func (m *MockLogger) AssertCalledWithLevelAndMessage(tb testing.TB, level logger.LogLevel, message string) {
	tb.Helper()

	for _, entry := range m.Entries() {
		if entry.Level == level && entry.Message == message {
			return
		}
	}

	tb.Errorf("expected log with level '%s' and message '%s' to be called", level.String(), message)
}

func (m *MockLogger) AssertNotCalledWithMessage(tb testing.TB, message string) {
	tb.Helper()

	for _, entry := range m.Entries() {
		if entry.Message == message {
			tb.Errorf("expected log message '%s' to NOT be called", message)
			return
		}
	}
}

func (m *MockLogger) AssertNotCalledWithLevel(tb testing.TB, level logger.LogLevel) {
	tb.Helper()

	for _, entry := range m.Entries() {
		if entry.Level == level {
			tb.Errorf("expected log level '%s' to NOT be called", level.String())
			return
		}
	}
}

// AssertCalledWithField checks that some entry with the given message carried
// key=value among its fields.
func (m *MockLogger) AssertCalledWithField(tb testing.TB, message, key string, value any) {
	tb.Helper()

	for _, entry := range m.Entries() {
		if entry.Message != message {
			continue
		}

		for i := 0; i+1 < len(entry.KV); i += 2 {
			if entry.KV[i] == key && entry.KV[i+1] == value {
				return
			}
		}
	}

	tb.Errorf("expected log '%s' with field %s=%v to be called", message, key, value)
}
