package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_Levels(t *testing.T) {
	cases := []struct {
		level   string
		format  string
		enabled zapcore.Level
		muted   zapcore.Level
	}{
		{level: "debug", format: "json", enabled: zapcore.DebugLevel, muted: zapcore.DebugLevel - 1},
		{level: "warn", format: "console", enabled: zapcore.WarnLevel, muted: zapcore.InfoLevel},
		{level: "bogus", format: "json", enabled: zapcore.InfoLevel, muted: zapcore.DebugLevel},
		{level: "", format: "", enabled: zapcore.InfoLevel, muted: zapcore.DebugLevel},
	}

	for _, tc := range cases {
		l, err := NewLogger(tc.level, tc.format, "hostel-data")
		require.NoError(t, err)
		assert.True(t, l.Core().Enabled(tc.enabled), "level %q", tc.level)
		assert.False(t, l.Core().Enabled(tc.muted), "level %q", tc.level)
	}
}
