package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TestWithLevelQuietsCore verifies that wrapping a debug-enabled logger with a
// higher level suppresses the lower entries, including after With.
func TestWithLevelQuietsCore(t *testing.T) {
	t.Parallel()

	quiet := New(zapcore.DebugLevel).Desugar().WithOptions(WithLevel(zapcore.WarnLevel)).Core()

	require.False(t, quiet.Enabled(zapcore.DebugLevel))
	require.False(t, quiet.Enabled(zapcore.InfoLevel))
	require.True(t, quiet.Enabled(zapcore.WarnLevel))
	require.True(t, quiet.Enabled(zapcore.ErrorLevel))

	withFields := quiet.With([]zapcore.Field{zap.String("source", "gtk_popup.py")})
	require.False(t, withFields.Enabled(zapcore.InfoLevel))
}
