package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestSetLevel(t *testing.T) {
	defer SetLevel("info")

	assert.True(t, SetLevel("debug"))
	assert.Equal(t, zapcore.DebugLevel, Level())

	assert.False(t, SetLevel("verbose"))
	assert.Equal(t, zapcore.DebugLevel, Level())

	assert.NotNil(t, GetLogger("test"))
}
