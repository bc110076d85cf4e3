package logging

import (
	"bytes"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf)
	h.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }

	logger := &log.Logger{Handler: h, Level: log.DebugLevel}
	logger.WithFields(log.Fields{"method": "get_user", "count": 2}).Debug("invalidated")

	assert.Equal(t, "2024-05-06 07:08:09 D invalidated count=2 method=get_user\n", buf.String())
}

func TestLevel(t *testing.T) {
	level, err := Level("")
	require.NoError(t, err)
	assert.Equal(t, log.ErrorLevel, level)

	level, err = Level("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, log.DebugLevel, level)

	level, err = Level("loud")
	assert.Error(t, err)
	assert.Equal(t, log.ErrorLevel, level)
}

func TestInit(t *testing.T) {
	t.Setenv(EnvLevel, "info")
	var buf bytes.Buffer
	require.NoError(t, Init(&buf))

	log.Debug("hidden")
	log.Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), " I shown")
}
