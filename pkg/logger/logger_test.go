package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

func TestNewBuildsJSONLogger(t *testing.T) {
	t.Parallel()

	log, err := New("debug")
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestWithContextAddsFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	log := &Logger{Logger: zap.New(core)}

	log.WithContext("corr-1", "player-1").Info("handled")
	log.WithContext("corr-2", "").Info("anonymous")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "corr-1", entries[0].ContextMap()["correlation_id"])
	assert.Equal(t, "player-1", entries[0].ContextMap()["player_id"])
	_, hasPlayer := entries[1].ContextMap()["player_id"]
	assert.False(t, hasPlayer)
}

func TestWithPlayerTagsEntries(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	log := &Logger{Logger: zap.New(core)}

	log.WithPlayer("player-7").Info("skipped")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "player-7", entries[0].ContextMap()["player_id"])
}

func TestGlobalIsReplaceable(t *testing.T) {
	previous := Global()
	t.Cleanup(func() { SetGlobal(previous) })

	nop := Nop()
	SetGlobal(nop)
	assert.Same(t, nop, Global())
}
