package logging

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCategoryLoggersWriteNamedEntries(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := UseCore(core)
	defer restore()

	Tools("connected to %s", "gmail")
	StagesDebug("rendered %d vars", 3)
	ToolsWarn("slow server %s", "notion")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "tools", entries[0].LoggerName)
	assert.Equal(t, "connected to gmail", entries[0].Message)
	assert.Equal(t, "stages", entries[1].LoggerName)
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
}

func TestDisabledCategoryIsSilent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(Config{
		Level:      "debug",
		File:       filepath.Join(dir, "logs", "app.log"),
		Categories: map[string]bool{"journal": false},
		Quiet:      true,
	}))
	defer CloseAll()

	assert.False(t, IsCategoryEnabled(CategoryJournal))
	assert.True(t, IsCategoryEnabled(CategoryTools))

	JournalWarn("should not appear")
	ToolsWarn("should appear")
	_ = L().Sync()

	data, err := os.ReadFile(filepath.Join(dir, "logs", "app.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "should appear")
	assert.NotContains(t, string(data), "should not appear")
}

func TestInitializeRejectsUnknownLevel(t *testing.T) {
	err := Initialize(Config{Level: "loud", Quiet: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestRequestLoggerCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := UseCore(core)
	defer restore()

	WithRequestID(CategoryAPI, "req-42").WithField("agent", "clarifying").Info("dispatch")

	entries := logs.FilterMessage("dispatch").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "req-42", ctx["req"])
	assert.Equal(t, "clarifying", ctx["agent"])
}

func TestTimerThreshold(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := UseCore(core)
	defer restore()

	timer := StartTimer(CategoryGeneration, "generate")
	time.Sleep(5 * time.Millisecond)
	elapsed := timer.StopWithThreshold(time.Millisecond)

	assert.GreaterOrEqual(t, elapsed, 5*time.Millisecond)
	warns := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warns, 1)
	assert.True(t, strings.HasPrefix(warns[0].Message, "generation/generate took"))
}

func TestConcurrentGet(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	restore := UseCore(core)
	defer restore()

	var wg sync.WaitGroup
	got := make([]*Logger, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = Get(CategoryOrchestrator)
		}(i)
	}
	wg.Wait()

	for _, l := range got {
		assert.Same(t, got[0], l)
	}
}
