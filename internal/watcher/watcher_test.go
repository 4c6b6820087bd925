package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOperation_String(t *testing.T) {
	assert.Equal(t, "CREATE", OpCreate.String())
	assert.Equal(t, "MODIFY", OpModify.String())
	assert.Equal(t, "DELETE", OpDelete.String())
	assert.Equal(t, "RENAME", OpRename.String())
	assert.Equal(t, "UNKNOWN", Operation(99).String())
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 200*time.Millisecond, opts.DebounceWindow)
	assert.Equal(t, 5*time.Second, opts.PollInterval)
	assert.Equal(t, 1000, opts.EventBufferSize)
}

func TestOptions_WithDefaults_FillsZeroValues(t *testing.T) {
	opts := Options{}.WithDefaults()
	defaults := DefaultOptions()
	assert.Equal(t, defaults.DebounceWindow, opts.DebounceWindow)
	assert.Equal(t, defaults.PollInterval, opts.PollInterval)
	assert.Equal(t, defaults.EventBufferSize, opts.EventBufferSize)
}

func TestOptions_WithDefaults_PreservesSetValues(t *testing.T) {
	opts := Options{DebounceWindow: time.Second, PollInterval: time.Minute, EventBufferSize: 5}.WithDefaults()
	assert.Equal(t, time.Second, opts.DebounceWindow)
	assert.Equal(t, time.Minute, opts.PollInterval)
	assert.Equal(t, 5, opts.EventBufferSize)
}
