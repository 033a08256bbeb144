package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActivity_String(t *testing.T) {
	tests := []struct {
		activity Activity
		expected string
	}{
		{ActivityIdle, "IDLE"},
		{ActivityPlaying, "PLAYING"},
		{ActivityStopped, "STOPPED"},
		{ActivityPaused, "PAUSED"},
		{ActivityBufferUnderrun, "BUFFER_UNDERRUN"},
		{ActivityFinished, "FINISHED"},
		{Activity(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.activity.String())
		})
	}
}

func TestParseFocusState(t *testing.T) {
	for _, f := range []FocusState{FocusNone, FocusBackground, FocusForeground} {
		parsed, ok := ParseFocusState(f.String())
		assert.True(t, ok)
		assert.Equal(t, f, parsed)
	}

	_, ok := ParseFocusState("SIDEWAYS")
	assert.False(t, ok)
}
