package playback_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/audioplayer/internal/app/playback"
	"github.com/osa030/audioplayer/internal/domain/audioitem"
	"github.com/osa030/audioplayer/internal/infra/decoder"
	"github.com/osa030/audioplayer/internal/infra/focus"
)

type messageLog struct {
	mu       sync.Mutex
	messages []playback.Message
}

func (l *messageLog) Send(msg playback.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

func (l *messageLog) names(token string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, m := range l.messages {
		if m.Token() == token {
			out = append(out, m.Header.Name)
		}
	}
	return out
}

func (l *messageLog) has(token, name string) bool {
	for _, n := range l.names(token) {
		if n == name {
			return true
		}
	}
	return false
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func silentWAV(t *testing.T, name string, d time.Duration) string {
	t.Helper()
	format := beep.Format{SampleRate: 8000, NumChannels: 1, Precision: 2}
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, wav.Encode(f, beep.Silence(format.SampleRate.N(d)), format))
	return path
}

func TestController_PlaysQueueThroughRenderers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	focusMgr := focus.NewManager(0)
	go focusMgr.Run(ctx)

	renderers := decoder.NewPool(2, decoder.Options{Tick: 5 * time.Millisecond})
	decoders := make([]playback.Decoder, len(renderers))
	for i, r := range renderers {
		decoders[i] = r
		defer r.Close()
	}

	sender := &messageLog{}
	c, err := playback.NewController(playback.Config{}, playback.Collaborators{
		Decoders: decoders,
		Focus:    focusMgr,
		Sender:   sender,
	})
	require.NoError(t, err)
	defer c.Close()

	for i, token := range []string{"first", "second"} {
		ok := c.HandleImmediately(playback.Directive{
			MessageID:    "m-" + token,
			Kind:         playback.DirectivePlay,
			PlayBehavior: audioitem.PlayBehaviorEnqueue,
			Item: audioitem.AudioItem{
				ID: token,
				Stream: audioitem.Stream{
					URL:            silentWAV(t, token+".wav", time.Duration(150+50*i)*time.Millisecond),
					Format:         audioitem.StreamFormatAudioWAV,
					Token:          token,
					ProgressReport: audioitem.ProgressReport{Delay: 50 * time.Millisecond},
				},
			},
		})
		require.True(t, ok)
	}

	require.Eventually(t, func() bool {
		return sender.has("second", playback.EventPlaybackFinished)
	}, 5*time.Second, 10*time.Millisecond)

	for _, token := range []string{"first", "second"} {
		names := sender.names(token)
		started := indexOf(names, playback.EventPlaybackStarted)
		require.GreaterOrEqual(t, started, 0, "%s: %v", token, names)
		assert.Greater(t, indexOf(names, playback.EventStreamMetadataExtracted), started, "%s: %v", token, names)
		assert.Greater(t, indexOf(names, playback.EventProgressReportDelayElapsed), started, "%s: %v", token, names)
		assert.Less(t, indexOf(names, playback.EventPlaybackNearlyFinished), indexOf(names, playback.EventPlaybackFinished), "%s: %v", token, names)
		assert.Equal(t, playback.EventPlaybackFinished, names[len(names)-1], "%s: %v", token, names)
	}

	firstFinished := indexOf(messageNames(sender), playback.EventPlaybackFinished)
	secondStarted := -1
	for i, m := range messages(sender) {
		if m.Token() == "second" && m.Header.Name == playback.EventPlaybackStarted {
			secondStarted = i
		}
	}
	assert.Greater(t, secondStarted, firstFinished)

	require.Eventually(t, func() bool {
		return c.Activity() == playback.ActivityFinished && focusMgr.State(playback.DefaultChannel) == playback.FocusNone
	}, time.Second, 10*time.Millisecond)
}

func messages(l *messageLog) []playback.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]playback.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

func messageNames(l *messageLog) []string {
	var out []string
	for _, m := range messages(l) {
		out = append(out, m.Header.Name)
	}
	return out
}
