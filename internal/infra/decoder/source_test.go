package decoder

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_ReadBlocksUntilData(t *testing.T) {
	b := newBuffer()
	got := make(chan []byte)
	go func() {
		p := make([]byte, 4)
		n, _ := b.Read(p)
		got <- p[:n]
	}()

	select {
	case <-got:
		t.Fatal("read returned before any data was written")
	case <-time.After(20 * time.Millisecond):
	}

	_, err := b.Write([]byte("abcd"))
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), <-got)
}

func TestBuffer_EOFAndSeek(t *testing.T) {
	b := newBuffer()
	_, err := b.Write([]byte("hello"))
	require.NoError(t, err)
	b.finish(nil)

	end, err := b.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(5), end)

	_, err = b.Seek(1, io.SeekStart)
	require.NoError(t, err)
	rest, err := io.ReadAll(b)
	require.NoError(t, err)
	assert.Equal(t, "ello", string(rest))

	_, err = b.Seek(-10, io.SeekCurrent)
	assert.Error(t, err)
}

func TestBuffer_AbortUnblocksReaders(t *testing.T) {
	b := newBuffer()
	done := make(chan error)
	go func() {
		_, err := b.Read(make([]byte, 1))
		done <- err
	}()

	require.NoError(t, b.Close())
	assert.ErrorIs(t, <-done, ErrSourceClosed)

	_, err := b.Write([]byte("late"))
	assert.ErrorIs(t, err, ErrSourceClosed)
}
