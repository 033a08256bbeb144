package decoder

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/audioplayer/internal/app/playback"
)

// Errors
var (
	ErrSourceTooLarge = errors.New("source exceeds size limit")
	ErrSourceClosed   = errors.New("source closed")
	ErrUnknownSource  = errors.New("unknown source id")
)

// loadError carries the media error type a fetch failure maps to.
type loadError struct {
	errType playback.ErrorType
	err     error
}

func (e *loadError) Error() string { return e.err.Error() }
func (e *loadError) Unwrap() error { return e.err }

func classify(errType playback.ErrorType, err error) error {
	return &loadError{errType: errType, err: err}
}

// buffer accumulates a source while it downloads. Reads block until the requested bytes
// arrive, the download completes, or the buffer is aborted.
type buffer struct {
	mu   sync.Mutex
	cond *sync.Cond
	data []byte
	pos  int64
	done bool
	err  error
}

func newBuffer() *buffer {
	b := &buffer{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return 0, ErrSourceClosed
	}
	b.data = append(b.data, p...)
	b.cond.Broadcast()
	return len(p), nil
}

// finish marks the download complete. A nil err means EOF.
func (b *buffer) finish(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	b.done = true
	b.err = err
	b.cond.Broadcast()
}

func (b *buffer) abort(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.done = true
	if b.err == nil {
		b.err = err
	}
	b.cond.Broadcast()
}

// failure returns the error the download ended with, if any.
func (b *buffer) failure() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *buffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.pos >= int64(len(b.data)) && !b.done {
		b.cond.Wait()
	}
	if b.pos < int64(len(b.data)) {
		n := copy(p, b.data[b.pos:])
		b.pos += int64(n)
		return n, nil
	}
	if b.err != nil {
		return 0, b.err
	}
	return 0, io.EOF
}

func (b *buffer) Seek(offset int64, whence int) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = b.pos
	case io.SeekEnd:
		for !b.done {
			b.cond.Wait()
		}
		if b.err != nil {
			return b.pos, b.err
		}
		base = int64(len(b.data))
	default:
		return b.pos, errors.Newf("decoder: invalid whence: %d", whence)
	}
	if base+offset < 0 {
		return b.pos, errors.New("decoder: negative seek position")
	}
	b.pos = base + offset
	return b.pos, nil
}

func (b *buffer) Close() error {
	b.abort(ErrSourceClosed)
	return nil
}

// fetch copies the source at rawURL into b until it completes, fails, or ctx ends.
func fetch(ctx context.Context, client *http.Client, rawURL string, limit int64, b *buffer) {
	rc, err := open(ctx, client, rawURL)
	if err != nil {
		b.finish(err)
		return
	}
	defer rc.Close()

	n, err := io.Copy(b, io.LimitReader(rc, limit+1))
	switch {
	case ctx.Err() != nil:
		b.finish(ctx.Err())
	case err != nil:
		b.finish(classify(playback.ErrorTypeServiceUnavailable, errors.Wrap(err, "failed to read source")))
	case n > limit:
		b.finish(classify(playback.ErrorTypeInternalDeviceError, errors.Wrapf(ErrSourceTooLarge, "limit=%d", limit)))
	default:
		b.finish(nil)
	}
}

func open(ctx context.Context, client *http.Client, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, classify(playback.ErrorTypeInvalidRequest, errors.Wrapf(err, "invalid source url: %s", rawURL))
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, classify(playback.ErrorTypeInvalidRequest, errors.Wrap(err, "failed to build request"))
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, classify(playback.ErrorTypeServiceUnavailable, errors.Wrap(err, "failed to fetch source"))
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			errType := playback.ErrorTypeInvalidRequest
			if resp.StatusCode >= 500 {
				errType = playback.ErrorTypeInternalServerError
			}
			return nil, classify(errType, errors.Newf("source responded with status %d", resp.StatusCode))
		}
		return resp.Body, nil
	case "file", "":
		path := u.Path
		if u.Scheme == "" {
			path = rawURL
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, classify(playback.ErrorTypeInvalidRequest, errors.Wrapf(err, "failed to open source: %s", path))
		}
		return f, nil
	default:
		return nil, classify(playback.ErrorTypeInvalidRequest, errors.Newf("unsupported source scheme: %s", u.Scheme))
	}
}
