package decoder

import (
	"path"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"

	"github.com/osa030/audioplayer/internal/app/playback"
	"github.com/osa030/audioplayer/internal/domain/audioitem"
)

type codec string

const (
	codecMP3 codec = "mp3"
	codecWAV codec = "wav"
)

// codecFor picks the container decoder for a stream. OTHER falls back to the URL
// extension and then to mp3.
func codecFor(s audioitem.Stream) codec {
	switch s.Format {
	case audioitem.StreamFormatAudioWAV:
		return codecWAV
	case audioitem.StreamFormatAudioMPEG:
		return codecMP3
	}
	p := s.URL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if strings.EqualFold(path.Ext(p), ".wav") {
		return codecWAV
	}
	return codecMP3
}

func decode(c codec, b *buffer) (beep.StreamSeekCloser, beep.Format, error) {
	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
		err      error
	)
	switch c {
	case codecWAV:
		streamer, format, err = wav.Decode(b)
	default:
		streamer, format, err = mp3.Decode(b)
	}
	if err != nil {
		var le *loadError
		if errors.As(err, &le) {
			return nil, beep.Format{}, err
		}
		if cause := b.failure(); errors.As(cause, &le) {
			return nil, beep.Format{}, cause
		}
		return nil, beep.Format{}, classify(playback.ErrorTypeInternalDeviceError, errors.Wrapf(err, "failed to decode %s", c))
	}
	return streamer, format, nil
}

func formatTags(c codec, format beep.Format, length int) []playback.Tag {
	tags := []playback.Tag{
		{Key: "codec", Value: string(c), Type: playback.TagString},
		{Key: "sampleRate", Value: strconv.Itoa(int(format.SampleRate)), Type: playback.TagUint},
		{Key: "channels", Value: strconv.Itoa(format.NumChannels), Type: playback.TagUint},
		{Key: "precision", Value: strconv.Itoa(format.Precision), Type: playback.TagUint},
	}
	if length > 0 {
		ms := format.SampleRate.D(length).Milliseconds()
		tags = append(tags, playback.Tag{Key: "durationInMilliseconds", Value: strconv.FormatInt(ms, 10), Type: playback.TagUint})
	}
	return tags
}
