// Package directive parses AudioPlayer directives into playback instructions.
package directive

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/audioplayer/internal/app/playback"
	"github.com/osa030/audioplayer/internal/domain/audioitem"
)

// ErrMalformedDirective is returned for directives that cannot be turned into instructions.
var ErrMalformedDirective = errors.New("malformed directive")

// Directive names.
const (
	NamePlay       = "Play"
	NameStop       = "Stop"
	NameClearQueue = "ClearQueue"
)

// Header identifies a directive.
type Header struct {
	Namespace string `json:"namespace" validate:"required"`
	Name      string `json:"name" validate:"required"`
	MessageID string `json:"messageId" validate:"required"`
}

// Envelope is a directive as received from the controlling service.
type Envelope struct {
	Header  Header         `json:"header"`
	Payload map[string]any `json:"payload"`
}

// PlayPayload is the payload of a Play directive.
type PlayPayload struct {
	PlayBehavior string           `mapstructure:"playBehavior" default:"ENQUEUE" validate:"oneof=ENQUEUE REPLACE_ALL REPLACE_ENQUEUED"`
	AudioItem    AudioItemPayload `mapstructure:"audioItem"`
}

// AudioItemPayload is the audio item of a Play directive.
type AudioItemPayload struct {
	AudioItemID string        `mapstructure:"audioItemId" default:"anonymous"`
	Stream      StreamPayload `mapstructure:"stream"`
}

// StreamPayload describes the stream of an audio item.
type StreamPayload struct {
	URL                   string                `mapstructure:"url" validate:"required"`
	StreamFormat          string                `mapstructure:"streamFormat" default:"AUDIO_MPEG" validate:"oneof=AUDIO_MPEG AUDIO_WAV OTHER"`
	OffsetInMilliseconds  int64                 `mapstructure:"offsetInMilliseconds" validate:"gte=0"`
	ExpiryTime            string                `mapstructure:"expiryTime"`
	ProgressReport        ProgressReportPayload `mapstructure:"progressReport"`
	Token                 string                `mapstructure:"token"`
	ExpectedPreviousToken string                `mapstructure:"expectedPreviousToken"`
}

// ProgressReportPayload holds the progress report timing in milliseconds.
type ProgressReportPayload struct {
	DelayInMilliseconds    int64 `mapstructure:"progressReportDelayInMilliseconds" validate:"gte=0"`
	IntervalInMilliseconds int64 `mapstructure:"progressReportIntervalInMilliseconds" validate:"gte=0"`
}

// ClearQueuePayload is the payload of a ClearQueue directive.
type ClearQueuePayload struct {
	ClearBehavior string `mapstructure:"clearBehavior" default:"CLEAR_ENQUEUED" validate:"oneof=CLEAR_ENQUEUED CLEAR_ALL"`
}

// Parser turns envelopes into playback directives. Malformed input is reported
// to the exception reporter before the error is returned.
type Parser struct {
	namespace string
	reporter  playback.ExceptionReporter
	validate  *validator.Validate
}

// NewParser creates a parser accepting directives of the given namespace.
func NewParser(namespace string, reporter playback.ExceptionReporter) *Parser {
	if namespace == "" {
		namespace = playback.DefaultNamespace
	}
	return &Parser{
		namespace: namespace,
		reporter:  reporter,
		validate:  validator.New(),
	}
}

// ParseJSON decodes and parses a raw JSON envelope.
func (p *Parser) ParseJSON(raw []byte) (playback.Directive, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return playback.Directive{}, p.malformed("", errors.Wrap(err, "failed to decode envelope"))
	}
	return p.Parse(env)
}

// Parse converts an envelope into a directive.
func (p *Parser) Parse(env Envelope) (playback.Directive, error) {
	id := env.Header.MessageID
	if err := p.validate.Struct(env.Header); err != nil {
		return playback.Directive{}, p.malformed(id, errors.Wrap(err, "invalid header"))
	}
	if env.Header.Namespace != p.namespace {
		return playback.Directive{}, p.malformed(id, errors.Newf("unexpected namespace: %s", env.Header.Namespace))
	}

	switch env.Header.Name {
	case NamePlay:
		var payload PlayPayload
		if err := p.decode(env.Payload, &payload); err != nil {
			return playback.Directive{}, p.malformed(id, err)
		}
		item, err := payload.AudioItem.toAudioItem()
		if err != nil {
			return playback.Directive{}, p.malformed(id, err)
		}
		return playback.Directive{
			MessageID:    id,
			Kind:         playback.DirectivePlay,
			PlayBehavior: audioitem.PlayBehavior(payload.PlayBehavior),
			Item:         item,
		}, nil
	case NameStop:
		return playback.Directive{MessageID: id, Kind: playback.DirectiveStop}, nil
	case NameClearQueue:
		var payload ClearQueuePayload
		if err := p.decode(env.Payload, &payload); err != nil {
			return playback.Directive{}, p.malformed(id, err)
		}
		return playback.Directive{
			MessageID:     id,
			Kind:          playback.DirectiveClearQueue,
			ClearBehavior: audioitem.ClearBehavior(payload.ClearBehavior),
		}, nil
	default:
		return playback.Directive{}, p.malformed(id, errors.Wrapf(playback.ErrUnknownDirective, "name=%s", env.Header.Name))
	}
}

// decode fills out from a payload map, then applies defaults and validation.
func (p *Parser) decode(payload map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(payload); err != nil {
		return errors.Wrap(err, "failed to decode payload")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := p.validate.Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}

func (p *Parser) malformed(messageID string, cause error) error {
	zlog.Warn().Msgf("directive: malformed: message_id=%s error=%v", messageID, cause)
	if p.reporter != nil {
		p.reporter.ReportException(messageID, cause.Error())
	}
	return errors.Mark(cause, ErrMalformedDirective)
}

func (a AudioItemPayload) toAudioItem() (audioitem.AudioItem, error) {
	s := a.Stream
	item := audioitem.AudioItem{
		ID: a.AudioItemID,
		Stream: audioitem.Stream{
			URL:    s.URL,
			Format: audioitem.StreamFormat(s.StreamFormat),
			Offset: time.Duration(s.OffsetInMilliseconds) * time.Millisecond,
			ProgressReport: audioitem.ProgressReport{
				Delay:    time.Duration(s.ProgressReport.DelayInMilliseconds) * time.Millisecond,
				Interval: time.Duration(s.ProgressReport.IntervalInMilliseconds) * time.Millisecond,
			},
			Token:                 s.Token,
			ExpectedPreviousToken: s.ExpectedPreviousToken,
		},
	}
	if s.ExpiryTime != "" {
		expiry, err := time.Parse(time.RFC3339, s.ExpiryTime)
		if err != nil {
			return audioitem.AudioItem{}, errors.Wrap(err, "failed to parse expiryTime")
		}
		item.Stream.Expiry = expiry
	}
	return item, nil
}
