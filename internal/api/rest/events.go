package rest

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/audioplayer/internal/app/notification"
)

var errSubscriberSlow = errors.New("event stream subscriber is not keeping up")

// sseStream adapts an HTTP event stream to notification.Stream.
type sseStream struct {
	ch chan *notification.Notification
}

func (s *sseStream) Send(n *notification.Notification) error {
	select {
	case s.ch <- n:
		return nil
	default:
		return errSubscriberSlow
	}
}

// streamEvents sends the current state, then every notification as a server-sent event
// named after its kind.
func (s *Server) streamEvents(c *gin.Context) {
	stream := &sseStream{ch: make(chan *notification.Notification, 64)}
	id := s.deps.Subscriptions.Subscribe(stream)
	defer s.deps.Subscriptions.Unsubscribe(id)
	zlog.Debug().Msgf("rest: event stream opened: subscription=%s", id)

	c.SSEvent("state", s.deps.Player.Status())
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-s.deps.Done:
			// Deliver what was flushed before shutdown.
			for {
				select {
				case n := <-stream.ch:
					c.SSEvent(string(n.Kind), n)
				default:
					return false
				}
			}
		case n := <-stream.ch:
			c.SSEvent(string(n.Kind), n)
			return true
		}
	})
	zlog.Debug().Msgf("rest: event stream closed: subscription=%s", id)
}
