package rest

import (
	"io"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/osa030/audioplayer/internal/app/playback"
)

func (s *Server) parse(c *gin.Context) (playback.Directive, bool) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return playback.Directive{}, false
	}
	d, err := s.deps.Parser.ParseJSON(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return playback.Directive{}, false
	}
	return d, true
}

func (s *Server) postDirective(c *gin.Context) {
	d, ok := s.parse(c)
	if !ok {
		return
	}
	handled := s.deps.Player.HandleImmediately(d)
	c.JSON(http.StatusOK, gin.H{"messageId": d.MessageID, "handled": handled})
}

func (s *Server) preHandleDirective(c *gin.Context) {
	d, ok := s.parse(c)
	if !ok {
		return
	}
	if err := s.deps.Player.PreHandle(d); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, playback.ErrDuplicateMessageID):
			status = http.StatusConflict
		case errors.Is(err, playback.ErrClosed):
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"messageId": d.MessageID})
}

func (s *Server) handleDirective(c *gin.Context) {
	id := c.Param("id")
	c.JSON(http.StatusOK, gin.H{"messageId": id, "handled": s.deps.Player.Handle(id)})
}

func (s *Server) cancelDirective(c *gin.Context) {
	s.deps.Player.Cancel(c.Param("id"))
	c.Status(http.StatusNoContent)
}
