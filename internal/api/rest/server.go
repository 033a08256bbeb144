// Package rest exposes the player over HTTP: directive submission, the focus simulator,
// state inspection and an event stream.
package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osa030/audioplayer/internal/app/notification"
	"github.com/osa030/audioplayer/internal/app/playback"
)

// AdminTokenHeader is the header carrying the control token.
const AdminTokenHeader = "X-Admin-Token"

// Player is the directive-facing side of the playback controller.
type Player interface {
	PreHandle(d playback.Directive) error
	Handle(messageID string) bool
	Cancel(messageID string)
	HandleImmediately(d playback.Directive) bool
	Status() playback.Status
}

// DirectiveParser turns a raw envelope into a directive.
type DirectiveParser interface {
	ParseJSON(raw []byte) (playback.Directive, error)
}

// FocusSimulator lets a client act as a competing audio activity.
type FocusSimulator interface {
	Apply(level playback.FocusState)
	State(channel string) playback.FocusState
}

// Subscriptions registers event stream subscribers.
type Subscriptions interface {
	Subscribe(stream notification.Stream) string
	Unsubscribe(subscriptionID string)
}

// Deps groups the collaborators of the HTTP API.
type Deps struct {
	Player        Player
	Parser        DirectiveParser
	Focus         FocusSimulator
	Subscriptions Subscriptions
	Channel       string
	AdminToken    string
	// Done ends open event streams when closed.
	Done <-chan struct{}
}

// Server serves the HTTP API.
type Server struct {
	deps   Deps
	engine *gin.Engine
}

// NewServer creates the API server and registers its routes.
func NewServer(deps Deps) *Server {
	if deps.Channel == "" {
		deps.Channel = playback.DefaultChannel
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	s := &Server{deps: deps, engine: engine}

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/state", s.getState)
	engine.GET("/events", s.streamEvents)

	control := engine.Group("/", adminAuth(deps.AdminToken))
	control.POST("/directives", s.postDirective)
	control.POST("/directives/prehandle", s.preHandleDirective)
	control.POST("/directives/:id/handle", s.handleDirective)
	control.DELETE("/directives/:id", s.cancelDirective)
	control.POST("/focus", s.postFocus)

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Player.Status())
}

type focusRequest struct {
	Focus string `json:"focus" binding:"required"`
}

func (s *Server) postFocus(c *gin.Context) {
	var req focusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	level, ok := playback.ParseFocusState(req.Focus)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown focus: " + req.Focus})
		return
	}
	s.deps.Focus.Apply(level)
	c.JSON(http.StatusOK, gin.H{"focus": s.deps.Focus.State(s.deps.Channel).String()})
}
