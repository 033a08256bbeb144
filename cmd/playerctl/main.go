// Package main provides the player control CLI entry point.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/osa030/audioplayer/internal/api/rest"
	"github.com/osa030/audioplayer/internal/app/directive"
	"github.com/osa030/audioplayer/internal/app/playback"
	"github.com/osa030/audioplayer/internal/domain/audioitem"
)

var (
	app    = kingpin.New("audioplayer-ctl", "Audio player control client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Admin token (or set AUDIOPLAYER_ADMIN_TOKEN env)").Envar("AUDIOPLAYER_ADMIN_TOKEN").String()
	ns     = app.Flag("namespace", "Directive namespace").Default(playback.DefaultNamespace).String()

	// play command
	playCmd          = app.Command("play", "Send a Play directive")
	playURL          = playCmd.Arg("url", "Stream URL (http, https, file or local path)").Required().String()
	playToken        = playCmd.Flag("stream-token", "Stream token (default: random)").String()
	playBehavior     = playCmd.Flag("behavior", "Play behavior").Default(string(audioitem.PlayBehaviorEnqueue)).Enum("ENQUEUE", "REPLACE_ALL", "REPLACE_ENQUEUED")
	playFormat       = playCmd.Flag("format", "Stream format").Default("AUDIO_MPEG").Enum("AUDIO_MPEG", "AUDIO_WAV", "OTHER")
	playItemID       = playCmd.Flag("item-id", "Audio item id").String()
	playOffset       = playCmd.Flag("offset-ms", "Start offset in milliseconds").Int64()
	playDelay        = playCmd.Flag("delay-ms", "Progress report delay in milliseconds").Int64()
	playInterval     = playCmd.Flag("interval-ms", "Progress report interval in milliseconds").Int64()
	playExpectedPrev = playCmd.Flag("expected-previous", "Expected previous token").String()

	// stop command
	stopCmd = app.Command("stop", "Send a Stop directive")

	// clear command
	clearCmd = app.Command("clear", "Send a ClearQueue directive")
	clearAll = clearCmd.Flag("all", "Also stop the playing item").Bool()

	// focus command
	focusCmd   = app.Command("focus", "Simulate a competing audio activity")
	focusLevel = focusCmd.Arg("level", "Focus left to the player").Required().Enum("FOREGROUND", "BACKGROUND", "NONE")

	// state command
	stateCmd = app.Command("state", "Show the player state").Alias("status")

	// events command
	eventsCmd = app.Command("events", "Follow the event stream")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := &client{base: strings.TrimRight(*server, "/"), token: *token, http: http.DefaultClient}

	var err error
	switch command {
	case playCmd.FullCommand():
		err = c.directive(ctx, directive.NamePlay, playPayload())
	case stopCmd.FullCommand():
		err = c.directive(ctx, directive.NameStop, nil)
	case clearCmd.FullCommand():
		behavior := "CLEAR_ENQUEUED"
		if *clearAll {
			behavior = "CLEAR_ALL"
		}
		err = c.directive(ctx, directive.NameClearQueue, map[string]any{"clearBehavior": behavior})
	case focusCmd.FullCommand():
		err = c.post(ctx, "/focus", map[string]string{"focus": *focusLevel})
	case stateCmd.FullCommand():
		err = c.get(ctx, "/state")
	case eventsCmd.FullCommand():
		err = c.events(ctx)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func playPayload() map[string]any {
	streamToken := *playToken
	if streamToken == "" {
		streamToken = uuid.New().String()
	}
	stream := map[string]any{
		"url":                  *playURL,
		"streamFormat":         *playFormat,
		"offsetInMilliseconds": *playOffset,
		"token":                streamToken,
		"progressReport": map[string]any{
			"progressReportDelayInMilliseconds":    *playDelay,
			"progressReportIntervalInMilliseconds": *playInterval,
		},
	}
	if *playExpectedPrev != "" {
		stream["expectedPreviousToken"] = *playExpectedPrev
	}
	item := map[string]any{"stream": stream}
	if *playItemID != "" {
		item["audioItemId"] = *playItemID
	}
	return map[string]any{"playBehavior": *playBehavior, "audioItem": item}
}

type client struct {
	base  string
	token string
	http  *http.Client
}

func (c *client) directive(ctx context.Context, name string, payload map[string]any) error {
	env := directive.Envelope{
		Header: directive.Header{
			Namespace: *ns,
			Name:      name,
			MessageID: uuid.New().String(),
		},
		Payload: payload,
	}
	return c.post(ctx, "/directives", env)
}

func (c *client) post(ctx context.Context, path string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "failed to encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *client) get(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req)
}

func (c *client) do(req *http.Request) error {
	if c.token != "" {
		req.Header.Set(rest.AdminTokenHeader, c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return errors.Newf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}

func (c *client) events(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return errors.Newf("%s", resp.Status)
	}

	fmt.Println("Following events (Ctrl+C to stop)...")
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	event := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			fmt.Printf("[%s] %s\n", event, strings.TrimPrefix(line, "data:"))
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return scanner.Err()
}
