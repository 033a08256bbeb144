// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"gopkg.in/yaml.v3"

	"github.com/osa030/audioplayer/internal/api/rest"
	"github.com/osa030/audioplayer/internal/app/directive"
	"github.com/osa030/audioplayer/internal/app/notification"
	"github.com/osa030/audioplayer/internal/app/playback"
	"github.com/osa030/audioplayer/internal/infra/config"
	"github.com/osa030/audioplayer/internal/infra/decoder"
	"github.com/osa030/audioplayer/internal/infra/focus"
	"github.com/osa030/audioplayer/internal/infra/logger"
)

var (
	app        = kingpin.New("audioplayer-server", "Audio player playback engine")
	configPath = app.Flag("config", "Path to config file (default: built-in defaults)").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// check-config command
	checkConfigCmd = app.Command("check-config", "Validate the config, print the effective values and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if command == checkConfigCmd.FullCommand() {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render config: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(string(out))
		return
	}

	// Initialize logger; command-line flags win over the config file
	loggerConfig := logger.Config{
		Output: cfg.Log.Output,
		Level:  cfg.Log.Level,
		File:   cfg.Log.File,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	closeLog, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closeLog()

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		closeLog()
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default()
	}
	return config.Load(path)
}

// activityLog writes every activity transition to the log.
type activityLog struct{}

func (activityLog) OnActivityChanged(activity playback.Activity, snapshot playback.Context) {
	zlog.Info().Msgf("Player activity: %s %s", activity, snapshot)
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifier := notification.NewManager(cfg.Player.EventBufferSize)
	defer notifier.Close()
	focusMgr := focus.NewManager(cfg.Focus.GrantDelay())

	renderers := decoder.NewPool(cfg.Player.DecoderPoolSize, decoder.Options{
		Tick:           cfg.Decoder.Tick(),
		LoadTimeout:    cfg.Decoder.LoadTimeout(),
		StallThreshold: cfg.Decoder.StallThreshold(),
		MaxSourceBytes: cfg.Decoder.MaxSourceBytes,
	})
	decoders := make([]playback.Decoder, len(renderers))
	for i, r := range renderers {
		decoders[i] = r
		defer r.Close()
	}

	controller, err := playback.NewController(
		playback.Config{
			Namespace: cfg.Player.Namespace,
			Channel:   cfg.Player.Channel,
		},
		playback.Collaborators{
			Decoders: decoders,
			Focus:    focusMgr,
			Sender:   notifier,
			Reporter: notifier,
			Router:   notifier,
		},
	)
	if err != nil {
		return errors.Wrap(err, "failed to create playback controller")
	}
	controller.AddListener(activityLog{})

	go notifier.Run(ctx)
	go focusMgr.Run(ctx)

	streamsDone := make(chan struct{})
	api := rest.NewServer(rest.Deps{
		Player:        controller,
		Parser:        directive.NewParser(cfg.Player.Namespace, notifier),
		Focus:         focusMgr,
		Subscriptions: notifier,
		Channel:       cfg.Player.Channel,
		AdminToken:    cfg.Admin.Token,
		Done:          streamsDone,
	})

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(api.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s, decoders=%d", cfg.Server.Addr, len(decoders))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Give the listener a moment before running startup hooks
	select {
	case err := <-serverErrCh:
		return errors.Wrap(err, "server error")
	case <-time.After(100 * time.Millisecond):
	}
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return errors.Wrap(err, "server error")
	}

	// Stop playback first so the final events reach open streams
	controller.Close()
	flushCtx, flushCancel := context.WithTimeout(context.Background(), time.Second)
	if err := notifier.Flush(flushCtx); err != nil {
		zlog.Warn().Msgf("Failed to flush notifications: %v", err)
	}
	flushCancel()
	close(streamsDone)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
