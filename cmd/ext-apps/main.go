// Command ext-apps runs the dog image MCP server: the streamable HTTP
// endpoint at /mcp, the three dog tools, and the bundled widget resources.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MCPJam/ext-apps/apps"
	"github.com/MCPJam/ext-apps/dogapi"
	"github.com/MCPJam/ext-apps/internal/config"
	"github.com/MCPJam/ext-apps/internal/logctx"
	"github.com/MCPJam/ext-apps/sessions"
	"github.com/MCPJam/ext-apps/sessions/memoryhost"
	"github.com/MCPJam/ext-apps/sessions/redishost"
	"github.com/MCPJam/ext-apps/streaminghttp"
)

func main() {
	if err := run(); err != nil {
		slog.Error("exit", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := newLogger(cfg)
	slog.SetDefault(log)

	var host sessions.Host
	switch cfg.SessionBackend {
	case "redis":
		rh, err := redishost.NewFromURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rh.Close()
		host = rh
	default:
		host = memoryhost.New()
	}

	client := dogapi.New(cfg.DogAPIBaseURL, dogapi.WithHTTPClient(&http.Client{
		Timeout: 10 * time.Second,
	}))

	widgets, err := apps.NewWidgetRegistry(log)
	if err != nil {
		return err
	}
	if cfg.WidgetDir != "" {
		go func() {
			if err := widgets.WatchDir(ctx, cfg.WidgetDir); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("widgets.watch.fail", slog.String("err", err.Error()))
			}
		}()
	}

	router := sessions.NewRouter(apps.ServerFactory(client, widgets), host, log)
	handler := streaminghttp.New(router, streaminghttp.WithLogger(log))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server.start", slog.Int("port", cfg.Port), slog.String("backend", cfg.SessionBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("server.shutdown.start")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server.shutdown.http.fail", slog.String("err", err.Error()))
	}
	if err := router.Shutdown(shutdownCtx); err != nil {
		log.Warn("server.shutdown.sessions.fail", slog.String("err", err.Error()))
	}
	log.Info("server.shutdown.ok")
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var inner slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		inner = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		inner = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(logctx.Handler{Handler: inner})
}
