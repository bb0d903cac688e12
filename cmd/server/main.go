package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/roomloft/roomloft/internal/chat"
	"github.com/roomloft/roomloft/internal/server"
)

func main() {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg := server.NewConfigFromEnv()
	server.SetConfig(cfg)
	slog.SetDefault(server.NewLogger(cfg.Env))

	registry := chat.NewRegistry()
	hub := server.NewHub(registry)
	go hub.Run()

	router := server.NewRouter(hub, cfg.StaticDir)
	httpServer := server.CreateServer(cfg.Port, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	case sig := <-stop:
		slog.Info("shutting down", "signal", sig.String())

		// Tell every room before the connections drop.
		hub.AnnounceShutdown()

		if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
			slog.Warn("HTTP shutdown incomplete", "error", err)
		}
		if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
			slog.Warn("hub shutdown incomplete", "error", err)
		}
	}
}
