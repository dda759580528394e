// Package server запускает HTTP-сервер сервиса и останавливает его по сигналу
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"SocialMeshPlatform/pkg/config"
	"SocialMeshPlatform/pkg/logger"
)

// New создает http.Server с таймаутами из конфигурации
func New(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       config.MustDuration(cfg.ReadTimeout, 30*time.Second),
		WriteTimeout:      config.MustDuration(cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:       60 * time.Second,
	}
}

// Run обслуживает запросы до отмены ctx, затем корректно останавливает сервер
func Run(ctx context.Context, srv *http.Server, log logger.Logger, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
