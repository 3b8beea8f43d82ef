// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/halcyonforge/romshelf/internal/logging"
	"github.com/halcyonforge/romshelf/internal/models"
	syncengine "github.com/halcyonforge/romshelf/internal/sync"
)

// LibrarySyncer is the reconciler surface the sync loop depends on.
type LibrarySyncer interface {
	SyncLibrary(ctx context.Context) *syncengine.Result
	Progress() models.SyncProgress
}

// SyncLoopService triggers a full-library pass on a fixed interval. The
// first pass runs immediately on startup.
type SyncLoopService struct {
	engine   LibrarySyncer
	interval time.Duration
}

// NewSyncLoopService creates the scheduled sync loop. An interval of zero
// disables the loop; the service parks until shutdown so the supervisor
// does not restart-spin it.
func NewSyncLoopService(engine LibrarySyncer, interval time.Duration) *SyncLoopService {
	return &SyncLoopService{engine: engine, interval: interval}
}

// Serve implements suture.Service.
func (s *SyncLoopService) Serve(ctx context.Context) error {
	if s.interval <= 0 {
		logging.Info().Msg("Scheduled sync disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *SyncLoopService) runOnce(ctx context.Context) {
	result := s.engine.SyncLibrary(ctx)
	if result.Status == syncengine.StatusError {
		logging.Warn().Strs("errors", result.Errors).Msg("Scheduled sync failed")
	}
}

func (s *SyncLoopService) String() string { return "sync-loop" }

// FavoritesRefresher is the collection sync surface the poller depends on.
type FavoritesRefresher interface {
	RefreshFavoritesIfNeeded(ctx context.Context) error
}

// FavoritesPollerService runs the debounced favorites freshness check on a
// fixed cadence. The check itself enforces the 30s debounce, so a short
// poll interval costs nothing beyond the timer.
type FavoritesPollerService struct {
	collections FavoritesRefresher
	interval    time.Duration
}

// NewFavoritesPollerService creates the favorites poller. A zero interval
// disables it.
func NewFavoritesPollerService(collections FavoritesRefresher, interval time.Duration) *FavoritesPollerService {
	return &FavoritesPollerService{collections: collections, interval: interval}
}

// Serve implements suture.Service.
func (s *FavoritesPollerService) Serve(ctx context.Context) error {
	if s.interval <= 0 {
		logging.Info().Msg("Favorites poller disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.collections.RefreshFavoritesIfNeeded(ctx); err != nil {
				logging.Warn().Err(err).Msg("Favorites refresh failed")
			}
		}
	}
}

func (s *FavoritesPollerService) String() string { return "favorites-poller" }

// HTTPServer matches *http.Server's lifecycle methods.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService adapts an HTTP server's blocking ListenAndServe to
// suture's context-driven Serve.
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPServerService wraps the admin API server as a supervised service.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("admin api server: %w", err)
		}
		// Closed externally; nothing to supervise anymore.
		return suture.ErrDoNotRestart
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()
	if err := h.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin api shutdown: %w", err)
	}
	return ctx.Err()
}

func (h *HTTPServerService) String() string { return "admin-api" }
