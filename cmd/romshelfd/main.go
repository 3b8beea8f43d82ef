// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

// Package main is the entry point for the romshelf daemon.
//
// Romshelf keeps a local game catalog synchronized with a remote
// RomM-compatible library server. The daemon initializes components in the
// following order:
//
//  1. Configuration: Koanf v2 layered sources (defaults, YAML file, env)
//  2. Store: BadgerDB catalog store
//  3. Connection: resume the persisted connection, or connect from config
//  4. Sync engines: catalog reconciler, collection sync, achievement cache
//  5. Supervision: suture tree running the sync loop, favorites poller and
//     admin HTTP API
//
// Shutdown is graceful on SIGINT and SIGTERM; an in-flight sync pass runs
// to completion before the process exits.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/halcyonforge/romshelf/internal/api"
	"github.com/halcyonforge/romshelf/internal/config"
	"github.com/halcyonforge/romshelf/internal/logging"
	rommclient "github.com/halcyonforge/romshelf/internal/romm"
	"github.com/halcyonforge/romshelf/internal/scheduler"
	"github.com/halcyonforge/romshelf/internal/store"
	syncengine "github.com/halcyonforge/romshelf/internal/sync"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("Daemon exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})
	logging.Info().Str("store", cfg.Store.Path).Msg("Starting romshelf daemon")

	st, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("open catalog store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Warn().Err(err).Msg("Store close failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn := rommclient.NewConnectionManager(st, cfg.Server, cfg.Device.Name)
	connectOnStartup(ctx, conn, cfg)

	filter := syncengine.NewFilter(cfg.Filter)
	reconciler := syncengine.NewReconciler(st, conn, filter, cfg.Sync)

	collections := syncengine.NewCollectionSync(ctx, st, conn)
	defer collections.Close()

	achievements := syncengine.NewAchievementCache(conn)
	if conn.Status().State == rommclient.StateConnected {
		go func() {
			if err := achievements.RefreshOnStartup(ctx); err != nil {
				logging.Warn().Err(err).Msg("Achievement progression refresh failed")
			}
		}()
	}

	sched := scheduler.New(scheduler.DefaultConfig())
	sched.Add(scheduler.NewSyncLoopService(reconciler, cfg.Sync.Interval))
	sched.Add(scheduler.NewFavoritesPollerService(collections, cfg.Sync.FavoritesPollInterval))

	if cfg.API.Enabled {
		handler := api.NewHandler(st, reconciler, collections, conn)
		server := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
			Handler:           api.NewRouter(handler),
			ReadHeaderTimeout: cfg.API.Timeout,
		}
		sched.Add(scheduler.NewHTTPServerService(server, cfg.API.Timeout))
		logging.Info().Str("addr", server.Addr).Msg("Admin API enabled")
	}

	err = sched.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		logging.Info().Msg("Shutdown complete")
		return nil
	}
	return err
}

// connectOnStartup resumes the persisted connection when one exists, and
// otherwise connects from the config file's server section. Failure is not
// fatal; the daemon starts disconnected and the admin API can connect later.
func connectOnStartup(ctx context.Context, conn *rommclient.ConnectionManager, cfg *config.Config) {
	if err := conn.Reconnect(ctx); err == nil {
		return
	} else if cfg.Server.URL == "" {
		logging.Warn().Err(err).Msg("No stored connection to resume; starting disconnected")
		return
	}

	err := conn.Connect(ctx, cfg.Server.URL, cfg.Server.Username, cfg.Server.Password, cfg.Server.Token)
	if err != nil {
		logging.Warn().Err(err).Str("url", cfg.Server.URL).Msg("Initial connection failed; starting disconnected")
	}
}
