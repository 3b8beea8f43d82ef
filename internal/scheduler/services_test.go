// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/halcyonforge/romshelf/internal/models"
	syncengine "github.com/halcyonforge/romshelf/internal/sync"
)

type countingSyncer struct {
	calls atomic.Int64
}

func (c *countingSyncer) SyncLibrary(context.Context) *syncengine.Result {
	c.calls.Add(1)
	return &syncengine.Result{Status: syncengine.StatusSuccess}
}

func (c *countingSyncer) Progress() models.SyncProgress { return models.SyncProgress{} }

func TestSyncLoopRunsImmediatelyThenOnInterval(t *testing.T) {
	t.Parallel()

	engine := &countingSyncer{}
	svc := NewSyncLoopService(engine, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for engine.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("only %d passes ran", engine.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve returned %v, want context.Canceled", err)
	}
}

func TestSyncLoopDisabledParksUntilShutdown(t *testing.T) {
	t.Parallel()

	engine := &countingSyncer{}
	svc := NewSyncLoopService(engine, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if engine.calls.Load() != 0 {
		t.Errorf("disabled loop ran %d passes", engine.calls.Load())
	}
}

type countingRefresher struct {
	calls atomic.Int64
}

func (c *countingRefresher) RefreshFavoritesIfNeeded(context.Context) error {
	c.calls.Add(1)
	return nil
}

func TestFavoritesPollerTicks(t *testing.T) {
	t.Parallel()

	refresher := &countingRefresher{}
	svc := NewFavoritesPollerService(refresher, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for refresher.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("only %d refreshes ran", refresher.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

type fakeHTTPServer struct {
	listenErr error
	closed    chan struct{}
	shutdowns atomic.Int64
}

func newFakeHTTPServer(listenErr error) *fakeHTTPServer {
	return &fakeHTTPServer{listenErr: listenErr, closed: make(chan struct{})}
}

func (f *fakeHTTPServer) ListenAndServe() error {
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.closed
	return nil
}

func (f *fakeHTTPServer) Shutdown(context.Context) error {
	f.shutdowns.Add(1)
	close(f.closed)
	return nil
}

func TestHTTPServerServiceGracefulShutdown(t *testing.T) {
	t.Parallel()

	server := newFakeHTTPServer(nil)
	svc := NewHTTPServerService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve returned %v, want context.Canceled", err)
	}
	if server.shutdowns.Load() != 1 {
		t.Errorf("shutdowns = %d, want 1", server.shutdowns.Load())
	}
}

func TestHTTPServerServiceListenFailure(t *testing.T) {
	t.Parallel()

	server := newFakeHTTPServer(errors.New("address already in use"))
	svc := NewHTTPServerService(server, time.Second)

	if err := svc.Serve(context.Background()); err == nil {
		t.Error("listen failure should surface as a service error")
	}
}
