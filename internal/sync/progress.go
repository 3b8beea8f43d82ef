// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

package sync

import (
	"sync"

	"github.com/halcyonforge/romshelf/internal/models"
)

// progressTracker publishes the observable state of an in-flight pass.
// It is a continuously overwritten snapshot, not a queue; readers tolerate
// coalesced updates.
type progressTracker struct {
	mu       sync.RWMutex
	current  models.SyncProgress
	onUpdate func(models.SyncProgress)
}

func newProgressTracker(onUpdate func(models.SyncProgress)) *progressTracker {
	return &progressTracker{onUpdate: onUpdate}
}

// setObserver replaces the update callback.
func (p *progressTracker) setObserver(fn func(models.SyncProgress)) {
	p.mu.Lock()
	p.onUpdate = fn
	p.mu.Unlock()
}

// Snapshot returns the latest progress value.
func (p *progressTracker) Snapshot() models.SyncProgress {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// update applies a mutation and notifies the observer with the new value.
func (p *progressTracker) update(fn func(*models.SyncProgress)) {
	p.mu.Lock()
	fn(&p.current)
	snapshot := p.current
	cb := p.onUpdate
	p.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// begin marks a pass as started with the given platform count.
func (p *progressTracker) begin(platformsTotal int) {
	p.update(func(sp *models.SyncProgress) {
		*sp = models.SyncProgress{IsSyncing: true, PlatformsTotal: platformsTotal}
	})
}

// platform records the platform currently being paged.
func (p *progressTracker) platform(name string, gamesTotal int) {
	p.update(func(sp *models.SyncProgress) {
		sp.CurrentPlatform = name
		sp.GamesTotal = gamesTotal
		sp.GamesDone = 0
	})
}

// game bumps the per-platform game counter.
func (p *progressTracker) game() {
	p.update(func(sp *models.SyncProgress) {
		sp.GamesDone++
	})
}

// platformDone bumps the platform counter.
func (p *progressTracker) platformDone() {
	p.update(func(sp *models.SyncProgress) {
		sp.PlatformsDone++
	})
}

// reset returns the tracker to idle. Called in a deferred block so the
// progress UI never sticks at "syncing" after a failed pass.
func (p *progressTracker) reset() {
	p.update(func(sp *models.SyncProgress) {
		*sp = models.SyncProgress{}
	})
}
