// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/halcyonforge/romshelf/internal/logging"
	"github.com/halcyonforge/romshelf/internal/models"
	"github.com/halcyonforge/romshelf/internal/models/romm"
)

// AchievementCache is the session-scoped cache of earned RetroAchievements
// state, keyed by the remote game's RA id.
//
// It refreshes at most once per session unless forced; OnAppResumed clears
// both the cache and the once-per-session flag. Lookup accessors are pure
// cache reads and never trigger a fetch.
type AchievementCache struct {
	conn ConnectionProvider

	mu        sync.RWMutex
	earned    map[int64][]models.EarnedAchievement
	badges    map[int64][]string
	refreshed bool
}

// NewAchievementCache creates an empty session cache.
func NewAchievementCache(conn ConnectionProvider) *AchievementCache {
	return &AchievementCache{
		conn:   conn,
		earned: make(map[int64][]models.EarnedAchievement),
		badges: make(map[int64][]string),
	}
}

// OnAppResumed invalidates the cache, forcing the next guarded refresh to
// refetch.
func (a *AchievementCache) OnAppResumed() {
	a.mu.Lock()
	a.earned = make(map[int64][]models.EarnedAchievement)
	a.badges = make(map[int64][]string)
	a.refreshed = false
	a.mu.Unlock()
}

// RefreshOnStartup unconditionally refreshes the cache when the current
// user has RetroAchievements linkage. Users without linkage are a no-op.
func (a *AchievementCache) RefreshOnStartup(ctx context.Context) error {
	client := a.conn.Client()
	if client == nil {
		return errors.New("not connected to RomM server")
	}

	user, err := client.GetCurrentUser(ctx)
	if err != nil {
		return err
	}
	if user.RaUsername == nil || *user.RaUsername == "" {
		logging.Debug().Msg("No RetroAchievements linkage, skipping progression refresh")
		return nil
	}

	// The incremental refresh primes the server-side cache; its failure
	// is tolerated since the progression listing may still be current.
	if err := client.RefreshRetroAchievements(ctx); err != nil {
		logging.Warn().Err(err).Msg("RetroAchievements incremental refresh failed")
	}

	user, err = client.GetCurrentUser(ctx)
	if err != nil {
		return err
	}
	a.rebuild(user.RaProgression)

	a.mu.Lock()
	a.refreshed = true
	a.mu.Unlock()
	return nil
}

// RefreshIfNeeded refreshes at most once per session. After the first
// successful refresh, further calls short-circuit without network activity
// until OnAppResumed clears the flag.
func (a *AchievementCache) RefreshIfNeeded(ctx context.Context) error {
	a.mu.RLock()
	done := a.refreshed
	a.mu.RUnlock()
	if done {
		return nil
	}
	return a.RefreshOnStartup(ctx)
}

// rebuild replaces the cache content from a progression listing.
func (a *AchievementCache) rebuild(progression *romm.RaProgression) {
	earned := make(map[int64][]models.EarnedAchievement)
	badges := make(map[int64][]string)

	if progression != nil {
		for _, game := range progression.Results {
			records := make([]models.EarnedAchievement, 0, len(game.EarnedAchievements))
			ids := make([]string, 0, len(game.EarnedAchievements))
			for _, ach := range game.EarnedAchievements {
				records = append(records, models.EarnedAchievement{
					ID:                 ach.ID,
					UnlockDate:         parseRaDate(ach.Date),
					HardcoreUnlockDate: parseRaDate(ach.DateHardcore),
				})
				if ach.BadgeID != "" {
					ids = append(ids, ach.BadgeID)
				}
			}
			earned[game.RomRaID] = records
			badges[game.RomRaID] = ids
		}
	}

	a.mu.Lock()
	a.earned = earned
	a.badges = badges
	a.mu.Unlock()

	logging.Info().Int("games", len(earned)).Msg("RetroAchievements progression cached")
}

// GetEarnedAchievements returns the cached earned records for an RA game
// id; unknown ids yield an empty slice.
func (a *AchievementCache) GetEarnedAchievements(raGameID int64) []models.EarnedAchievement {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.earned[raGameID]
}

// GetEarnedBadgeIDs returns the cached badge ids for an RA game id.
func (a *AchievementCache) GetEarnedBadgeIDs(raGameID int64) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.badges[raGameID]
}

// raDateLayouts are the timestamp formats the RA endpoints emit.
var raDateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func parseRaDate(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	for _, layout := range raDateLayouts {
		if t, err := time.Parse(layout, *s); err == nil {
			return &t
		}
	}
	return nil
}
