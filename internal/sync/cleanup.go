// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

package sync

import (
	"fmt"
	"os"
	"strings"

	"github.com/halcyonforge/romshelf/internal/logging"
	"github.com/halcyonforge/romshelf/internal/metrics"
	"github.com/halcyonforge/romshelf/internal/models"
	"github.com/halcyonforge/romshelf/internal/models/romm"
)

// dedupKey derives the identity used to recognize cross-region re-releases
// of the same title within one platform pass. Provider preference: IGDB,
// then MobyGames, then RetroAchievements. No external id means no key and
// no deduplication.
func dedupKey(rom *romm.Rom) string {
	switch {
	case rom.IgdbID != nil:
		return fmt.Sprintf("igdb:%d", *rom.IgdbID)
	case rom.MobyID != nil:
		return fmt.Sprintf("moby:%d", *rom.MobyID)
	case rom.RaID != nil:
		return fmt.Sprintf("ra:%d", *rom.RaID)
	default:
		return ""
	}
}

// runCleanup is the post-pass cross-platform phase: extension drift,
// duplicate rows, and legacy platform migration. It deliberately rescans
// the whole catalog rather than only the platforms touched this pass.
// remoteIDs is the set of platform ids the remote reported; nil skips
// legacy migration (per-platform passes never see the full platform list).
func (r *Reconciler) runCleanup(remoteIDs map[int64]bool, result *Result) {
	r.cleanupExtensionDrift(result)
	r.cleanupDuplicates(result)
	if remoteIDs != nil {
		r.migrateLegacyPlatforms(remoteIDs, result)
	}
}

// cleanupExtensionDrift deletes games whose local file extension fell
// outside the platform's whitelist after the whitelist changed.
func (r *Reconciler) cleanupExtensionDrift(result *Result) {
	platforms, err := r.store.ListPlatforms()
	if err != nil {
		result.addError(fmt.Sprintf("Extension cleanup: %v", err))
		return
	}

	for _, p := range platforms {
		if len(p.RomExtensions) == 0 {
			continue
		}
		games, err := r.store.ListGamesByPlatform(p.ID)
		if err != nil {
			result.addError(fmt.Sprintf("Extension cleanup for %q: %v", p.Name, err))
			continue
		}
		for _, g := range games {
			if g.LocalPath == "" {
				continue
			}
			ext := validExtension(g.LocalPath)
			if ext == "" || extensionInList(ext, p.RomExtensions) {
				continue
			}
			if err := r.store.DeleteGame(g.ID); err != nil {
				result.addError(fmt.Sprintf("Failed to delete drifted game %d: %v", g.ID, err))
				continue
			}
			result.GamesDeleted++
			metrics.SyncGamesDeleted.WithLabelValues("extension").Inc()
		}
	}
}

func extensionInList(ext string, list []string) bool {
	for _, allowed := range list {
		if strings.EqualFold(ext, strings.TrimPrefix(allowed, ".")) {
			return true
		}
	}
	return false
}

// cleanupDuplicates deletes duplicate remote-sourced rows sharing the same
// platform and external id, then duplicates sharing platform and lowercased
// title among the remainder.
//
// Keep order: has achievements, then has a local file, then lowest id.
func (r *Reconciler) cleanupDuplicates(result *Result) {
	games, err := r.store.ListGames()
	if err != nil {
		result.addError(fmt.Sprintf("Duplicate cleanup: %v", err))
		return
	}

	deleted := make(map[int64]bool)
	byExternal := make(map[string][]models.Game)
	for _, g := range games {
		if g.RommID == nil || g.IgdbID == nil {
			continue
		}
		key := fmt.Sprintf("%d:%d", g.PlatformID, *g.IgdbID)
		byExternal[key] = append(byExternal[key], g)
	}
	r.deleteDuplicateGroups(byExternal, deleted, result)

	byTitle := make(map[string][]models.Game)
	for _, g := range games {
		if g.RommID == nil || deleted[g.ID] {
			continue
		}
		key := fmt.Sprintf("%d:%s", g.PlatformID, strings.ToLower(g.Title))
		byTitle[key] = append(byTitle[key], g)
	}
	r.deleteDuplicateGroups(byTitle, deleted, result)
}

// deleteDuplicateGroups keeps the best row of each group and deletes the
// rest.
func (r *Reconciler) deleteDuplicateGroups(groups map[string][]models.Game, deleted map[int64]bool, result *Result) {
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		keeper := bestDuplicate(group)
		for _, g := range group {
			if g.ID == keeper.ID || deleted[g.ID] {
				continue
			}
			if err := r.store.DeleteGame(g.ID); err != nil {
				result.addError(fmt.Sprintf("Failed to delete duplicate game %d: %v", g.ID, err))
				continue
			}
			deleted[g.ID] = true
			result.GamesDeleted++
			metrics.SyncGamesDeleted.WithLabelValues("duplicate").Inc()
		}
	}
}

// bestDuplicate applies the duplicate tie-break: achievements beat a local
// file, a local file beats neither, lowest id settles the rest.
func bestDuplicate(group []models.Game) models.Game {
	best := group[0]
	for _, g := range group[1:] {
		if duplicateRank(g, best) {
			best = g
		}
	}
	return best
}

// duplicateRank reports whether a should be kept over b.
func duplicateRank(a, b models.Game) bool {
	aAch, bAch := a.AchievementCount > 0, b.AchievementCount > 0
	if aAch != bAch {
		return aAch
	}
	aLocal, bLocal := a.LocalPath != "", b.LocalPath != ""
	if aLocal != bLocal {
		return aLocal
	}
	return a.ID < b.ID
}

// migrateLegacyPlatforms repoints games from local platform rows with no
// remote counterpart onto the matching remote platform, then deletes the
// legacy row. Matching is slug+fsSlug, or slug alone when the legacy row
// never recorded an fsSlug.
func (r *Reconciler) migrateLegacyPlatforms(remoteIDs map[int64]bool, result *Result) {
	platforms, err := r.store.ListPlatforms()
	if err != nil {
		result.addError(fmt.Sprintf("Legacy platform migration: %v", err))
		return
	}

	for i := range platforms {
		legacy := &platforms[i]
		if remoteIDs[legacy.ID] {
			continue
		}
		target := findMigrationTarget(legacy, platforms, remoteIDs)
		if target == nil {
			continue
		}

		games, err := r.store.ListGamesByPlatform(legacy.ID)
		if err != nil {
			result.addError(fmt.Sprintf("Legacy migration for %q: %v", legacy.Slug, err))
			continue
		}
		for _, g := range games {
			g.PlatformID = target.ID
			if err := r.store.UpsertGame(&g); err != nil {
				result.addError(fmt.Sprintf("Failed to repoint game %d: %v", g.ID, err))
			}
		}
		if err := r.store.DeletePlatform(legacy.ID); err != nil {
			result.addError(fmt.Sprintf("Failed to delete legacy platform %d: %v", legacy.ID, err))
			continue
		}
		logging.Info().Int64("from", legacy.ID).Int64("to", target.ID).Str("slug", legacy.Slug).
			Msg("Migrated legacy platform")
	}
}

// findMigrationTarget returns the remote-backed platform row a legacy row
// should fold into, or nil.
func findMigrationTarget(legacy *models.Platform, platforms []models.Platform, remoteIDs map[int64]bool) *models.Platform {
	for i := range platforms {
		candidate := &platforms[i]
		if candidate.ID == legacy.ID || !remoteIDs[candidate.ID] {
			continue
		}
		if candidate.Slug != legacy.Slug {
			continue
		}
		if legacy.FsSlug != "" && candidate.FsSlug != legacy.FsSlug {
			continue
		}
		return candidate
	}
	return nil
}

// recountPlatforms recomputes each platform's game count from the local
// catalog.
func (r *Reconciler) recountPlatforms(result *Result) {
	platforms, err := r.store.ListPlatforms()
	if err != nil {
		result.addError(fmt.Sprintf("Game count recompute: %v", err))
		return
	}
	for i := range platforms {
		games, err := r.store.ListGamesByPlatform(platforms[i].ID)
		if err != nil {
			result.addError(fmt.Sprintf("Game count for %q: %v", platforms[i].Name, err))
			continue
		}
		if platforms[i].GameCount == len(games) {
			continue
		}
		platforms[i].GameCount = len(games)
		if err := r.store.UpsertPlatform(&platforms[i]); err != nil {
			result.addError(fmt.Sprintf("Failed to update count for %q: %v", platforms[i].Name, err))
		}
	}
}

// sweepOrphans deletes remote-sourced games whose ROM id was not observed
// this pass. Platforms the user disabled are frozen, never purged.
func (r *Reconciler) sweepOrphans(state *passState, result *Result) {
	r.sweepOrphansWhere(state, result, func(platformID int64) bool { return true })
}

// sweepOrphansForPlatform restricts the sweep to one platform, used by
// per-platform passes where other platforms' ids were never fetched.
func (r *Reconciler) sweepOrphansForPlatform(platformID int64, state *passState, result *Result) {
	r.sweepOrphansWhere(state, result, func(id int64) bool { return id == platformID })
}

func (r *Reconciler) sweepOrphansWhere(state *passState, result *Result, include func(platformID int64) bool) {
	platforms, err := r.store.ListPlatforms()
	if err != nil {
		result.addError(fmt.Sprintf("Orphan sweep: %v", err))
		return
	}
	syncEnabled := make(map[int64]bool, len(platforms))
	for _, p := range platforms {
		syncEnabled[p.ID] = p.SyncEnabled
	}

	games, err := r.store.ListGames()
	if err != nil {
		result.addError(fmt.Sprintf("Orphan sweep: %v", err))
		return
	}

	for _, g := range games {
		if g.Source == models.SourceLocal || g.RommID == nil {
			continue
		}
		if !include(g.PlatformID) || !syncEnabled[g.PlatformID] {
			continue
		}
		if state.seen[*g.RommID] {
			continue
		}

		if g.LocalPath != "" {
			if err := os.Remove(g.LocalPath); err != nil && !os.IsNotExist(err) {
				// Track the file durably for later cleanup instead of
				// silently losing it.
				logging.Warn().Err(err).Str("path", g.LocalPath).Msg("Failed to delete orphaned file, recording for retry")
				if idxErr := r.store.AddOrphanedFile(g.LocalPath); idxErr != nil {
					result.addError(fmt.Sprintf("Failed to index orphaned file %q: %v", g.LocalPath, idxErr))
				}
			}
		}

		if err := r.store.DeleteGame(g.ID); err != nil {
			result.addError(fmt.Sprintf("Failed to delete orphan %d: %v", g.ID, err))
			continue
		}
		result.GamesDeleted++
		metrics.SyncGamesDeleted.WithLabelValues("orphan").Inc()
		logging.Debug().Int64("game_id", g.ID).Int64("romm_id", *g.RommID).Msg("Orphan deleted")
	}
}
