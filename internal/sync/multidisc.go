// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

package sync

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/halcyonforge/romshelf/internal/logging"
	"github.com/halcyonforge/romshelf/internal/metrics"
	"github.com/halcyonforge/romshelf/internal/models"
	"github.com/halcyonforge/romshelf/internal/models/romm"
	rommclient "github.com/halcyonforge/romshelf/internal/romm"
	"github.com/halcyonforge/romshelf/internal/store"
)

// multiDiscGroup records a sibling-based multi-disc title for post-pass
// consolidation. IDs holds the primary first, then the siblings, in the
// order they were encountered; survivor selection depends on that order.
type multiDiscGroup struct {
	PrimaryID    int64
	IDs          []int64
	PlatformID   int64
	PlatformSlug string
}

// discPattern matches the "(Disc N)" naming convention, tolerating "disk"
// and "cd" variants.
var discPattern = regexp.MustCompile(`(?i)\((?:disc|disk|cd)\s*(\d+)\)`)

// discNumber extracts the disc number from a name, or 0 when the name does
// not follow the disc convention.
func discNumber(name string) int {
	m := discPattern.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// recordMultiDiscGroup notes a sibling-based multi-disc title, marking all
// member ids seen so no disc is independently orphan-swept. A ROM already
// absorbed into a recorded group is not re-recorded.
func (r *Reconciler) recordMultiDiscGroup(platform *models.Platform, rom *romm.Rom, state *passState) {
	for _, g := range state.groups {
		for _, id := range g.IDs {
			if id == rom.ID {
				return
			}
		}
	}

	ids := []int64{rom.ID}
	for _, sib := range rom.Siblings {
		if discNumber(sib.Name) == 0 && discNumber(sib.FsNameNoExt) == 0 {
			continue
		}
		ids = append(ids, sib.ID)
		state.seen[sib.ID] = true
	}
	if len(ids) < 2 {
		return
	}

	state.groups = append(state.groups, multiDiscGroup{
		PrimaryID:    rom.ID,
		IDs:          ids,
		PlatformID:   platform.ID,
		PlatformSlug: platform.Slug,
	})
}

// consolidateMultiDiscGroups collapses each recorded group into a single
// Game row with one GameDisc child per member.
func (r *Reconciler) consolidateMultiDiscGroups(ctx context.Context, client rommclient.ClientInterface, state *passState, result *Result) {
	for i := range state.groups {
		if err := r.consolidateGroup(ctx, client, &state.groups[i], result); err != nil {
			result.addError(fmt.Sprintf("Multi-disc consolidation failed for ROM %d: %v", state.groups[i].PrimaryID, err))
		}
	}
}

// consolidateGroup picks a survivor, merges the other members' user fields
// into it, deletes them, and rebuilds the GameDisc child rows.
//
// Survivor tie-break: an already-consolidated row (isMultiDisc) wins; else
// the row whose id appears earliest in the group ordering; else the first
// row found.
func (r *Reconciler) consolidateGroup(ctx context.Context, client rommclient.ClientInterface, group *multiDiscGroup, result *Result) error {
	members := make([]models.Game, 0, len(group.IDs))
	byRommID := make(map[int64]*models.Game)
	for _, id := range group.IDs {
		g, err := r.store.GetGameByRommID(id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return err
		}
		members = append(members, *g)
		byRommID[id] = &members[len(members)-1]
	}
	if len(members) == 0 {
		return nil
	}

	survivor := pickSurvivor(members, group.IDs)
	mergeUserFields(survivor, members, false)
	survivor.IsMultiDisc = true
	if err := r.store.UpsertGame(survivor); err != nil {
		return err
	}

	for i := range members {
		if members[i].ID == survivor.ID {
			continue
		}
		if err := r.store.DeleteGame(members[i].ID); err != nil {
			result.addError(fmt.Sprintf("Failed to delete consolidated disc row %d: %v", members[i].ID, err))
			continue
		}
		result.GamesDeleted++
		metrics.SyncGamesDeleted.WithLabelValues("disc_sibling").Inc()
	}

	r.rebuildDiscs(ctx, client, survivor, group, byRommID)
	return nil
}

// pickSurvivor applies the consolidation tie-break over the existing rows.
func pickSurvivor(members []models.Game, orderedIDs []int64) *models.Game {
	for i := range members {
		if members[i].IsMultiDisc {
			return &members[i]
		}
	}
	for _, id := range orderedIDs {
		for i := range members {
			if members[i].RommID != nil && *members[i].RommID == id {
				return &members[i]
			}
		}
	}
	return &members[0]
}

// rebuildDiscs refreshes the survivor's GameDisc children so they exactly
// match the group's id set. Per-disc metadata comes from the remote; a disc
// whose fetch fails keeps its prior local record if one exists, and is
// otherwise skipped with a warning.
func (r *Reconciler) rebuildDiscs(ctx context.Context, client rommclient.ClientInterface, survivor *models.Game, group *multiDiscGroup, existingRows map[int64]*models.Game) {
	prior := make(map[int64]models.GameDisc)
	if discs, err := r.store.ListDiscs(survivor.ID); err == nil {
		for _, d := range discs {
			prior[d.RommID] = d
		}
	}

	keep := make(map[int64]bool, len(group.IDs))
	for _, id := range group.IDs {
		keep[id] = true

		disc := models.GameDisc{GameID: survivor.ID, RommID: id}
		remote, err := client.GetRom(ctx, id)
		switch {
		case err == nil:
			disc.DiscNumber = discNumber(remote.Name)
			if disc.DiscNumber == 0 {
				disc.DiscNumber = discNumber(remote.FsNameNoExt)
			}
			disc.FileName = remote.FsName
			disc.FileSize = remote.FsSizeBytes
			if row, ok := existingRows[id]; ok {
				disc.LocalPath = row.LocalPath
			}
			if p, ok := prior[id]; ok && disc.LocalPath == "" {
				disc.LocalPath = p.LocalPath
			}
		case prior[id].RommID != 0:
			// Remote fetch failed but the disc was previously known; keep
			// the old record rather than dropping a downloaded disc.
			disc = prior[id]
			disc.GameID = survivor.ID
		case existingRows[id] != nil:
			// No prior disc row, but the disc was synced as its own game
			// row before consolidation; derive the disc from it.
			row := existingRows[id]
			disc.DiscNumber = discNumber(row.Title)
			if disc.DiscNumber == 0 {
				disc.DiscNumber = discNumber(row.RommFileName)
			}
			disc.FileName = row.RommFileName
			disc.FileSize = row.FileSizeBytes
			disc.LocalPath = row.LocalPath
		default:
			logging.Warn().Err(err).Int64("rom_id", id).Str("platform", group.PlatformSlug).
				Msg("Disc metadata unavailable, skipping disc row")
			delete(keep, id)
			continue
		}

		if err := r.store.PutDisc(&disc); err != nil {
			logging.Warn().Err(err).Int64("rom_id", id).Msg("Failed to store disc row")
		}
	}

	if err := r.store.DeleteDiscsNotIn(survivor.ID, keep); err != nil {
		logging.Warn().Err(err).Int64("game_id", survivor.ID).Msg("Failed to prune stale disc rows")
	}
}
