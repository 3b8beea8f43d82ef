// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

package sync

import "github.com/halcyonforge/romshelf/internal/models"

// mergeUserFields folds the user-owned fields of a set of rows representing
// the same logical game into the survivor. Used by both migration-set merge
// and multi-disc consolidation.
//
// Aggregation: favorite = OR, play count and play time = sum, ratings and
// completion = max, addedAt = earliest, lastPlayed = most recent non-nil
// (survivor's own value when all nil), achievementCount = max.
//
// mergeHidden additionally ANDs the hidden flag; multi-disc consolidation
// has no hidden-merge rule and passes false.
func mergeUserFields(survivor *models.Game, others []models.Game, mergeHidden bool) {
	hidden := survivor.IsHidden

	for i := range others {
		o := &others[i]
		if o.ID == survivor.ID {
			continue
		}

		survivor.IsFavorite = survivor.IsFavorite || o.IsFavorite
		survivor.PlayCount += o.PlayCount
		survivor.PlayTimeMinutes += o.PlayTimeMinutes

		if o.UserRating > survivor.UserRating {
			survivor.UserRating = o.UserRating
		}
		if o.UserDifficulty > survivor.UserDifficulty {
			survivor.UserDifficulty = o.UserDifficulty
		}
		if o.Completion > survivor.Completion {
			survivor.Completion = o.Completion
		}
		if o.AchievementCount > survivor.AchievementCount {
			survivor.AchievementCount = o.AchievementCount
		}

		if !o.AddedAt.IsZero() && (survivor.AddedAt.IsZero() || o.AddedAt.Before(survivor.AddedAt)) {
			survivor.AddedAt = o.AddedAt
		}
		if o.LastPlayed != nil {
			if survivor.LastPlayed == nil || o.LastPlayed.After(*survivor.LastPlayed) {
				lp := *o.LastPlayed
				survivor.LastPlayed = &lp
			}
		}

		hidden = hidden && o.IsHidden
	}

	if mergeHidden {
		survivor.IsHidden = hidden
	}
}
