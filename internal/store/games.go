// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/halcyonforge/romshelf/internal/metrics"
	"github.com/halcyonforge/romshelf/internal/models"
)

// UpsertGame writes a game row, assigning a local id when g.ID is zero.
// The game_romm secondary index is kept consistent with g.RommID.
func (s *Store) UpsertGame(g *models.Game) error {
	defer metrics.ObserveStoreOp("upsert_game", time.Now())

	if g.ID == 0 {
		id, err := s.nextGameID()
		if err != nil {
			return err
		}
		g.ID = id
	}

	return s.db.Update(func(txn *badger.Txn) error {
		// Drop a stale romm index entry if the romm id changed.
		var prev models.Game
		err := txnGetJSON(txn, idKey(gameKeyPrefix, g.ID), &prev)
		switch {
		case err == nil:
			if prev.RommID != nil && (g.RommID == nil || *prev.RommID != *g.RommID) {
				if err := txn.Delete(idKey(gameRommKeyPrefix, *prev.RommID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
					return fmt.Errorf("delete stale romm index: %w", err)
				}
			}
		case errors.Is(err, ErrNotFound):
		default:
			return err
		}

		if err := txnSetJSON(txn, idKey(gameKeyPrefix, g.ID), g); err != nil {
			return fmt.Errorf("set game: %w", err)
		}
		if g.RommID != nil {
			if err := txnSetJSON(txn, idKey(gameRommKeyPrefix, *g.RommID), g.ID); err != nil {
				return fmt.Errorf("set romm index: %w", err)
			}
		}
		return nil
	})
}

// GetGame returns the game with the given local id.
func (s *Store) GetGame(id int64) (*models.Game, error) {
	var g models.Game
	if err := s.getJSON(idKey(gameKeyPrefix, id), &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// GetGameByRommID returns the game linked to the given remote ROM id.
func (s *Store) GetGameByRommID(rommID int64) (*models.Game, error) {
	var gameID int64
	err := s.db.View(func(txn *badger.Txn) error {
		return txnGetJSON(txn, idKey(gameRommKeyPrefix, rommID), &gameID)
	})
	if err != nil {
		return nil, err
	}

	g, err := s.GetGame(gameID)
	if errors.Is(err, ErrNotFound) {
		// Dangling index entry; treat as missing.
		return nil, ErrNotFound
	}
	return g, err
}

// ListGames returns every game row in local-id order.
func (s *Store) ListGames() ([]models.Game, error) {
	defer metrics.ObserveStoreOp("list_games", time.Now())
	return iteratePrefix[models.Game](s.db, []byte(gameKeyPrefix))
}

// ListGamesByPlatform returns every game row on one platform, in local-id order.
func (s *Store) ListGamesByPlatform(platformID int64) ([]models.Game, error) {
	all, err := s.ListGames()
	if err != nil {
		return nil, err
	}
	games := all[:0]
	for _, g := range all {
		if g.PlatformID == platformID {
			games = append(games, g)
		}
	}
	return games, nil
}

// FindGamesByIgdbID returns games on a platform sharing an IGDB id.
func (s *Store) FindGamesByIgdbID(platformID, igdbID int64) ([]models.Game, error) {
	all, err := s.ListGamesByPlatform(platformID)
	if err != nil {
		return nil, err
	}
	var matches []models.Game
	for _, g := range all {
		if g.IgdbID != nil && *g.IgdbID == igdbID {
			matches = append(matches, g)
		}
	}
	return matches, nil
}

// DeleteGame removes a game row along with its romm index entry, discs,
// attached files, and collection memberships. Missing rows are not an error.
func (s *Store) DeleteGame(id int64) error {
	defer metrics.ObserveStoreOp("delete_game", time.Now())

	return s.db.Update(func(txn *badger.Txn) error {
		var g models.Game
		err := txnGetJSON(txn, idKey(gameKeyPrefix, id), &g)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := txn.Delete(idKey(gameKeyPrefix, id)); err != nil {
			return fmt.Errorf("delete game: %w", err)
		}
		if g.RommID != nil {
			if err := txn.Delete(idKey(gameRommKeyPrefix, *g.RommID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("delete romm index: %w", err)
			}
		}

		if err := deleteByPrefix(txn, pairPrefix(discKeyPrefix, id)); err != nil {
			return fmt.Errorf("delete discs: %w", err)
		}
		if err := deleteByPrefix(txn, pairPrefix(gameFileKeyPrefix, id)); err != nil {
			return fmt.Errorf("delete game files: %w", err)
		}
		return s.deleteMembershipsForGame(txn, id)
	})
}

// deleteByPrefix removes every key under prefix within the transaction.
func deleteByPrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// ListDiscs returns the disc rows attached to a game, in romm-id order.
func (s *Store) ListDiscs(gameID int64) ([]models.GameDisc, error) {
	return iteratePrefix[models.GameDisc](s.db, pairPrefix(discKeyPrefix, gameID))
}

// PutDisc writes one disc row keyed by (GameID, RommID).
func (s *Store) PutDisc(d *models.GameDisc) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txnSetJSON(txn, pairKey(discKeyPrefix, d.GameID, d.RommID), d)
	})
}

// DeleteDiscsNotIn prunes disc rows whose remote id is absent from keep.
func (s *Store) DeleteDiscsNotIn(gameID int64, keep map[int64]bool) error {
	discs, err := s.ListDiscs(gameID)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, d := range discs {
			if keep[d.RommID] {
				continue
			}
			if err := txn.Delete(pairKey(discKeyPrefix, gameID, d.RommID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
}

// ListGameFiles returns the non-primary files attached to a game.
func (s *Store) ListGameFiles(gameID int64) ([]models.GameFile, error) {
	return iteratePrefix[models.GameFile](s.db, pairPrefix(gameFileKeyPrefix, gameID))
}

// ReplaceGameFiles swaps the full attached-file set for a game.
func (s *Store) ReplaceGameFiles(gameID int64, files []models.GameFile) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := deleteByPrefix(txn, pairPrefix(gameFileKeyPrefix, gameID)); err != nil {
			return err
		}
		for i := range files {
			f := &files[i]
			f.GameID = gameID
			if err := txnSetJSON(txn, pairKey(gameFileKeyPrefix, gameID, f.RommFileID), f); err != nil {
				return err
			}
		}
		return nil
	})
}
