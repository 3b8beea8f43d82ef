// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

// Package store implements the durable local catalog on BadgerDB.
//
// Entities are stored as JSON values under prefixed keys:
//
//	platform:<id>            Platform
//	game:<id>                Game
//	game_romm:<romm_id>      secondary index -> game id
//	disc:<game_id>:<romm_id> GameDisc
//	gamefile:<game_id>:<file_id> GameFile
//	collection:<id>          Collection
//	collgame:<coll_id>:<game_id> membership marker
//	setting:<name>           arbitrary JSON settings
//	orphanfile:<path>        orphaned-file index entry
//
// Numeric key segments are zero-padded so lexical iteration order matches
// numeric order. Local ids for games and collections come from Badger
// sequences. The store serializes writes per transaction; callers provide
// higher-level mutual exclusion (the sync mutex) where cross-entity
// consistency matters.
package store

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/halcyonforge/romshelf/internal/config"
	"github.com/halcyonforge/romshelf/internal/logging"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("store: not found")

// Key prefixes for BadgerDB storage.
const (
	platformKeyPrefix   = "platform:"
	gameKeyPrefix       = "game:"
	gameRommKeyPrefix   = "game_romm:"
	discKeyPrefix       = "disc:"
	gameFileKeyPrefix   = "gamefile:"
	collectionKeyPrefix = "collection:"
	collGameKeyPrefix   = "collgame:"
	settingKeyPrefix    = "setting:"
	orphanFileKeyPrefix = "orphanfile:"
)

// sequence key names.
const (
	gameSeqKey       = "seq:game"
	collectionSeqKey = "seq:collection"
)

// Store is the durable local catalog.
type Store struct {
	db      *badger.DB
	gameSeq *badger.Sequence
	collSeq *badger.Sequence
}

// Open opens (or creates) the catalog store at the configured path.
// With cfg.InMemory set, the store lives entirely in memory (tests).
func Open(cfg config.StoreConfig) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	// Badger logs through its own interface; route it to zerolog.
	opts = opts.WithLogger(badgerLogger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", cfg.Path, err)
	}

	gameSeq, err := db.GetSequence([]byte(gameSeqKey), 128)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open game sequence: %w", err)
	}
	collSeq, err := db.GetSequence([]byte(collectionSeqKey), 16)
	if err != nil {
		_ = gameSeq.Release()
		_ = db.Close()
		return nil, fmt.Errorf("open collection sequence: %w", err)
	}

	return &Store{db: db, gameSeq: gameSeq, collSeq: collSeq}, nil
}

// Close releases sequences and closes the underlying database.
func (s *Store) Close() error {
	if err := s.gameSeq.Release(); err != nil {
		logging.Warn().Err(err).Msg("Failed to release game sequence")
	}
	if err := s.collSeq.Release(); err != nil {
		logging.Warn().Err(err).Msg("Failed to release collection sequence")
	}
	return s.db.Close()
}

// nextGameID allocates a new local game id (always > 0).
func (s *Store) nextGameID() (int64, error) {
	n, err := s.gameSeq.Next()
	if err != nil {
		return 0, fmt.Errorf("next game id: %w", err)
	}
	return int64(n) + 1, nil
}

// nextCollectionID allocates a new local collection id (always > 0).
func (s *Store) nextCollectionID() (int64, error) {
	n, err := s.collSeq.Next()
	if err != nil {
		return 0, fmt.Errorf("next collection id: %w", err)
	}
	return int64(n) + 1, nil
}

// idKey builds a key of the form <prefix><zero-padded id>.
func idKey(prefix string, id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefix, id))
}

// pairKey builds a key of the form <prefix><zero-padded a>:<zero-padded b>.
func pairKey(prefix string, a, b int64) []byte {
	return []byte(fmt.Sprintf("%s%020d:%020d", prefix, a, b))
}

// pairPrefix builds the iteration prefix for all pair keys under a.
func pairPrefix(prefix string, a int64) []byte {
	return []byte(fmt.Sprintf("%s%020d:", prefix, a))
}

// parseTrailingID parses the numeric segment after the last ':' in a key.
func parseTrailingID(key []byte) (int64, error) {
	str := string(key)
	idx := strings.LastIndexByte(str, ':')
	if idx < 0 || idx == len(str)-1 {
		return 0, fmt.Errorf("malformed key %q", str)
	}
	return strconv.ParseInt(str[idx+1:], 10, 64)
}

// getJSON reads and unmarshals one value. Returns ErrNotFound for missing keys.
func (s *Store) getJSON(key []byte, out any) error {
	return s.db.View(func(txn *badger.Txn) error {
		return txnGetJSON(txn, key, out)
	})
}

// txnGetJSON reads and unmarshals one value inside an open transaction.
func txnGetJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %q: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

// txnSetJSON marshals and writes one value inside an open transaction.
func txnSetJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %q: %w", key, err)
	}
	return txn.Set(key, data)
}

// iteratePrefix decodes every value under prefix into fresh T values.
func iteratePrefix[T any](db *badger.DB, prefix []byte) ([]T, error) {
	var results []T
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var v T
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &v)
			})
			if err != nil {
				return fmt.Errorf("decode %q: %w", it.Item().Key(), err)
			}
			results = append(results, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// GetSetting reads a named setting into out. Returns ErrNotFound when the
// setting has never been written.
func (s *Store) GetSetting(name string, out any) error {
	return s.getJSON([]byte(settingKeyPrefix+name), out)
}

// PutSetting writes a named setting.
func (s *Store) PutSetting(name string, v any) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txnSetJSON(txn, []byte(settingKeyPrefix+name), v)
	})
}

// DeleteSetting removes a named setting. Missing settings are not an error.
func (s *Store) DeleteSetting(name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(settingKeyPrefix + name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// AddOrphanedFile records a file path whose deletion failed, for later retry.
func (s *Store) AddOrphanedFile(path string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(orphanFileKeyPrefix+path), []byte(path))
	})
}

// ListOrphanedFiles returns every recorded orphaned file path.
func (s *Store) ListOrphanedFiles() ([]string, error) {
	var paths []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(orphanFileKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				paths = append(paths, string(val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// RemoveOrphanedFile drops a path from the orphaned-file index.
func (s *Store) RemoveOrphanedFile(path string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(orphanFileKeyPrefix + path))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// badgerLogger adapts badger's logger interface to zerolog.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...any) {
	logging.Error().Msgf("badger: "+strings.TrimSpace(format), args...)
}

func (badgerLogger) Warningf(format string, args ...any) {
	logging.Warn().Msgf("badger: "+strings.TrimSpace(format), args...)
}

func (badgerLogger) Infof(format string, args ...any) {
	logging.Debug().Msgf("badger: "+strings.TrimSpace(format), args...)
}

func (badgerLogger) Debugf(format string, args ...any) {
	logging.Trace().Msgf("badger: "+strings.TrimSpace(format), args...)
}
