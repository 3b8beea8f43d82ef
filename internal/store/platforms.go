// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

package store

import (
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/halcyonforge/romshelf/internal/metrics"
	"github.com/halcyonforge/romshelf/internal/models"
)

// UpsertPlatform writes a platform row keyed by its remote id.
func (s *Store) UpsertPlatform(p *models.Platform) error {
	defer metrics.ObserveStoreOp("upsert_platform", time.Now())
	return s.db.Update(func(txn *badger.Txn) error {
		return txnSetJSON(txn, idKey(platformKeyPrefix, p.ID), p)
	})
}

// GetPlatform returns the platform with the given id.
func (s *Store) GetPlatform(id int64) (*models.Platform, error) {
	var p models.Platform
	if err := s.getJSON(idKey(platformKeyPrefix, id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPlatforms returns every platform row in id order.
func (s *Store) ListPlatforms() ([]models.Platform, error) {
	return iteratePrefix[models.Platform](s.db, []byte(platformKeyPrefix))
}

// DeletePlatform removes a platform row. Missing rows are not an error.
// Games pointing at the platform are left alone; legacy-platform migration
// repoints them before deleting the row.
func (s *Store) DeletePlatform(id int64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(idKey(platformKeyPrefix, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}
