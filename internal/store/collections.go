// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

package store

import (
	"errors"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/halcyonforge/romshelf/internal/models"
)

// UpsertCollection writes a collection row, assigning a local id when
// c.ID is zero.
func (s *Store) UpsertCollection(c *models.Collection) error {
	if c.ID == 0 {
		id, err := s.nextCollectionID()
		if err != nil {
			return err
		}
		c.ID = id
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txnSetJSON(txn, idKey(collectionKeyPrefix, c.ID), c)
	})
}

// GetCollection returns the collection with the given local id.
func (s *Store) GetCollection(id int64) (*models.Collection, error) {
	var c models.Collection
	if err := s.getJSON(idKey(collectionKeyPrefix, id), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCollections returns every collection row in local-id order.
func (s *Store) ListCollections() ([]models.Collection, error) {
	return iteratePrefix[models.Collection](s.db, []byte(collectionKeyPrefix))
}

// GetCollectionByRommID returns the collection linked to a remote id.
func (s *Store) GetCollectionByRommID(rommID int64) (*models.Collection, error) {
	all, err := s.ListCollections()
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].RommID != nil && *all[i].RommID == rommID {
			return &all[i], nil
		}
	}
	return nil, ErrNotFound
}

// GetCollectionByName returns the collection with a case-insensitive name match.
func (s *Store) GetCollectionByName(name string) (*models.Collection, error) {
	all, err := s.ListCollections()
	if err != nil {
		return nil, err
	}
	for i := range all {
		if strings.EqualFold(all[i].Name, name) {
			return &all[i], nil
		}
	}
	return nil, ErrNotFound
}

// DeleteCollection removes a collection row and its memberships.
func (s *Store) DeleteCollection(id int64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(idKey(collectionKeyPrefix, id))
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return deleteByPrefix(txn, pairPrefix(collGameKeyPrefix, id))
	})
}

// AddCollectionGame records membership of a game in a collection.
func (s *Store) AddCollectionGame(collectionID, gameID int64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(pairKey(collGameKeyPrefix, collectionID, gameID), nil)
	})
}

// RemoveCollectionGame drops membership of a game in a collection.
func (s *Store) RemoveCollectionGame(collectionID, gameID int64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(pairKey(collGameKeyPrefix, collectionID, gameID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// ListCollectionGameIDs returns the local game ids belonging to a collection.
func (s *Store) ListCollectionGameIDs(collectionID int64) ([]int64, error) {
	var ids []int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = pairPrefix(collGameKeyPrefix, collectionID)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			id, err := parseTrailingID(it.Item().Key())
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// deleteMembershipsForGame removes a game from every collection it belongs
// to, inside an open write transaction.
func (s *Store) deleteMembershipsForGame(txn *badger.Txn, gameID int64) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(collGameKeyPrefix)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		key := it.Item().Key()
		id, err := parseTrailingID(key)
		if err != nil {
			continue
		}
		if id == gameID {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
	}
	it.Close()

	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}
