// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

package store

import (
	"errors"
	"time"
)

// Well-known setting names.
const (
	settingConnection    = "connection"
	settingDevice        = "device"
	settingLastSync      = "last_library_sync"
	settingFavoritesSync = "favorites_sync"
)

// ConnectionSettings is the persisted remote-connection state used to
// re-initialize the API handle after a restart.
type ConnectionSettings struct {
	BaseURL  string `json:"base_url"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

// DeviceRegistration records the device id issued by the remote server and
// the client version it was registered under.
type DeviceRegistration struct {
	DeviceID      string `json:"device_id"`
	ClientVersion string `json:"client_version"`
}

// FavoritesSyncState is the favorites baseline: the remote collection's
// updatedAt at last successful sync, plus a separate last-checked stamp used
// purely for debouncing.
type FavoritesSyncState struct {
	LastSyncedAt  *time.Time `json:"last_synced_at,omitempty"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
}

// GetConnectionSettings returns the persisted connection state, or nil when
// nothing has been persisted yet.
func (s *Store) GetConnectionSettings() (*ConnectionSettings, error) {
	var cs ConnectionSettings
	err := s.GetSetting(settingConnection, &cs)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cs, nil
}

// PutConnectionSettings persists the connection state.
func (s *Store) PutConnectionSettings(cs *ConnectionSettings) error {
	return s.PutSetting(settingConnection, cs)
}

// ClearConnectionSettings drops the persisted connection state.
func (s *Store) ClearConnectionSettings() error {
	return s.DeleteSetting(settingConnection)
}

// GetDeviceRegistration returns the recorded device registration, or nil.
func (s *Store) GetDeviceRegistration() (*DeviceRegistration, error) {
	var dr DeviceRegistration
	err := s.GetSetting(settingDevice, &dr)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dr, nil
}

// PutDeviceRegistration records a successful device registration.
func (s *Store) PutDeviceRegistration(dr *DeviceRegistration) error {
	return s.PutSetting(settingDevice, dr)
}

// GetLastLibrarySync returns the completion time of the last full sync pass,
// or the zero time when no pass has completed.
func (s *Store) GetLastLibrarySync() (time.Time, error) {
	var t time.Time
	err := s.GetSetting(settingLastSync, &t)
	if errors.Is(err, ErrNotFound) {
		return time.Time{}, nil
	}
	return t, err
}

// PutLastLibrarySync records the completion time of a sync pass.
func (s *Store) PutLastLibrarySync(t time.Time) error {
	return s.PutSetting(settingLastSync, t)
}

// GetFavoritesSyncState returns the favorites baseline (never nil).
func (s *Store) GetFavoritesSyncState() (*FavoritesSyncState, error) {
	var fs FavoritesSyncState
	err := s.GetSetting(settingFavoritesSync, &fs)
	if errors.Is(err, ErrNotFound) {
		return &FavoritesSyncState{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &fs, nil
}

// PutFavoritesSyncState persists the favorites baseline.
func (s *Store) PutFavoritesSyncState(fs *FavoritesSyncState) error {
	return s.PutSetting(settingFavoritesSync, fs)
}
