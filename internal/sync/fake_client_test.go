// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

package sync

import (
	"context"
	"fmt"
	"testing"

	"github.com/halcyonforge/romshelf/internal/config"
	"github.com/halcyonforge/romshelf/internal/models/romm"
	rommclient "github.com/halcyonforge/romshelf/internal/romm"
	"github.com/halcyonforge/romshelf/internal/store"
)

// fakeClient is a scriptable in-memory RomM server for reconciler tests.
type fakeClient struct {
	platforms      []romm.Platform
	romsByPlatform map[int64][]romm.Rom
	romErrs        map[int64]error

	collections      []romm.Collection
	collectionsCalls int
	nextCollID       int64
	collectionRoms   map[int64][]int64
	createCalls      int
	currentUser      *romm.User
	userCalls        int
	raRefreshCalls   int
	deletedCollIDs   []int64
	romUserUpdates   map[int64]romm.RomUserUpdate
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		romsByPlatform: make(map[int64][]romm.Rom),
		romErrs:        make(map[int64]error),
		collectionRoms: make(map[int64][]int64),
		romUserUpdates: make(map[int64]romm.RomUserUpdate),
		nextCollID:     1,
		currentUser:    &romm.User{ID: 1, Username: "tester"},
	}
}

func (f *fakeClient) Heartbeat(context.Context) (*romm.Heartbeat, error) {
	return &romm.Heartbeat{System: romm.HeartbeatSystem{Version: "3.10.2"}}, nil
}

func (f *fakeClient) Login(context.Context, string, string, string) (*romm.TokenResponse, error) {
	return &romm.TokenResponse{AccessToken: "fake"}, nil
}

func (f *fakeClient) GetCurrentUser(context.Context) (*romm.User, error) {
	f.userCalls++
	return f.currentUser, nil
}

func (f *fakeClient) GetPlatforms(context.Context) ([]romm.Platform, error) {
	return f.platforms, nil
}

func (f *fakeClient) GetPlatform(_ context.Context, id int64) (*romm.Platform, error) {
	for i := range f.platforms {
		if f.platforms[i].ID == id {
			return &f.platforms[i], nil
		}
	}
	return nil, fmt.Errorf("platform %d not found", id)
}

func (f *fakeClient) GetRoms(_ context.Context, q rommclient.RomQuery) (*romm.RomPage, error) {
	roms := f.romsByPlatform[q.PlatformID]
	end := q.Offset + q.Limit
	if end > len(roms) {
		end = len(roms)
	}
	var items []romm.Rom
	if q.Offset < len(roms) {
		items = roms[q.Offset:end]
	}
	return &romm.RomPage{Items: items, Total: len(roms), Limit: q.Limit, Offset: q.Offset}, nil
}

func (f *fakeClient) GetRom(_ context.Context, id int64) (*romm.Rom, error) {
	if err, ok := f.romErrs[id]; ok {
		return nil, err
	}
	for _, roms := range f.romsByPlatform {
		for i := range roms {
			if roms[i].ID == id {
				return &roms[i], nil
			}
		}
	}
	return nil, fmt.Errorf("rom %d not found", id)
}

func (f *fakeClient) DownloadRom(context.Context, int64, string, string, int64) (*rommclient.DownloadResult, error) {
	return &rommclient.DownloadResult{}, nil
}

func (f *fakeClient) GetCollections(context.Context) ([]romm.Collection, error) {
	f.collectionsCalls++
	out := make([]romm.Collection, len(f.collections))
	copy(out, f.collections)
	for i := range out {
		out[i].RomIDs = append([]int64(nil), f.collectionRoms[out[i].ID]...)
	}
	return out, nil
}

func (f *fakeClient) CreateCollection(_ context.Context, c romm.CollectionCreate) (*romm.Collection, error) {
	f.createCalls++
	coll := romm.Collection{
		ID:          f.nextCollID,
		Name:        c.Name,
		Description: c.Description,
		IsFavorite:  c.IsFavorite,
	}
	f.nextCollID++
	f.collections = append(f.collections, coll)
	return &coll, nil
}

func (f *fakeClient) UpdateCollectionRoms(_ context.Context, id int64, romIDs []int64) error {
	f.collectionRoms[id] = append([]int64(nil), romIDs...)
	return nil
}

func (f *fakeClient) DeleteCollection(_ context.Context, id int64) error {
	f.deletedCollIDs = append(f.deletedCollIDs, id)
	return nil
}

func (f *fakeClient) UpdateRomUser(_ context.Context, romID int64, u romm.RomUserUpdate) error {
	f.romUserUpdates[romID] = u
	return nil
}

func (f *fakeClient) RefreshRetroAchievements(context.Context) error {
	f.raRefreshCalls++
	return nil
}

func (f *fakeClient) RegisterDevice(_ context.Context, d romm.Device) (*romm.Device, error) {
	d.ID = "device-1"
	return &d, nil
}

func (f *fakeClient) UpdateDevice(_ context.Context, d romm.Device) (*romm.Device, error) {
	return &d, nil
}

func (f *fakeClient) BaseURL() string { return "http://fake" }

var _ rommclient.ClientInterface = (*fakeClient)(nil)

// fakeConn wires a fakeClient into the ConnectionProvider seam.
type fakeConn struct {
	c       rommclient.ClientInterface
	version string
}

func (f *fakeConn) Client() rommclient.ClientInterface { return f.c }
func (f *fakeConn) ServerVersion() string              { return f.version }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(config.StoreConfig{InMemory: true})
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return s
}

func newTestReconciler(t *testing.T, client *fakeClient) (*Reconciler, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	r := NewReconciler(
		st,
		&fakeConn{c: client, version: "3.10.2"},
		NewFilter(config.FilterConfig{}),
		config.SyncConfig{PageSize: 2, DeleteOrphans: true},
	)
	return r, st
}

func int64Ptr(v int64) *int64 { return &v }
