// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

package store

import (
	"errors"
	"testing"
	"time"

	"github.com/halcyonforge/romshelf/internal/config"
	"github.com/halcyonforge/romshelf/internal/models"
)

// newTestStore opens an in-memory store that closes with the test.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(config.StoreConfig{InMemory: true})
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

func int64Ptr(v int64) *int64 { return &v }

func TestGameUpsertAssignsID(t *testing.T) {
	s := newTestStore(t)

	g := &models.Game{PlatformID: 1, Title: "Alpha"}
	if err := s.UpsertGame(g); err != nil {
		t.Fatal(err)
	}
	if g.ID == 0 {
		t.Fatal("expected assigned local id")
	}

	g2 := &models.Game{PlatformID: 1, Title: "Beta"}
	if err := s.UpsertGame(g2); err != nil {
		t.Fatal(err)
	}
	if g2.ID == g.ID {
		t.Errorf("expected distinct ids, both %d", g.ID)
	}
}

func TestGameRommIndex(t *testing.T) {
	s := newTestStore(t)

	g := &models.Game{PlatformID: 1, Title: "Alpha", RommID: int64Ptr(100)}
	if err := s.UpsertGame(g); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetGameByRommID(100)
	if err != nil {
		t.Fatalf("lookup by romm id: %v", err)
	}
	if got.ID != g.ID {
		t.Errorf("got game %d, want %d", got.ID, g.ID)
	}

	// Re-point the row at a new remote id; the stale index entry must go.
	g.RommID = int64Ptr(200)
	if err := s.UpsertGame(g); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetGameByRommID(100); !errors.Is(err, ErrNotFound) {
		t.Errorf("stale index lookup err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetGameByRommID(200); err != nil {
		t.Errorf("new index lookup err = %v", err)
	}
}

func TestDeleteGameCascades(t *testing.T) {
	s := newTestStore(t)

	g := &models.Game{PlatformID: 1, Title: "Alpha", RommID: int64Ptr(100)}
	if err := s.UpsertGame(g); err != nil {
		t.Fatal(err)
	}
	if err := s.PutDisc(&models.GameDisc{GameID: g.ID, RommID: 101, DiscNumber: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceGameFiles(g.ID, []models.GameFile{{RommFileID: 7, Category: "update"}}); err != nil {
		t.Fatal(err)
	}
	coll := &models.Collection{Name: "RPGs", IsUserCreated: true}
	if err := s.UpsertCollection(coll); err != nil {
		t.Fatal(err)
	}
	if err := s.AddCollectionGame(coll.ID, g.ID); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteGame(g.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetGame(g.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("game lookup err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetGameByRommID(100); !errors.Is(err, ErrNotFound) {
		t.Errorf("romm index err = %v, want ErrNotFound", err)
	}
	discs, err := s.ListDiscs(g.ID)
	if err != nil || len(discs) != 0 {
		t.Errorf("discs = %v (err %v), want none", discs, err)
	}
	files, err := s.ListGameFiles(g.ID)
	if err != nil || len(files) != 0 {
		t.Errorf("files = %v (err %v), want none", files, err)
	}
	ids, err := s.ListCollectionGameIDs(coll.ID)
	if err != nil || len(ids) != 0 {
		t.Errorf("memberships = %v (err %v), want none", ids, err)
	}
}

func TestDiscPruning(t *testing.T) {
	s := newTestStore(t)

	for _, rommID := range []int64{10, 11, 12} {
		err := s.PutDisc(&models.GameDisc{GameID: 1, RommID: rommID, DiscNumber: int(rommID - 9)})
		if err != nil {
			t.Fatal(err)
		}
	}

	if err := s.DeleteDiscsNotIn(1, map[int64]bool{10: true, 12: true}); err != nil {
		t.Fatal(err)
	}

	discs, err := s.ListDiscs(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(discs) != 2 {
		t.Fatalf("got %d discs, want 2", len(discs))
	}
	for _, d := range discs {
		if d.RommID == 11 {
			t.Error("disc 11 should have been pruned")
		}
	}
}

func TestReplaceGameFiles(t *testing.T) {
	s := newTestStore(t)

	err := s.ReplaceGameFiles(5, []models.GameFile{
		{RommFileID: 1, Category: "update"},
		{RommFileID: 2, Category: "dlc"},
	})
	if err != nil {
		t.Fatal(err)
	}

	err = s.ReplaceGameFiles(5, []models.GameFile{{RommFileID: 3, Category: "dlc"}})
	if err != nil {
		t.Fatal(err)
	}

	files, err := s.ListGameFiles(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].RommFileID != 3 {
		t.Errorf("files = %+v, want single file id 3", files)
	}
}

func TestPlatformRoundTrip(t *testing.T) {
	s := newTestStore(t)

	p := &models.Platform{ID: 3, Slug: "snes", FsSlug: "snes", Name: "SNES", SyncEnabled: true}
	if err := s.UpsertPlatform(p); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetPlatform(3)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "SNES" || !got.SyncEnabled {
		t.Errorf("got %+v", got)
	}

	if err := s.DeletePlatform(3); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetPlatform(3); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCollectionLookups(t *testing.T) {
	s := newTestStore(t)

	fav := &models.Collection{Name: models.FavoritesCollectionName}
	if err := s.UpsertCollection(fav); err != nil {
		t.Fatal(err)
	}
	linked := &models.Collection{Name: "Shmups", RommID: int64Ptr(42), IsUserCreated: true}
	if err := s.UpsertCollection(linked); err != nil {
		t.Fatal(err)
	}

	byName, err := s.GetCollectionByName("favorites")
	if err != nil {
		t.Fatalf("case-insensitive name lookup: %v", err)
	}
	if byName.ID != fav.ID {
		t.Errorf("got collection %d, want %d", byName.ID, fav.ID)
	}

	byRomm, err := s.GetCollectionByRommID(42)
	if err != nil {
		t.Fatal(err)
	}
	if byRomm.ID != linked.ID {
		t.Errorf("got collection %d, want %d", byRomm.ID, linked.ID)
	}
}

func TestOrphanedFileIndex(t *testing.T) {
	s := newTestStore(t)

	if err := s.AddOrphanedFile("/roms/snes/a.sfc"); err != nil {
		t.Fatal(err)
	}
	if err := s.AddOrphanedFile("/roms/snes/b.sfc"); err != nil {
		t.Fatal(err)
	}

	paths, err := s.ListOrphanedFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Fatalf("got %d paths, want 2", len(paths))
	}

	if err := s.RemoveOrphanedFile("/roms/snes/a.sfc"); err != nil {
		t.Fatal(err)
	}
	paths, err = s.ListOrphanedFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 || paths[0] != "/roms/snes/b.sfc" {
		t.Errorf("paths = %v", paths)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestStore(t)

	// Unset settings come back as zero values, not errors.
	lastSync, err := s.GetLastLibrarySync()
	if err != nil || !lastSync.IsZero() {
		t.Errorf("lastSync = %v (err %v), want zero", lastSync, err)
	}
	cs, err := s.GetConnectionSettings()
	if err != nil || cs != nil {
		t.Errorf("connection = %v (err %v), want nil", cs, err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	if err := s.PutLastLibrarySync(now); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetLastLibrarySync()
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(now) {
		t.Errorf("lastSync = %v, want %v", got, now)
	}

	err = s.PutConnectionSettings(&ConnectionSettings{BaseURL: "https://romm.local", Token: "tok"})
	if err != nil {
		t.Fatal(err)
	}
	cs, err = s.GetConnectionSettings()
	if err != nil {
		t.Fatal(err)
	}
	if cs.BaseURL != "https://romm.local" || cs.Token != "tok" {
		t.Errorf("connection = %+v", cs)
	}

	if err := s.ClearConnectionSettings(); err != nil {
		t.Fatal(err)
	}
	cs, err = s.GetConnectionSettings()
	if err != nil || cs != nil {
		t.Errorf("after clear: %v (err %v)", cs, err)
	}
}
