// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

package sync

import (
	"context"
	"testing"
	"time"

	"github.com/halcyonforge/romshelf/internal/models"
	"github.com/halcyonforge/romshelf/internal/models/romm"
	"github.com/halcyonforge/romshelf/internal/store"
)

func newTestCollectionSync(t *testing.T, client *fakeClient) (*CollectionSync, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	cs := NewCollectionSync(context.Background(), st, &fakeConn{c: client, version: "3.10.2"})
	t.Cleanup(cs.Close)
	return cs, st
}

func seedGame(t *testing.T, st *store.Store, rommID int64, title string, favorite bool) *models.Game {
	t.Helper()
	g := &models.Game{
		PlatformID: 1,
		RommID:     int64Ptr(rommID),
		Title:      title,
		IsFavorite: favorite,
		Source:     models.SourceRemote,
	}
	if err := st.UpsertGame(g); err != nil {
		t.Fatal(err)
	}
	return g
}

func seedRemoteFavorites(client *fakeClient, romIDs []int64, updatedAt time.Time) {
	client.collections = append(client.collections, romm.Collection{
		ID:         50,
		Name:       models.FavoritesCollectionName,
		IsFavorite: true,
		UpdatedAt:  updatedAt,
	})
	client.collectionRoms[50] = romIDs
	client.nextCollID = 51
}

func favoriteRommIDs(t *testing.T, st *store.Store) map[int64]bool {
	t.Helper()
	games, err := st.ListGames()
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[int64]bool)
	for _, g := range games {
		if g.IsFavorite && g.RommID != nil {
			out[*g.RommID] = true
		}
	}
	return out
}

func TestFirstFavoritesSyncUnionsBothSides(t *testing.T) {
	client := newFakeClient()
	seedRemoteFavorites(client, []int64{2, 3}, time.Now().UTC())
	cs, st := newTestCollectionSync(t, client)

	seedGame(t, st, 1, "Alpha", true)
	seedGame(t, st, 2, "Beta", true)
	seedGame(t, st, 3, "Gamma", false)

	if err := cs.SyncFavorites(context.Background()); err != nil {
		t.Fatal(err)
	}

	pushed := make(map[int64]bool)
	for _, id := range client.collectionRoms[50] {
		pushed[id] = true
	}
	for _, id := range []int64{1, 2, 3} {
		if !pushed[id] {
			t.Errorf("remote union missing rom %d: %v", id, client.collectionRoms[50])
		}
	}

	local := favoriteRommIDs(t, st)
	for _, id := range []int64{1, 2, 3} {
		if !local[id] {
			t.Errorf("local union missing rom %d", id)
		}
	}

	state, err := st.GetFavoritesSyncState()
	if err != nil {
		t.Fatal(err)
	}
	if state.LastSyncedAt == nil {
		t.Error("baseline not recorded after first sync")
	}
}

func TestSecondFavoritesSyncIsRemoteAuthoritative(t *testing.T) {
	client := newFakeClient()
	seedRemoteFavorites(client, []int64{2}, time.Now().UTC())
	cs, st := newTestCollectionSync(t, client)

	seedGame(t, st, 1, "Alpha", true)
	seedGame(t, st, 2, "Beta", false)

	if err := cs.SyncFavorites(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Remote was edited elsewhere; the next sync takes its word exactly.
	client.collectionRoms[50] = []int64{1}
	if err := cs.SyncFavorites(context.Background()); err != nil {
		t.Fatal(err)
	}

	local := favoriteRommIDs(t, st)
	if !local[1] || local[2] {
		t.Errorf("favorites = %v, want exactly {1}", local)
	}
}

func TestSyncFavoritesCreatesRemoteCollectionLazily(t *testing.T) {
	client := newFakeClient()
	cs, _ := newTestCollectionSync(t, client)

	if err := cs.SyncFavorites(context.Background()); err != nil {
		t.Fatal(err)
	}

	if client.createCalls != 1 {
		t.Fatalf("createCalls = %d, want 1", client.createCalls)
	}
	if len(client.collections) != 1 || !client.collections[0].IsFavorite {
		t.Errorf("created collection not flagged favorite: %+v", client.collections)
	}
}

func TestRefreshFavoritesDebounce(t *testing.T) {
	client := newFakeClient()
	seedRemoteFavorites(client, []int64{1}, time.Now().UTC())
	cs, _ := newTestCollectionSync(t, client)

	if err := cs.RefreshFavoritesIfNeeded(context.Background()); err != nil {
		t.Fatal(err)
	}
	calls := client.collectionsCalls

	// Within the debounce window the server must not be contacted again.
	if err := cs.RefreshFavoritesIfNeeded(context.Background()); err != nil {
		t.Fatal(err)
	}
	if client.collectionsCalls != calls {
		t.Errorf("collections fetched %d times, want %d (debounced)", client.collectionsCalls, calls)
	}
}

func TestRefreshFavoritesSkipsWhenRemoteUnchanged(t *testing.T) {
	client := newFakeClient()
	remoteStamp := time.Now().UTC().Add(-time.Hour)
	seedRemoteFavorites(client, []int64{1}, remoteStamp)
	cs, st := newTestCollectionSync(t, client)
	seedGame(t, st, 1, "Alpha", false)

	if err := cs.SyncFavorites(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Expire the debounce window but leave the remote untouched; the
	// refresh must not rewrite local flags.
	past := time.Now().UTC().Add(-time.Minute)
	if err := st.PutFavoritesSyncState(&store.FavoritesSyncState{
		LastSyncedAt:  &remoteStamp,
		LastCheckedAt: &past,
	}); err != nil {
		t.Fatal(err)
	}

	g, err := st.GetGameByRommID(1)
	if err != nil {
		t.Fatal(err)
	}
	g.IsFavorite = false
	if err := st.UpsertGame(g); err != nil {
		t.Fatal(err)
	}

	if err := cs.RefreshFavoritesIfNeeded(context.Background()); err != nil {
		t.Fatal(err)
	}

	g, err = st.GetGameByRommID(1)
	if err != nil {
		t.Fatal(err)
	}
	if g.IsFavorite {
		t.Error("unchanged remote must not overwrite local favorite flags")
	}
}

func TestRefreshFavoritesAppliesNewerRemote(t *testing.T) {
	client := newFakeClient()
	seedRemoteFavorites(client, []int64{1}, time.Now().UTC().Add(-time.Hour))
	cs, st := newTestCollectionSync(t, client)
	seedGame(t, st, 1, "Alpha", false)
	seedGame(t, st, 2, "Beta", false)

	if err := cs.SyncFavorites(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Remote edit: favorites now {2}, with a newer stamp. Expire the
	// debounce window so the refresh actually checks.
	client.collections[0].UpdatedAt = time.Now().UTC()
	client.collectionRoms[50] = []int64{2}
	state, err := st.GetFavoritesSyncState()
	if err != nil {
		t.Fatal(err)
	}
	past := time.Now().UTC().Add(-time.Minute)
	state.LastCheckedAt = &past
	if err := st.PutFavoritesSyncState(state); err != nil {
		t.Fatal(err)
	}

	if err := cs.RefreshFavoritesIfNeeded(context.Background()); err != nil {
		t.Fatal(err)
	}

	local := favoriteRommIDs(t, st)
	if local[1] || !local[2] {
		t.Errorf("favorites = %v, want exactly {2}", local)
	}
}

func TestToggleFavoritePushesMembershipDelta(t *testing.T) {
	client := newFakeClient()
	seedRemoteFavorites(client, []int64{5}, time.Now().UTC())
	cs, st := newTestCollectionSync(t, client)
	g := seedGame(t, st, 9, "Alpha", false)

	if err := cs.ToggleFavoriteWithSync(g.ID, true); err != nil {
		t.Fatal(err)
	}

	// Local flag lands immediately, before the queue drains.
	got, err := st.GetGame(g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsFavorite {
		t.Error("local favorite flag not set immediately")
	}

	cs.Close()

	pushed := make(map[int64]bool)
	for _, id := range client.collectionRoms[50] {
		pushed[id] = true
	}
	if !pushed[5] || !pushed[9] {
		t.Errorf("remote membership = %v, want {5, 9}", client.collectionRoms[50])
	}
}

func TestToggleFavoriteLocalOnlyGameSkipsPush(t *testing.T) {
	client := newFakeClient()
	cs, st := newTestCollectionSync(t, client)

	g := &models.Game{PlatformID: 1, Title: "Homebrew", Source: models.SourceLocal}
	if err := st.UpsertGame(g); err != nil {
		t.Fatal(err)
	}

	if err := cs.ToggleFavoriteWithSync(g.ID, true); err != nil {
		t.Fatal(err)
	}
	cs.Close()

	if client.collectionsCalls != 0 {
		t.Error("game without a remote id must not trigger a remote push")
	}
}

func TestSyncCollectionsPushesLocalOnly(t *testing.T) {
	client := newFakeClient()
	cs, st := newTestCollectionSync(t, client)

	g := seedGame(t, st, 7, "Alpha", false)
	coll := &models.Collection{Name: "Weekend Queue", IsUserCreated: true}
	if err := st.UpsertCollection(coll); err != nil {
		t.Fatal(err)
	}
	if err := st.AddCollectionGame(coll.ID, g.ID); err != nil {
		t.Fatal(err)
	}

	result := cs.SyncCollections(context.Background())
	if result.Status != StatusSuccess {
		t.Fatalf("result: %+v", result)
	}

	if client.createCalls != 1 {
		t.Fatalf("createCalls = %d, want 1", client.createCalls)
	}
	linked, err := st.GetCollection(coll.ID)
	if err != nil {
		t.Fatal(err)
	}
	if linked.RommID == nil {
		t.Fatal("local collection not linked to its remote counterpart")
	}
	if got := client.collectionRoms[*linked.RommID]; len(got) != 1 || got[0] != 7 {
		t.Errorf("pushed membership = %v, want [7]", got)
	}
}

func TestSyncCollectionsPullsRemoteWithDeltas(t *testing.T) {
	client := newFakeClient()
	client.collections = []romm.Collection{{ID: 60, Name: "RPGs", UpdatedAt: time.Now().UTC()}}
	client.collectionRoms[60] = []int64{1, 2, 999}
	client.nextCollID = 61
	cs, st := newTestCollectionSync(t, client)

	a := seedGame(t, st, 1, "Alpha", false)
	b := seedGame(t, st, 2, "Beta", false)
	stale := seedGame(t, st, 3, "Gamma", false)

	// Local membership predates the remote edit: holds a game the remote
	// dropped, lacks one it added.
	local := &models.Collection{RommID: int64Ptr(60), Name: "RPGs"}
	if err := st.UpsertCollection(local); err != nil {
		t.Fatal(err)
	}
	if err := st.AddCollectionGame(local.ID, a.ID); err != nil {
		t.Fatal(err)
	}
	if err := st.AddCollectionGame(local.ID, stale.ID); err != nil {
		t.Fatal(err)
	}

	result := cs.SyncCollections(context.Background())
	if result.Status != StatusSuccess {
		t.Fatalf("result: %+v", result)
	}

	ids, err := st.ListCollectionGameIDs(local.ID)
	if err != nil {
		t.Fatal(err)
	}
	have := make(map[int64]bool)
	for _, id := range ids {
		have[id] = true
	}
	// ROM 999 was never admitted locally and is ignored.
	if len(have) != 2 || !have[a.ID] || !have[b.ID] {
		t.Errorf("membership = %v, want {%d, %d}", ids, a.ID, b.ID)
	}
}

func TestSyncCollectionsPropagatesRemoteDeletion(t *testing.T) {
	client := newFakeClient()
	cs, st := newTestCollectionSync(t, client)

	gone := &models.Collection{RommID: int64Ptr(99), Name: "Removed Remotely"}
	if err := st.UpsertCollection(gone); err != nil {
		t.Fatal(err)
	}

	result := cs.SyncCollections(context.Background())
	if result.Status != StatusSuccess {
		t.Fatalf("result: %+v", result)
	}

	if _, err := st.GetCollection(gone.ID); err == nil {
		t.Error("collection deleted on the remote should be deleted locally")
	}
}

func TestSyncCollectionsIgnoresFavoritesCollection(t *testing.T) {
	client := newFakeClient()
	seedRemoteFavorites(client, []int64{1}, time.Now().UTC())
	cs, st := newTestCollectionSync(t, client)

	result := cs.SyncCollections(context.Background())
	if result.Status != StatusSuccess {
		t.Fatalf("result: %+v", result)
	}

	colls, err := st.ListCollections()
	if err != nil {
		t.Fatal(err)
	}
	if len(colls) != 0 {
		t.Errorf("favorites collection must not appear as a named collection: %+v", colls)
	}
}
