// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/halcyonforge/romshelf/internal/logging"
	"github.com/halcyonforge/romshelf/internal/metrics"
	"github.com/halcyonforge/romshelf/internal/models"
	"github.com/halcyonforge/romshelf/internal/models/romm"
	rommclient "github.com/halcyonforge/romshelf/internal/romm"
	"github.com/halcyonforge/romshelf/internal/store"
)

// favoritesDebounce is the minimum gap between favorites freshness checks.
const favoritesDebounce = 30 * time.Second

// CollectionSync reconciles favorites and user-defined collections between
// the local catalog and the remote server.
//
// Favorites live on the remote as a single collection flagged is_favorite;
// locally they are per-game flags. Every remote-mutating operation here is
// non-fatal for local state: the local write always lands, a failed push is
// logged and surfaced in the returned error only.
type CollectionSync struct {
	store    *store.Store
	conn     ConnectionProvider
	outbound *outboundQueue
}

// NewCollectionSync creates the collection sync engine. The background
// context owns the outbound push queue's lifetime.
func NewCollectionSync(ctx context.Context, st *store.Store, conn ConnectionProvider) *CollectionSync {
	return &CollectionSync{
		store:    st,
		conn:     conn,
		outbound: newOutboundQueue(ctx, 64),
	}
}

// Close drains the outbound queue.
func (c *CollectionSync) Close() {
	c.outbound.close()
}

func (c *CollectionSync) client() (rommclient.ClientInterface, error) {
	client := c.conn.Client()
	if client == nil {
		return nil, errors.New("not connected to RomM server")
	}
	return client, nil
}

// SyncFavorites performs a full favorites sync.
//
// First-ever sync (no recorded baseline) unions the local and remote
// favorite sets, pushes the union, and flags the union locally. Subsequent
// syncs treat the remote as authoritative: exactly the remote set is
// flagged, everything else is cleared.
func (c *CollectionSync) SyncFavorites(ctx context.Context) error {
	client, err := c.client()
	if err != nil {
		return err
	}

	remote, err := c.ensureFavoritesCollection(ctx, client)
	if err != nil {
		return fmt.Errorf("favorites collection: %w", err)
	}

	state, err := c.store.GetFavoritesSyncState()
	if err != nil {
		return err
	}

	if state.LastSyncedAt == nil {
		if err := c.firstFavoritesSync(ctx, client, remote); err != nil {
			return err
		}
	} else {
		if err := c.applyRemoteFavorites(remote.RomIDs); err != nil {
			return err
		}
	}

	metrics.CollectionSyncs.WithLabelValues("favorites").Inc()
	return c.stampFavoritesBaseline(remote.UpdatedAt)
}

// firstFavoritesSync unions local and remote favorites, pushes the union
// and flags it locally.
func (c *CollectionSync) firstFavoritesSync(ctx context.Context, client rommclient.ClientInterface, remote *romm.Collection) error {
	union := make(map[int64]bool, len(remote.RomIDs))
	for _, id := range remote.RomIDs {
		union[id] = true
	}

	games, err := c.store.ListGames()
	if err != nil {
		return err
	}
	for _, g := range games {
		if g.IsFavorite && g.RommID != nil {
			union[*g.RommID] = true
		}
	}

	ids := make([]int64, 0, len(union))
	for id := range union {
		ids = append(ids, id)
	}
	if err := client.UpdateCollectionRoms(ctx, remote.ID, ids); err != nil {
		return fmt.Errorf("push favorites union: %w", err)
	}
	return c.applyRemoteFavorites(ids)
}

// applyRemoteFavorites flags exactly the given remote ids as favorite and
// clears the flag everywhere else.
func (c *CollectionSync) applyRemoteFavorites(remoteIDs []int64) error {
	want := make(map[int64]bool, len(remoteIDs))
	for _, id := range remoteIDs {
		want[id] = true
	}

	games, err := c.store.ListGames()
	if err != nil {
		return err
	}
	for _, g := range games {
		target := g.RommID != nil && want[*g.RommID]
		if g.IsFavorite == target {
			continue
		}
		g.IsFavorite = target
		if err := c.store.UpsertGame(&g); err != nil {
			return fmt.Errorf("update favorite flag on game %d: %w", g.ID, err)
		}
	}
	return nil
}

// RefreshFavoritesIfNeeded is the debounced freshness check. Within the
// debounce window it does nothing; otherwise it compares the remote
// collection's updatedAt against the local baseline and only resyncs when
// the remote is strictly newer.
func (c *CollectionSync) RefreshFavoritesIfNeeded(ctx context.Context) error {
	state, err := c.store.GetFavoritesSyncState()
	if err != nil {
		return err
	}
	if state.LastCheckedAt != nil && time.Since(*state.LastCheckedAt) < favoritesDebounce {
		metrics.FavoritesDebounceSkips.Inc()
		return nil
	}

	client, err := c.client()
	if err != nil {
		return err
	}
	remote, err := c.findFavoritesCollection(ctx, client)
	if err != nil {
		return err
	}
	if remote == nil {
		return c.stampFavoritesChecked()
	}

	if state.LastSyncedAt == nil {
		return c.SyncFavorites(ctx)
	}
	if !remote.UpdatedAt.After(*state.LastSyncedAt) {
		return c.stampFavoritesChecked()
	}

	if err := c.applyRemoteFavorites(remote.RomIDs); err != nil {
		return err
	}
	metrics.CollectionSyncs.WithLabelValues("favorites").Inc()
	return c.stampFavoritesBaseline(remote.UpdatedAt)
}

// ToggleFavoriteWithSync writes the local flag immediately and enqueues the
// remote membership change without blocking on the network.
func (c *CollectionSync) ToggleFavoriteWithSync(gameID int64, favorite bool) error {
	game, err := c.store.GetGame(gameID)
	if err != nil {
		return err
	}
	game.IsFavorite = favorite
	if err := c.store.UpsertGame(game); err != nil {
		return err
	}
	if game.RommID == nil {
		return nil
	}

	rommID := *game.RommID
	c.outbound.enqueue("favorite_toggle", func(ctx context.Context) error {
		return c.pushFavoriteToggle(ctx, rommID, favorite)
	})
	return nil
}

// pushFavoriteToggle applies one membership delta to the remote favorites
// collection.
func (c *CollectionSync) pushFavoriteToggle(ctx context.Context, rommID int64, favorite bool) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	remote, err := c.ensureFavoritesCollection(ctx, client)
	if err != nil {
		return err
	}

	ids := make([]int64, 0, len(remote.RomIDs)+1)
	present := false
	for _, id := range remote.RomIDs {
		if id == rommID {
			present = true
			if !favorite {
				continue
			}
		}
		ids = append(ids, id)
	}
	if favorite && !present {
		ids = append(ids, rommID)
	}
	if favorite == present {
		return nil
	}
	return client.UpdateCollectionRoms(ctx, remote.ID, ids)
}

// findFavoritesCollection returns the remote is_favorite collection, or nil.
func (c *CollectionSync) findFavoritesCollection(ctx context.Context, client rommclient.ClientInterface) (*romm.Collection, error) {
	collections, err := client.GetCollections(ctx)
	if err != nil {
		return nil, err
	}
	for i := range collections {
		if collections[i].IsFavorite {
			return &collections[i], nil
		}
	}
	return nil, nil
}

// ensureFavoritesCollection returns the remote favorites collection,
// creating it lazily when the server has none.
func (c *CollectionSync) ensureFavoritesCollection(ctx context.Context, client rommclient.ClientInterface) (*romm.Collection, error) {
	existing, err := c.findFavoritesCollection(ctx, client)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	logging.Info().Msg("Creating remote favorites collection")
	return client.CreateCollection(ctx, romm.CollectionCreate{
		Name:       models.FavoritesCollectionName,
		IsFavorite: true,
	})
}

func (c *CollectionSync) stampFavoritesBaseline(remoteUpdatedAt time.Time) error {
	now := time.Now().UTC()
	return c.store.PutFavoritesSyncState(&store.FavoritesSyncState{
		LastSyncedAt:  &remoteUpdatedAt,
		LastCheckedAt: &now,
	})
}

func (c *CollectionSync) stampFavoritesChecked() error {
	state, err := c.store.GetFavoritesSyncState()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	state.LastCheckedAt = &now
	return c.store.PutFavoritesSyncState(state)
}

// SyncCollections reconciles named (non-favorite) collections both ways:
// local-only collections are pushed, remote collections are pulled with
// delta membership reconciliation, and remote-side deletions propagate.
func (c *CollectionSync) SyncCollections(ctx context.Context) *Result {
	result := &Result{}
	client, err := c.client()
	if err != nil {
		return errorResult(err.Error())
	}

	c.pushLocalCollections(ctx, client, result)

	remotes, err := client.GetCollections(ctx)
	if err != nil {
		result.addError(fmt.Sprintf("Failed to list remote collections: %v", err))
		return result.finalize()
	}

	remoteIDs := make(map[int64]bool, len(remotes))
	for i := range remotes {
		if remotes[i].IsFavorite {
			continue
		}
		remoteIDs[remotes[i].ID] = true
		c.pullCollection(&remotes[i], result)
	}

	c.deleteUnlinkedCollections(remoteIDs, result)

	metrics.CollectionSyncs.WithLabelValues("named").Inc()
	return result.finalize()
}

// pushLocalCollections creates remote counterparts for user-created
// collections that have no remote id yet and pushes their membership.
func (c *CollectionSync) pushLocalCollections(ctx context.Context, client rommclient.ClientInterface, result *Result) {
	locals, err := c.store.ListCollections()
	if err != nil {
		result.addError(fmt.Sprintf("Failed to list local collections: %v", err))
		return
	}

	for i := range locals {
		local := &locals[i]
		if local.RommID != nil || !local.IsUserCreated || local.IsFavorites() {
			continue
		}

		created, err := client.CreateCollection(ctx, romm.CollectionCreate{
			Name:        local.Name,
			Description: local.Description,
		})
		if err != nil {
			result.addError(fmt.Sprintf("Failed to create remote collection %q: %v", local.Name, err))
			continue
		}
		local.RommID = &created.ID
		if err := c.store.UpsertCollection(local); err != nil {
			result.addError(fmt.Sprintf("Failed to link collection %q: %v", local.Name, err))
			continue
		}

		rommIDs, err := c.memberRommIDs(local.ID)
		if err != nil {
			result.addError(fmt.Sprintf("Failed to read membership of %q: %v", local.Name, err))
			continue
		}
		if err := client.UpdateCollectionRoms(ctx, created.ID, rommIDs); err != nil {
			result.addError(fmt.Sprintf("Failed to push membership of %q: %v", local.Name, err))
		}
	}
}

// pullCollection upserts one remote collection locally and applies
// membership deltas instead of clearing and rebuilding.
func (c *CollectionSync) pullCollection(remote *romm.Collection, result *Result) {
	local, err := c.store.GetCollectionByRommID(remote.ID)
	if errors.Is(err, store.ErrNotFound) {
		local = &models.Collection{RommID: &remote.ID, IsUserCreated: false}
	} else if err != nil {
		result.addError(fmt.Sprintf("Failed to look up collection %q: %v", remote.Name, err))
		return
	}

	local.Name = remote.Name
	local.Description = remote.Description
	local.UpdatedAt = remote.UpdatedAt
	if err := c.store.UpsertCollection(local); err != nil {
		result.addError(fmt.Sprintf("Failed to store collection %q: %v", remote.Name, err))
		return
	}

	wantGameIDs := make(map[int64]bool, len(remote.RomIDs))
	for _, rommID := range remote.RomIDs {
		game, err := c.store.GetGameByRommID(rommID)
		if err != nil {
			// Membership of a ROM we never admitted locally is ignored.
			continue
		}
		wantGameIDs[game.ID] = true
	}

	haveGameIDs, err := c.store.ListCollectionGameIDs(local.ID)
	if err != nil {
		result.addError(fmt.Sprintf("Failed to read membership of %q: %v", remote.Name, err))
		return
	}

	have := make(map[int64]bool, len(haveGameIDs))
	for _, id := range haveGameIDs {
		have[id] = true
		if !wantGameIDs[id] {
			if err := c.store.RemoveCollectionGame(local.ID, id); err != nil {
				result.addError(fmt.Sprintf("Failed to remove member %d from %q: %v", id, remote.Name, err))
			}
		}
	}
	for id := range wantGameIDs {
		if !have[id] {
			if err := c.store.AddCollectionGame(local.ID, id); err != nil {
				result.addError(fmt.Sprintf("Failed to add member %d to %q: %v", id, remote.Name, err))
			}
		}
	}
}

// deleteUnlinkedCollections drops local collections whose remote
// counterpart disappeared.
func (c *CollectionSync) deleteUnlinkedCollections(remoteIDs map[int64]bool, result *Result) {
	locals, err := c.store.ListCollections()
	if err != nil {
		result.addError(fmt.Sprintf("Failed to list local collections: %v", err))
		return
	}
	for _, local := range locals {
		if local.RommID == nil || remoteIDs[*local.RommID] {
			continue
		}
		if err := c.store.DeleteCollection(local.ID); err != nil {
			result.addError(fmt.Sprintf("Failed to delete collection %q: %v", local.Name, err))
		}
	}
}

// memberRommIDs maps a collection's local membership onto remote ROM ids,
// skipping locally-only games.
func (c *CollectionSync) memberRommIDs(collectionID int64) ([]int64, error) {
	gameIDs, err := c.store.ListCollectionGameIDs(collectionID)
	if err != nil {
		return nil, err
	}
	rommIDs := make([]int64, 0, len(gameIDs))
	for _, id := range gameIDs {
		game, err := c.store.GetGame(id)
		if err != nil {
			continue
		}
		if game.RommID != nil {
			rommIDs = append(rommIDs, *game.RommID)
		}
	}
	return rommIDs, nil
}
