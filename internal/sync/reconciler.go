// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

/*
reconciler.go - Catalog Reconciler Orchestration

The reconciler drives platform sync and paged ROM sync against the remote
catalog, enforcing the core invariants of the local library:

  - At most one Game row per remote ROM id after a pass completes.
  - Multi-disc titles collapse into one consolidated row with GameDisc
    children (multidisc.go).
  - Rows whose remote id disappeared are orphan-swept, except on platforms
    the user froze with syncEnabled=false (cleanup.go).
  - User-owned fields survive remote re-identification via migration-set
    merging (merge.go).

Concurrency: SyncLibrary and SyncPlatform share one non-blocking mutex; a
second caller gets an immediate "already in progress" result instead of
queuing. A started pass runs to completion with cancellation suppressed,
since tearing it down mid-reconciliation would leave dedup and
consolidation state half-applied.
*/
package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/halcyonforge/romshelf/internal/config"
	"github.com/halcyonforge/romshelf/internal/logging"
	"github.com/halcyonforge/romshelf/internal/metrics"
	"github.com/halcyonforge/romshelf/internal/models"
	"github.com/halcyonforge/romshelf/internal/models/romm"
	rommclient "github.com/halcyonforge/romshelf/internal/romm"
	"github.com/halcyonforge/romshelf/internal/store"
)

// ConnectionProvider supplies the live API handle and the negotiated server
// version. Implemented by romm.ConnectionManager.
type ConnectionProvider interface {
	Client() rommclient.ClientInterface
	ServerVersion() string
}

// ArtworkFetcher queues cover, background and platform logo caching.
// Fetching is delegated; the reconciler only decides when a refresh is
// warranted.
type ArtworkFetcher interface {
	QueueCover(gameID int64, coverURL string)
	QueueLogo(platformID int64, logoPath string)
}

// FirmwareSyncer refreshes a platform's firmware list as a sync side
// effect. Delegated; failures never affect the pass.
type FirmwareSyncer interface {
	SyncFirmware(ctx context.Context, platform *models.Platform, firmware []romm.FirmwareFile)
}

// Reconciler reconciles the local catalog against the remote library.
type Reconciler struct {
	store  *store.Store
	conn   ConnectionProvider
	filter *Filter
	cfg    config.SyncConfig

	progress *progressTracker

	// syncMu serializes full and per-platform passes. Acquired with
	// TryLock so concurrent triggers fail fast.
	syncMu sync.Mutex

	// Optional delegated collaborators, nil-safe.
	artwork    ArtworkFetcher
	firmware   FirmwareSyncer
	onComplete func(*Result)
}

// NewReconciler creates the catalog reconciler.
func NewReconciler(st *store.Store, conn ConnectionProvider, filter *Filter, cfg config.SyncConfig) *Reconciler {
	return &Reconciler{
		store:    st,
		conn:     conn,
		filter:   filter,
		cfg:      cfg,
		progress: newProgressTracker(nil),
	}
}

// SetProgressObserver registers a callback invoked on every progress update.
func (r *Reconciler) SetProgressObserver(fn func(models.SyncProgress)) {
	r.progress.setObserver(fn)
}

// SetArtworkFetcher registers the delegated image cache.
func (r *Reconciler) SetArtworkFetcher(a ArtworkFetcher) { r.artwork = a }

// SetFirmwareSyncer registers the delegated firmware refresher.
func (r *Reconciler) SetFirmwareSyncer(f FirmwareSyncer) { r.firmware = f }

// SetOnComplete registers a post-pass hook (virtual collection rebuild).
func (r *Reconciler) SetOnComplete(fn func(*Result)) { r.onComplete = fn }

// Progress returns the current progress snapshot.
func (r *Reconciler) Progress() models.SyncProgress {
	return r.progress.Snapshot()
}

// passState is the explicit accumulator threaded through one pass. Each
// per-platform step records into it; the post-pass phases (consolidation,
// cleanup, orphan sweep) consume it.
type passState struct {
	// seen holds every remote ROM id observed this pass, including disc
	// siblings that were folded into a group rather than synced standalone.
	seen map[int64]bool
	// redundantDiscs are sibling ids of folder-packaged multi-disc titles;
	// they are skipped outright (folder representation wins).
	redundantDiscs map[int64]bool
	// groups are the sibling-based multi-disc groups recorded for
	// post-pass consolidation.
	groups []multiDiscGroup
}

func newPassState() *passState {
	return &passState{
		seen:           make(map[int64]bool),
		redundantDiscs: make(map[int64]bool),
	}
}

// dedupEntry tracks the winner for one dedup key within a platform pass.
type dedupEntry struct {
	rommID int64
	hasRA  bool
}

// SyncLibrary runs a full-library pass. A concurrent call returns
// immediately with an "already in progress" error result.
func (r *Reconciler) SyncLibrary(ctx context.Context) *Result {
	if !r.syncMu.TryLock() {
		metrics.SyncRejected.Inc()
		return errorResult("Sync already in progress")
	}
	defer r.syncMu.Unlock()

	client := r.clientOrNil()
	if client == nil {
		return errorResult("Not connected to RomM server")
	}

	// The pass must run to completion once started; callers cannot cancel
	// an in-flight reconciliation.
	ctx = context.WithoutCancel(ctx)

	start := time.Now()
	result := &Result{}
	defer r.progress.reset()

	platforms, err := r.syncPlatforms(ctx, client, result)
	if err != nil {
		result.addError(fmt.Sprintf("Platform sync failed: %v", err))
		metrics.SyncErrors.WithLabelValues(categorize(err)).Inc()
		return result.finalize()
	}

	enabled := enabledPlatforms(platforms)
	r.progress.begin(len(enabled))

	state := newPassState()
	for i := range enabled {
		r.syncPlatformRoms(ctx, client, &enabled[i], state, result)
		r.progress.platformDone()
	}

	remoteIDs := make(map[int64]bool, len(platforms))
	for _, p := range platforms {
		remoteIDs[p.ID] = true
	}

	r.consolidateMultiDiscGroups(ctx, client, state, result)
	r.runCleanup(remoteIDs, result)
	r.recountPlatforms(result)
	if r.cfg.DeleteOrphans {
		r.sweepOrphans(state, result)
	}

	if err := r.store.PutLastLibrarySync(time.Now().UTC()); err != nil {
		result.addError(fmt.Sprintf("Failed to record sync timestamp: %v", err))
	}

	metrics.RecordSyncPass(time.Since(start), result.GamesSynced, len(result.Errors))
	logging.Info().
		Int("platforms", result.PlatformsSynced).
		Int("games", result.GamesSynced).
		Int("deleted", result.GamesDeleted).
		Int("errors", len(result.Errors)).
		Dur("duration", time.Since(start)).
		Msg("Library sync completed")

	result.finalize()
	if r.onComplete != nil {
		r.onComplete(result)
	}
	return result
}

// SyncPlatform runs the full pass scoped to a single platform, under the
// same mutex as SyncLibrary.
func (r *Reconciler) SyncPlatform(ctx context.Context, platformID int64) *Result {
	if !r.syncMu.TryLock() {
		metrics.SyncRejected.Inc()
		return errorResult("Sync already in progress")
	}
	defer r.syncMu.Unlock()

	client := r.clientOrNil()
	if client == nil {
		return errorResult("Not connected to RomM server")
	}
	ctx = context.WithoutCancel(ctx)

	result := &Result{}
	defer r.progress.reset()

	remote, err := client.GetPlatform(ctx, platformID)
	if err != nil {
		result.addError(fmt.Sprintf("Failed to fetch platform %d: %v", platformID, err))
		metrics.SyncErrors.WithLabelValues(categorize(err)).Inc()
		return result.finalize()
	}
	platform, err := r.upsertPlatform(ctx, remote)
	if err != nil {
		result.addError(fmt.Sprintf("Failed to store platform %d: %v", platformID, err))
		return result.finalize()
	}
	result.PlatformsSynced++

	r.progress.begin(1)
	state := newPassState()
	r.syncPlatformRoms(ctx, client, platform, state, result)
	r.progress.platformDone()

	r.consolidateMultiDiscGroups(ctx, client, state, result)
	r.runCleanup(nil, result)
	r.recountPlatforms(result)
	if r.cfg.DeleteOrphans {
		r.sweepOrphansForPlatform(platform.ID, state, result)
	}

	if err := r.store.PutLastLibrarySync(time.Now().UTC()); err != nil {
		result.addError(fmt.Sprintf("Failed to record sync timestamp: %v", err))
	}

	result.finalize()
	if r.onComplete != nil {
		r.onComplete(result)
	}
	return result
}

// SyncPlatformsOnly refreshes platform metadata without paging any ROMs.
func (r *Reconciler) SyncPlatformsOnly(ctx context.Context) *Result {
	if !r.syncMu.TryLock() {
		metrics.SyncRejected.Inc()
		return errorResult("Sync already in progress")
	}
	defer r.syncMu.Unlock()

	client := r.clientOrNil()
	if client == nil {
		return errorResult("Not connected to RomM server")
	}

	result := &Result{}
	if _, err := r.syncPlatforms(context.WithoutCancel(ctx), client, result); err != nil {
		result.addError(fmt.Sprintf("Platform sync failed: %v", err))
	}
	return result.finalize()
}

func (r *Reconciler) clientOrNil() rommclient.ClientInterface {
	if r.conn == nil {
		return nil
	}
	return r.conn.Client()
}

// syncPlatforms fetches the platform list and upserts every row, returning
// the stored platforms.
func (r *Reconciler) syncPlatforms(ctx context.Context, client rommclient.ClientInterface, result *Result) ([]models.Platform, error) {
	remotes, err := client.GetPlatforms(ctx)
	if err != nil {
		return nil, err
	}

	platforms := make([]models.Platform, 0, len(remotes))
	for i := range remotes {
		p, err := r.upsertPlatform(ctx, &remotes[i])
		if err != nil {
			result.addError(fmt.Sprintf("Failed to store platform %q: %v", remotes[i].Name, err))
			continue
		}
		platforms = append(platforms, *p)
		result.PlatformsSynced++
		metrics.SyncPlatformsProcessed.Inc()
	}
	return platforms, nil
}

// upsertPlatform merges a remote platform into the local row. Remote wins
// for descriptive fields; the user-owned toggles are preserved from the
// existing row, defaulted on first sight.
func (r *Reconciler) upsertPlatform(ctx context.Context, remote *romm.Platform) (*models.Platform, error) {
	p := &models.Platform{
		ID:            remote.ID,
		Slug:          remote.Slug,
		FsSlug:        remote.FsSlug,
		Name:          remote.Name,
		RomExtensions: remote.SupportedExtensions,
		GameCount:     remote.RomCount,
		LogoPath:      remote.LogoPath,
		IsVisible:     true,
		SyncEnabled:   true,
	}

	logoChanged := true
	existing, err := r.store.GetPlatform(remote.ID)
	if err == nil {
		p.IsVisible = existing.IsVisible
		p.SyncEnabled = existing.SyncEnabled
		p.CustomRomPath = existing.CustomRomPath
		p.LastScanned = existing.LastScanned
		p.SortOrder = existing.SortOrder
		logoChanged = existing.LogoPath != remote.LogoPath
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if err := r.store.UpsertPlatform(p); err != nil {
		return nil, err
	}

	if r.artwork != nil && p.LogoPath != "" && logoChanged {
		r.artwork.QueueLogo(p.ID, p.LogoPath)
	}

	if r.firmware != nil && len(remote.Firmware) > 0 {
		r.firmware.SyncFirmware(ctx, p, remote.Firmware)
	}
	return p, nil
}

func enabledPlatforms(platforms []models.Platform) []models.Platform {
	enabled := make([]models.Platform, 0, len(platforms))
	for _, p := range platforms {
		if p.SyncEnabled {
			enabled = append(enabled, p)
		}
	}
	return enabled
}

// syncPlatformRoms pages through one platform's ROM listing in offset
// order, admitting entries through the filter and upserting them. A page
// failure aborts this platform only; the error lands in the result and
// sibling platforms keep going.
func (r *Reconciler) syncPlatformRoms(ctx context.Context, client rommclient.ClientInterface, platform *models.Platform, state *passState, result *Result) {
	usePlural := rommclient.SupportsPluralPlatformParam(r.conn.ServerVersion())
	dedupSeen := make(map[string]dedupEntry)

	offset := 0
	total := -1
	for {
		page, err := client.GetRoms(ctx, rommclient.RomQuery{
			PlatformID:          platform.ID,
			PluralPlatformParam: usePlural,
			Limit:               r.cfg.PageSize,
			Offset:              offset,
		})
		if err != nil {
			result.addError(platformError(platform.Name, err))
			metrics.SyncErrors.WithLabelValues(categorize(err)).Inc()
			return
		}
		if total < 0 {
			total = page.Total
			r.progress.platform(platform.Name, total)
		}
		metrics.SyncPageSize.Observe(float64(len(page.Items)))

		for i := range page.Items {
			r.processRom(ctx, client, platform, &page.Items[i], state, dedupSeen, result)
		}

		offset += len(page.Items)
		if len(page.Items) < r.cfg.PageSize || offset >= total {
			break
		}
	}
}

// processRom applies the admission filter, multi-disc bookkeeping and
// dedup before handing the entry to syncRom.
func (r *Reconciler) processRom(ctx context.Context, client rommclient.ClientInterface, platform *models.Platform, rom *romm.Rom, state *passState, dedupSeen map[string]dedupEntry, result *Result) {
	if ok, reason := r.filter.ShouldSync(rom, platform.RomExtensions); !ok {
		logging.Debug().Int64("rom_id", rom.ID).Str("name", rom.Name).Str("reason", string(reason)).Msg("ROM rejected by filter")
		result.GamesSkipped++
		return
	}

	if state.redundantDiscs[rom.ID] {
		result.GamesSkipped++
		return
	}

	// Folder-packaged multi-disc wins over loose disc entries: mark every
	// disc-named sibling redundant and purge any rows already synced for
	// them.
	if rom.Multi {
		r.suppressDiscSiblings(rom, state, result)
	}

	if key := dedupKey(rom); key != "" {
		if prev, ok := dedupSeen[key]; ok {
			if rom.RaID != nil && !prev.hasRA {
				// The incoming duplicate carries achievement linkage the
				// kept entry lacks; swap winners. The superseded row stays
				// in place so the migration merge in syncRom can carry its
				// user fields onto the new winner before removing it.
				delete(state.seen, prev.rommID)
			} else {
				result.GamesSkipped++
				return
			}
		}
		dedupSeen[key] = dedupEntry{rommID: rom.ID, hasRA: rom.RaID != nil}
	}

	if err := r.syncRom(platform, rom, state); err != nil {
		result.addError(fmt.Sprintf("Failed to sync %q: %v", rom.Name, err))
		metrics.SyncErrors.WithLabelValues(categorize(err)).Inc()
		return
	}
	state.seen[rom.ID] = true
	result.GamesSynced++
	r.progress.game()

	// Sibling-based multi-disc: record the group once, mark all ids seen
	// so siblings are not orphan-swept, and consolidate after the pass.
	if !rom.Multi && len(rom.Siblings) > 0 {
		r.recordMultiDiscGroup(platform, rom, state)
	}
}

// suppressDiscSiblings marks a folder-packaged title's individual-disc
// siblings as redundant and deletes any already-synced rows for them.
func (r *Reconciler) suppressDiscSiblings(rom *romm.Rom, state *passState, result *Result) {
	for _, sib := range rom.Siblings {
		if discNumber(sib.Name) == 0 && discNumber(sib.FsNameNoExt) == 0 {
			continue
		}
		state.redundantDiscs[sib.ID] = true

		existing, err := r.store.GetGameByRommID(sib.ID)
		if err != nil {
			continue
		}
		if err := r.store.DeleteGame(existing.ID); err != nil {
			result.addError(fmt.Sprintf("Failed to delete redundant disc row %d: %v", existing.ID, err))
			continue
		}
		result.GamesDeleted++
		metrics.SyncGamesDeleted.WithLabelValues("disc_sibling").Inc()
	}
}

// syncRom upserts one admitted ROM into the catalog, handling migration
// sets, local-path revalidation and child file rows.
func (r *Reconciler) syncRom(platform *models.Platform, rom *romm.Rom, state *passState) error {
	existing, err := r.store.GetGameByRommID(rom.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		existing = nil
	}

	// No row under this ROM id: look for rows sharing the external
	// metadata id under a different ROM id. That is a migration set - the
	// remote catalog re-identified the title, and the old rows' user
	// fields must carry over.
	var migration []models.Game
	if existing == nil && rom.IgdbID != nil {
		candidates, err := r.store.FindGamesByIgdbID(platform.ID, *rom.IgdbID)
		if err != nil {
			return err
		}
		for _, c := range candidates {
			if c.RommID == nil || *c.RommID != rom.ID {
				migration = append(migration, c)
			}
		}
	}

	game := buildGame(platform, rom)
	titleChanged := true

	if existing != nil {
		game.ID = existing.ID
		game.LocalPath = existing.LocalPath
		game.CoverPath = existing.CoverPath
		game.BackgroundPath = existing.BackgroundPath
		game.Source = existing.Source
		titleChanged = existing.Title != game.Title
		copyUserFields(&game, existing)
	} else if len(migration) > 0 {
		base := migration[0]
		game.LocalPath = base.LocalPath
		game.CoverPath = base.CoverPath
		game.BackgroundPath = base.BackgroundPath
		game.Source = base.Source
		copyUserFields(&game, &base)
		mergeUserFields(&game, migration[1:], true)
	}

	// LocalPath is revalidated every pass; a path that vanished from disk
	// is cleared rather than trusted.
	if game.LocalPath != "" {
		if _, err := os.Stat(game.LocalPath); err != nil {
			logging.Debug().Str("path", game.LocalPath).Int64("rom_id", rom.ID).Msg("Local file missing, clearing path")
			game.LocalPath = ""
			game.Source = models.SourceRemote
		}
	}
	if game.Source == "" {
		game.Source = models.SourceRemote
	}
	if game.LocalPath != "" {
		game.Source = models.SourceSynced
	}

	if err := r.store.UpsertGame(&game); err != nil {
		return err
	}

	for _, m := range migration {
		if err := r.store.DeleteGame(m.ID); err != nil {
			return fmt.Errorf("delete migrated row %d: %w", m.ID, err)
		}
	}

	// Image caching is keyed on content change, not blind refresh.
	if r.artwork != nil && rom.UrlCover != "" && (titleChanged || game.CoverPath == "") {
		r.artwork.QueueCover(game.ID, rom.UrlCover)
	}

	return r.syncGameFiles(game.ID, rom)
}

// buildGame maps a remote ROM entry onto a fresh catalog row, seeding the
// user-owned fields from the entry's per-user sub-object.
func buildGame(platform *models.Platform, rom *romm.Rom) models.Game {
	romID := rom.ID
	game := models.Game{
		PlatformID:    platform.ID,
		RommID:        &romID,
		IgdbID:        rom.IgdbID,
		RaID:          rom.RaID,
		Title:         rom.Name,
		SortTitle:     models.SortTitle(rom.Name),
		RommFileName:  rom.FsName,
		FileSizeBytes: rom.FsSizeBytes,
		Description:   rom.Summary,
		Regions:       rom.Regions,
		Languages:     rom.Languages,
		Source:        models.SourceRemote,
		AddedAt:       time.Now().UTC(),
	}
	if game.Title == "" {
		game.Title = rom.FsNameNoExt
		game.SortTitle = models.SortTitle(game.Title)
	}

	if md := rom.Metadatum; md != nil {
		if len(md.Genres) > 0 {
			game.Genre = md.Genres[0]
		}
		if len(md.Companies) > 0 {
			game.Developer = md.Companies[0]
		}
		game.Franchises = md.Franchises
		game.GameModes = md.GameModes
		if md.FirstReleaseDate != nil {
			game.ReleaseYear = time.Unix(*md.FirstReleaseDate, 0).UTC().Year()
		}
		if md.AverageRating != nil {
			game.Rating = *md.AverageRating
		}
	}

	if ra := rom.RaMetadata; ra != nil {
		game.AchievementCount = len(ra.Achievements)
	}

	if u := rom.RomUser; u != nil {
		game.UserRating = u.Rating
		game.UserDifficulty = u.Difficulty
		game.Completion = u.Completion
		if u.Status != nil {
			game.Status = *u.Status
		}
		game.Backlogged = u.Backlogged
		game.NowPlaying = u.NowPlaying
		game.IsHidden = u.Hidden
		game.LastPlayed = u.LastPlayed
	}
	return game
}

// copyUserFields carries the user-owned fields of src onto dst, preserving
// them across remote-driven upserts.
func copyUserFields(dst *models.Game, src *models.Game) {
	dst.UserRating = src.UserRating
	dst.UserDifficulty = src.UserDifficulty
	dst.Completion = src.Completion
	dst.Status = src.Status
	dst.Backlogged = src.Backlogged
	dst.NowPlaying = src.NowPlaying
	dst.IsFavorite = src.IsFavorite
	dst.IsHidden = src.IsHidden
	dst.PlayCount = src.PlayCount
	dst.PlayTimeMinutes = src.PlayTimeMinutes
	dst.LastPlayed = src.LastPlayed
	dst.AddedAt = src.AddedAt
	dst.IsMultiDisc = src.IsMultiDisc
	if src.AchievementCount > dst.AchievementCount {
		dst.AchievementCount = src.AchievementCount
	}
}

// syncGameFiles replaces the game's child file rows with the remote entry's
// update/DLC files.
func (r *Reconciler) syncGameFiles(gameID int64, rom *romm.Rom) error {
	var files []models.GameFile
	for _, f := range rom.Files {
		if f.Category != "update" && f.Category != "dlc" {
			continue
		}
		files = append(files, models.GameFile{
			GameID:     gameID,
			RommFileID: f.ID,
			FileName:   f.FileName,
			Category:   f.Category,
			SizeBytes:  f.SizeBytes,
		})
	}
	return r.store.ReplaceGameFiles(gameID, files)
}

func platformError(name string, err error) string {
	if rommclient.IsAuthError(err) {
		return fmt.Sprintf("Platform %q: authorization failed (token may be invalid or missing permissions)", name)
	}
	return fmt.Sprintf("Platform %q: %v", name, err)
}

// categorize maps an error onto a metrics label.
func categorize(err error) string {
	switch {
	case rommclient.IsAuthError(err):
		return "auth"
	case rommclient.IsCircuitOpen(err):
		return "network"
	default:
		return "other"
	}
}
