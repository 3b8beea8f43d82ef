// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

// Package models defines the data structures of the local game catalog.
// These models are what the reconciler reads and writes; the wire-level
// shapes of the RomM API live in models/romm.
package models

import (
	"strings"
	"time"
)

// GameSource tracks how a catalog row came to exist.
type GameSource string

const (
	// SourceLocal marks a game known only from a local scan; it has no
	// remote counterpart and is never touched by the orphan sweep.
	SourceLocal GameSource = "local"

	// SourceRemote marks a game known only from the remote catalog
	// (metadata present, no file downloaded).
	SourceRemote GameSource = "remote"

	// SourceSynced marks a remote-known game whose file has been
	// downloaded locally.
	SourceSynced GameSource = "synced"
)

// Platform is a console/system the remote catalog groups ROMs under.
//
// The remote numeric id doubles as the local primary key. Remote wins for
// descriptive fields on every sync; the user-owned toggles (IsVisible,
// SyncEnabled, CustomRomPath, LastScanned) are preserved across upserts.
type Platform struct {
	ID            int64      `json:"id"`
	Slug          string     `json:"slug"`
	FsSlug        string     `json:"fs_slug"`
	Name          string     `json:"name"`
	RomExtensions []string   `json:"rom_extensions,omitempty"`
	GameCount     int        `json:"game_count"`
	IsVisible     bool       `json:"is_visible"`
	LogoPath      string     `json:"logo_path,omitempty"`
	SortOrder     int        `json:"sort_order"`
	SyncEnabled   bool       `json:"sync_enabled"`
	CustomRomPath string     `json:"custom_rom_path,omitempty"`
	LastScanned   *time.Time `json:"last_scanned,omitempty"`
}

// Game is one row of the local catalog.
//
// Identity is the local auto-increment ID. RommID links the row to the
// remote catalog (nil = locally-only). IgdbID is kept for migration
// matching when the remote catalog re-identifies a title under a new
// ROM id. Invariant: at most one row per RommID once a sync pass has
// completed.
type Game struct {
	ID         int64  `json:"id"`
	PlatformID int64  `json:"platform_id"`
	RommID     *int64 `json:"romm_id,omitempty"`
	IgdbID     *int64 `json:"igdb_id,omitempty"`
	RaID       *int64 `json:"ra_id,omitempty"`

	Title     string `json:"title"`
	SortTitle string `json:"sort_title"`

	// File linkage. LocalPath presence implies the ROM is downloaded.
	LocalPath     string `json:"local_path,omitempty"`
	RommFileName  string `json:"romm_file_name,omitempty"`
	FileSizeBytes int64  `json:"file_size_bytes"`

	// Descriptive metadata, remote-owned.
	Genre       string   `json:"genre,omitempty"`
	Developer   string   `json:"developer,omitempty"`
	ReleaseYear int      `json:"release_year,omitempty"`
	Description string   `json:"description,omitempty"`
	Regions     []string `json:"regions,omitempty"`
	Languages   []string `json:"languages,omitempty"`
	GameModes   []string `json:"game_modes,omitempty"`
	Franchises  []string `json:"franchises,omitempty"`
	Rating      float64  `json:"rating,omitempty"`

	CoverPath      string `json:"cover_path,omitempty"`
	BackgroundPath string `json:"background_path,omitempty"`

	// User-owned fields, merged (never overwritten) during migration
	// and multi-disc consolidation.
	UserRating      int        `json:"user_rating"`
	UserDifficulty  int        `json:"user_difficulty"`
	Completion      int        `json:"completion"`
	Status          string     `json:"status,omitempty"`
	Backlogged      bool       `json:"backlogged"`
	NowPlaying      bool       `json:"now_playing"`
	IsFavorite      bool       `json:"is_favorite"`
	IsHidden        bool       `json:"is_hidden"`
	PlayCount       int        `json:"play_count"`
	PlayTimeMinutes int        `json:"play_time_minutes"`
	LastPlayed      *time.Time `json:"last_played,omitempty"`
	AddedAt         time.Time  `json:"added_at"`

	IsMultiDisc      bool       `json:"is_multi_disc"`
	AchievementCount int        `json:"achievement_count"`
	Source           GameSource `json:"source"`
}

// IsDownloaded reports whether the game's ROM file is present locally.
func (g *Game) IsDownloaded() bool {
	return g.LocalPath != ""
}

// GameDisc is one disc of a multi-disc title, child of a consolidated Game.
// Identity is (GameID, RommID).
type GameDisc struct {
	GameID     int64  `json:"game_id"`
	RommID     int64  `json:"romm_id"`
	DiscNumber int    `json:"disc_number"`
	FileName   string `json:"file_name"`
	LocalPath  string `json:"local_path,omitempty"`
	FileSize   int64  `json:"file_size"`
}

// GameFile is a non-primary downloadable attached to a game (update or DLC),
// keyed by the remote file id.
type GameFile struct {
	GameID     int64  `json:"game_id"`
	RommFileID int64  `json:"romm_file_id"`
	FileName   string `json:"file_name"`
	Category   string `json:"category"`
	SizeBytes  int64  `json:"size_bytes"`
}

// FavoritesCollectionName identifies the singleton favorites collection.
// Favorites are matched by this name plus the remote is_favorite flag, not
// by membership semantics like other collections.
const FavoritesCollectionName = "Favorites"

// Collection is a named set of games. RommID nil means local-only, not yet
// pushed to the remote server.
type Collection struct {
	ID            int64     `json:"id"`
	RommID        *int64    `json:"romm_id,omitempty"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	IsUserCreated bool      `json:"is_user_created"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsFavorites reports whether this is the singleton favorites collection.
func (c *Collection) IsFavorites() bool {
	return strings.EqualFold(c.Name, FavoritesCollectionName)
}

// EarnedAchievement is one unlocked achievement from the achievements
// provider, cached per app session.
type EarnedAchievement struct {
	ID                 int64      `json:"id"`
	UnlockDate         *time.Time `json:"unlock_date,omitempty"`
	HardcoreUnlockDate *time.Time `json:"hardcore_unlock_date,omitempty"`
}

// SyncProgress is the observable progress of an in-flight sync pass.
// Readers must tolerate coalesced updates; it is a value snapshot, not a
// queue.
type SyncProgress struct {
	IsSyncing       bool   `json:"is_syncing"`
	CurrentPlatform string `json:"current_platform,omitempty"`
	PlatformsTotal  int    `json:"platforms_total"`
	PlatformsDone   int    `json:"platforms_done"`
	GamesTotal      int    `json:"games_total"`
	GamesDone       int    `json:"games_done"`
}

// leadingArticles are stripped when deriving a sort title.
var leadingArticles = []string{"the ", "a ", "an "}

// SortTitle derives the article-stripped, lowercased title used for
// alphabetic ordering and duplicate matching.
func SortTitle(title string) string {
	lower := strings.ToLower(strings.TrimSpace(title))
	for _, article := range leadingArticles {
		if strings.HasPrefix(lower, article) {
			return strings.TrimSpace(lower[len(article):])
		}
	}
	return lower
}
