// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

// Package romm defines the wire-level JSON shapes of the RomM REST API.
// Field names follow the server's snake_case payloads; optional fields are
// pointers so that null can be distinguished from the zero value.
package romm

import "time"

// Heartbeat is the response from GET /api/heartbeat.
type Heartbeat struct {
	System   HeartbeatSystem   `json:"SYSTEM"`
	Metadata HeartbeatMetadata `json:"METADATA_SOURCES"`
}

// HeartbeatSystem carries the server version used for feature gating.
type HeartbeatSystem struct {
	Version   string `json:"VERSION"`
	ShowSetup bool   `json:"SHOW_SETUP_WIZARD"`
}

// HeartbeatMetadata reports which metadata providers the server has enabled.
type HeartbeatMetadata struct {
	IgdbEnabled bool `json:"IGDB_API_ENABLED"`
	MobyEnabled bool `json:"MOBY_API_ENABLED"`
	RaEnabled   bool `json:"RA_API_ENABLED"`
	SgdbEnabled bool `json:"STEAMGRIDDB_API_ENABLED"`
}

// TokenResponse is the response from POST /api/token.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires,omitempty"`
}

// User is the response from GET /api/users/me.
type User struct {
	ID            int64          `json:"id"`
	Username      string         `json:"username"`
	Role          string         `json:"role"`
	Enabled       bool           `json:"enabled"`
	AvatarPath    string         `json:"avatar_path,omitempty"`
	RaUsername    *string        `json:"ra_username,omitempty"`
	RaProgression *RaProgression `json:"ra_progression,omitempty"`
}

// RaProgression is the user's RetroAchievements progression listing.
type RaProgression struct {
	Total   int64               `json:"total"`
	Results []RaGameProgression `json:"results"`
}

// RaGameProgression is per-game earned-achievement state.
type RaGameProgression struct {
	RomRaID            int64           `json:"rom_ra_id"`
	MaxPossible        int             `json:"max_possible,omitempty"`
	EarnedAchievements []RaAchievement `json:"earned_achievements"`
}

// RaAchievement is a single earned achievement record.
type RaAchievement struct {
	ID           int64   `json:"id"`
	BadgeID      string  `json:"badge_id,omitempty"`
	Date         *string `json:"date,omitempty"`
	DateHardcore *string `json:"date_hardcore,omitempty"`
}

// Platform is a platform entry from GET /api/platforms.
type Platform struct {
	ID                  int64          `json:"id"`
	Slug                string         `json:"slug"`
	FsSlug              string         `json:"fs_slug"`
	Name                string         `json:"name"`
	RomCount            int            `json:"rom_count"`
	LogoPath            string         `json:"logo_path,omitempty"`
	SupportedExtensions []string       `json:"supported_extensions,omitempty"`
	Firmware            []FirmwareFile `json:"firmware,omitempty"`
}

// FirmwareFile is a BIOS/firmware file attached to a platform.
type FirmwareFile struct {
	ID        int64  `json:"id"`
	FileName  string `json:"file_name"`
	FilePath  string `json:"file_path"`
	SizeBytes int64  `json:"file_size_bytes"`
	Md5Hash   string `json:"md5_hash,omitempty"`
}

// RomPage is the paged response from GET /api/roms.
type RomPage struct {
	Items  []Rom `json:"items"`
	Total  int   `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// Rom is a single catalog entry from the remote library.
//
// Reconciliation-relevant fields: external metadata ids (IgdbID, MobyID,
// RaID) feed dedup and migration matching; Files, Siblings and Multi drive
// multi-disc handling; Regions/Tags/Revision feed the sync filter; RomUser
// seeds user-owned Game fields on first sync.
type Rom struct {
	ID           int64  `json:"id"`
	PlatformID   int64  `json:"platform_id"`
	PlatformSlug string `json:"platform_slug"`

	Name        string `json:"name"`
	FsName      string `json:"fs_name"`
	FsNameNoExt string `json:"fs_name_no_ext"`
	FsPath      string `json:"full_path,omitempty"`
	FsSizeBytes int64  `json:"fs_size_bytes"`

	IgdbID *int64 `json:"igdb_id,omitempty"`
	MobyID *int64 `json:"moby_id,omitempty"`
	RaID   *int64 `json:"ra_id,omitempty"`

	Multi    bool         `json:"multi"`
	Files    []RomFile    `json:"files,omitempty"`
	Siblings []RomSibling `json:"siblings,omitempty"`

	Regions   []string `json:"regions,omitempty"`
	Languages []string `json:"languages,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Revision  string   `json:"revision,omitempty"`

	Summary        string         `json:"summary,omitempty"`
	PathCoverLarge string         `json:"path_cover_large,omitempty"`
	UrlCover       string         `json:"url_cover,omitempty"`
	Metadatum      *RomMetadata   `json:"metadatum,omitempty"`
	RaMetadata     *RomRaMetadata `json:"ra_metadata,omitempty"`
	RomUser        *RomUserProps  `json:"rom_user,omitempty"`
}

// RomFile is one file inside a ROM entry (primary content, update, or DLC).
type RomFile struct {
	ID        int64  `json:"id"`
	RomID     int64  `json:"rom_id"`
	FileName  string `json:"file_name"`
	FilePath  string `json:"file_path"`
	SizeBytes int64  `json:"file_size_bytes"`
	Category  string `json:"category,omitempty"`
}

// RomSibling links a ROM to another entry of the same title (disc siblings).
type RomSibling struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	FsNameNoExt string `json:"fs_name_no_ext"`
}

// RomMetadata is the nested metadata object on a ROM entry.
type RomMetadata struct {
	Genres           []string `json:"genres,omitempty"`
	Companies        []string `json:"companies,omitempty"`
	Franchises       []string `json:"franchises,omitempty"`
	GameModes        []string `json:"game_modes,omitempty"`
	FirstReleaseDate *int64   `json:"first_release_date,omitempty"`
	AverageRating    *float64 `json:"average_rating,omitempty"`
}

// RomRaMetadata is the RetroAchievements metadata attached to a ROM entry.
// The achievement list's length feeds the catalog's achievement count.
type RomRaMetadata struct {
	Achievements []RomAchievement `json:"achievements"`
}

// RomAchievement is one achievement defined for a ROM.
type RomAchievement struct {
	RaID        int64  `json:"ra_id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	BadgeID     string `json:"badge_id,omitempty"`
}

// RomUserProps is the per-user sub-object on a ROM entry, used to seed the
// corresponding Game fields on first sync.
type RomUserProps struct {
	ID         int64      `json:"id"`
	Rating     int        `json:"rating"`
	Difficulty int        `json:"difficulty"`
	Completion int        `json:"completion"`
	Status     *string    `json:"status,omitempty"`
	Backlogged bool       `json:"backlogged"`
	NowPlaying bool       `json:"now_playing"`
	Hidden     bool       `json:"hidden"`
	LastPlayed *time.Time `json:"last_played,omitempty"`
}

// RomUserUpdate is the payload for PUT /api/roms/{id}/props.
type RomUserUpdate struct {
	Rating     *int    `json:"rating,omitempty"`
	Difficulty *int    `json:"difficulty,omitempty"`
	Completion *int    `json:"completion,omitempty"`
	Status     *string `json:"status,omitempty"`
	Backlogged *bool   `json:"backlogged,omitempty"`
	NowPlaying *bool   `json:"now_playing,omitempty"`
}

// Collection is a collection entry from GET /api/collections.
type Collection struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsFavorite  bool      `json:"is_favorite"`
	IsPublic    bool      `json:"is_public"`
	RomIDs      []int64   `json:"rom_ids"`
	RomCount    int       `json:"rom_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CollectionCreate is the payload for POST /api/collections.
type CollectionCreate struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsFavorite  bool   `json:"is_favorite,omitempty"`
}

// Device is the payload and response shape for device registration.
type Device struct {
	ID            string     `json:"id,omitempty"`
	Name          string     `json:"name"`
	Platform      string     `json:"platform"`
	ClientVersion string     `json:"client_version"`
	LastSeen      *time.Time `json:"last_seen,omitempty"`
}
