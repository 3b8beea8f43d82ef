// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

/*
handlers.go - Admin API Handlers

The admin API is a localhost control surface for the daemon: trigger sync
passes, read progress and connection state, and manage the remote
connection. Sync triggers run asynchronously; the handler returns 202 with
a correlation id and the reconciler's own mutex rejects overlapping passes.
*/
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/halcyonforge/romshelf/internal/logging"
	"github.com/halcyonforge/romshelf/internal/models"
	rommclient "github.com/halcyonforge/romshelf/internal/romm"
	"github.com/halcyonforge/romshelf/internal/store"
	syncengine "github.com/halcyonforge/romshelf/internal/sync"
)

// SyncEngine is the reconciler surface the API depends on.
type SyncEngine interface {
	SyncLibrary(ctx context.Context) *syncengine.Result
	SyncPlatform(ctx context.Context, platformID int64) *syncengine.Result
	SyncPlatformsOnly(ctx context.Context) *syncengine.Result
	Progress() models.SyncProgress
}

// CollectionEngine is the collection sync surface the API depends on.
type CollectionEngine interface {
	SyncFavorites(ctx context.Context) error
	SyncCollections(ctx context.Context) *syncengine.Result
}

// Connector is the connection manager surface the API depends on.
type Connector interface {
	Status() rommclient.ConnectionStatus
	Connect(ctx context.Context, input, username, password, token string) error
	Disconnect() error
}

// Handler holds the admin API dependencies.
type Handler struct {
	store       *store.Store
	engine      SyncEngine
	collections CollectionEngine
	conn        Connector
}

// NewHandler creates the admin API handler set.
func NewHandler(st *store.Store, engine SyncEngine, collections CollectionEngine, conn Connector) *Handler {
	return &Handler{
		store:       st,
		engine:      engine,
		collections: collections,
		conn:        conn,
	}
}

// triggerResponse is the body returned for accepted async sync triggers.
type triggerResponse struct {
	Accepted      bool   `json:"accepted"`
	CorrelationID string `json:"correlation_id"`
}

// errorResponse is the body returned for failed requests.
type errorResponse struct {
	Error string `json:"error"`
}

// statusResponse is the body for GET /api/v1/status.
type statusResponse struct {
	Connection rommclient.ConnectionStatus `json:"connection"`
	Progress   models.SyncProgress         `json:"progress"`
	LastSync   *time.Time                  `json:"last_sync,omitempty"`
	Platforms  int                         `json:"platforms"`
	Games      int                         `json:"games"`
}

// connectRequest is the body for POST /api/v1/connect.
type connectRequest struct {
	URL      string `json:"url"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

// Healthz reports process liveness.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// TriggerSync starts a full-library pass in the background.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	h.runAsync(w, r, "library", func(ctx context.Context) *syncengine.Result {
		return h.engine.SyncLibrary(ctx)
	})
}

// TriggerPlatformSync starts a single-platform pass in the background.
func (h *Handler) TriggerPlatformSync(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid platform id"})
		return
	}
	h.runAsync(w, r, "platform", func(ctx context.Context) *syncengine.Result {
		return h.engine.SyncPlatform(ctx, id)
	})
}

// TriggerPlatformsSync refreshes platform metadata without paging ROMs.
func (h *Handler) TriggerPlatformsSync(w http.ResponseWriter, r *http.Request) {
	h.runAsync(w, r, "platforms", func(ctx context.Context) *syncengine.Result {
		return h.engine.SyncPlatformsOnly(ctx)
	})
}

// TriggerCollectionsSync runs named-collection reconciliation in the
// background.
func (h *Handler) TriggerCollectionsSync(w http.ResponseWriter, r *http.Request) {
	h.runAsync(w, r, "collections", func(ctx context.Context) *syncengine.Result {
		return h.collections.SyncCollections(ctx)
	})
}

// TriggerFavoritesSync runs a favorites sync synchronously; it is cheap
// compared to a library pass.
func (h *Handler) TriggerFavoritesSync(w http.ResponseWriter, r *http.Request) {
	if err := h.collections.SyncFavorites(r.Context()); err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"synced": true})
}

// runAsync launches one sync operation on a detached context and responds
// 202. Overlap control lives in the reconciler, not here.
func (h *Handler) runAsync(w http.ResponseWriter, r *http.Request, kind string, run func(context.Context) *syncengine.Result) {
	correlationID := logging.CorrelationIDFromContext(r.Context())
	ctx := logging.ContextWithCorrelationID(context.Background(), correlationID)

	go func() {
		result := run(ctx)
		logging.Info().
			Str("trigger", kind).
			Str("correlation_id", correlationID).
			Str("status", string(result.Status)).
			Int("errors", len(result.Errors)).
			Msg("Triggered sync finished")
	}()

	writeJSON(w, http.StatusAccepted, triggerResponse{Accepted: true, CorrelationID: correlationID})
}

// SyncProgress returns the live progress snapshot.
func (h *Handler) SyncProgress(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Progress())
}

// Status returns the combined daemon status.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Connection: h.conn.Status(),
		Progress:   h.engine.Progress(),
	}

	if t, err := h.store.GetLastLibrarySync(); err == nil && !t.IsZero() {
		resp.LastSync = &t
	}
	if platforms, err := h.store.ListPlatforms(); err == nil {
		resp.Platforms = len(platforms)
	}
	if games, err := h.store.ListGames(); err == nil {
		resp.Games = len(games)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Connection returns the remote connection state.
func (h *Handler) Connection(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.conn.Status())
}

// Connect establishes a remote connection from the request credentials.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "url is required"})
		return
	}

	if err := h.conn.Connect(r.Context(), req.URL, req.Username, req.Password, req.Token); err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, h.conn.Status())
}

// DisconnectHandler drops the remote connection and its persisted settings.
func (h *Handler) DisconnectHandler(w http.ResponseWriter, _ *http.Request) {
	if err := h.conn.Disconnect(); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, h.conn.Status())
}

// Platforms lists the local platform rows.
func (h *Handler) Platforms(w http.ResponseWriter, _ *http.Request) {
	platforms, err := h.store.ListPlatforms()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, platforms)
}

// platformPatch is the body for PATCH /api/v1/platforms/{id}; all fields
// optional, only present fields are applied.
type platformPatch struct {
	SyncEnabled   *bool   `json:"sync_enabled,omitempty"`
	IsVisible     *bool   `json:"is_visible,omitempty"`
	CustomRomPath *string `json:"custom_rom_path,omitempty"`
}

// PatchPlatform updates the user-owned platform toggles.
func (h *Handler) PatchPlatform(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid platform id"})
		return
	}

	var patch platformPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	platform, err := h.store.GetPlatform(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "platform not found"})
		return
	}
	if patch.SyncEnabled != nil {
		platform.SyncEnabled = *patch.SyncEnabled
	}
	if patch.IsVisible != nil {
		platform.IsVisible = *patch.IsVisible
	}
	if patch.CustomRomPath != nil {
		platform.CustomRomPath = *patch.CustomRomPath
	}
	if err := h.store.UpsertPlatform(platform); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, platform)
}

// Games lists the local game rows, optionally scoped to one platform.
func (h *Handler) Games(w http.ResponseWriter, r *http.Request) {
	var (
		games []models.Game
		err   error
	)
	if raw := r.URL.Query().Get("platform_id"); raw != "" {
		id, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid platform_id"})
			return
		}
		games, err = h.store.ListGamesByPlatform(id)
	} else {
		games, err = h.store.ListGames()
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, games)
}

// OrphanedFiles lists files the orphan sweep could not delete.
func (h *Handler) OrphanedFiles(w http.ResponseWriter, _ *http.Request) {
	files, err := h.store.ListOrphanedFiles()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if files == nil {
		files = []string{}
	}
	writeJSON(w, http.StatusOK, files)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // HTTP response write errors are not recoverable
	json.NewEncoder(w).Encode(data)
}
