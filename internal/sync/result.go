// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

package sync

// Status is the tri-state outcome of a sync operation.
type Status string

const (
	// StatusSuccess means every platform and entry was reconciled.
	StatusSuccess Status = "success"
	// StatusPartial means the pass completed but some platforms or
	// entries failed; Errors lists them.
	StatusPartial Status = "partial"
	// StatusError means the pass could not run at all (not connected,
	// or another pass holds the sync lock).
	StatusError Status = "error"
)

// Result is the report of one sync pass. A single platform failing mid-pass
// degrades the status to partial rather than aborting sibling platforms, so
// Errors can be non-empty while counters are non-zero.
type Result struct {
	Status Status `json:"status"`

	PlatformsSynced int `json:"platforms_synced"`
	GamesSynced     int `json:"games_synced"`
	GamesDeleted    int `json:"games_deleted"`
	GamesSkipped    int `json:"games_skipped"`

	// Errors are human-readable failure descriptions, surfaced verbatim.
	Errors []string `json:"errors,omitempty"`
}

// errorResult builds a hard-error result with a single message.
func errorResult(msg string) *Result {
	return &Result{Status: StatusError, Errors: []string{msg}}
}

// finalize settles the status from the accumulated errors.
func (r *Result) finalize() *Result {
	if len(r.Errors) > 0 {
		r.Status = StatusPartial
	} else {
		r.Status = StatusSuccess
	}
	return r
}

// addError appends a failure description.
func (r *Result) addError(msg string) {
	r.Errors = append(r.Errors, msg)
}
