// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

package romm

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Minimum server versions gating optional API features.
const (
	// pluralPlatformMinVersion is the first release whose ROM listing
	// takes platform_ids instead of platform_id.
	pluralPlatformMinVersion = "3.5.1"
	// deviceAPIMinVersion is the first release with the device
	// registration endpoints.
	deviceAPIMinVersion = "3.10.0"
)

// parseVersion parses a server version string, tolerating dev and rc
// suffixes like "4.0.0-beta.2" by comparing the release part only.
func parseVersion(v string) (*semver.Version, error) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if idx := strings.IndexByte(v, '-'); idx > 0 {
		v = v[:idx]
	}
	return semver.NewVersion(v)
}

// serverAtLeast reports whether the server version string meets the given
// minimum. Unparseable versions count as too old, so optional features are
// simply skipped rather than tried against an unknown server.
func serverAtLeast(version, minimum string) bool {
	v, err := parseVersion(version)
	if err != nil {
		return false
	}
	m, err := semver.NewVersion(minimum)
	if err != nil {
		return false
	}
	return !v.LessThan(m)
}

// SupportsPluralPlatformParam reports whether the ROM listing should use
// the platform_ids query parameter.
func SupportsPluralPlatformParam(version string) bool {
	return serverAtLeast(version, pluralPlatformMinVersion)
}

// SupportsDeviceAPI reports whether the server has device registration.
func SupportsDeviceAPI(version string) bool {
	return serverAtLeast(version, deviceAPIMinVersion)
}
