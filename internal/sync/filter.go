// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

package sync

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/halcyonforge/romshelf/internal/config"
	"github.com/halcyonforge/romshelf/internal/models/romm"
)

// Filter decides whether a remote catalog entry is admitted into the local
// library. It is pure and stateless: identical inputs always produce the
// same verdict, so it is safe to call concurrently.
type Filter struct {
	cfg config.FilterConfig
}

// NewFilter builds a filter from the user's admission settings.
func NewFilter(cfg config.FilterConfig) *Filter {
	return &Filter{cfg: cfg}
}

// RejectReason explains why an entry was not admitted, for logging.
type RejectReason string

const (
	RejectNone      RejectReason = ""
	RejectExtension RejectReason = "extension"
	RejectBadDump   RejectReason = "bad_dump"
	RejectRegion    RejectReason = "region"
	RejectBeta      RejectReason = "beta"
	RejectPrototype RejectReason = "prototype"
	RejectDemo      RejectReason = "demo"
	RejectHack      RejectReason = "hack"
)

var (
	// Bad-dump markers: [b], [o], [p] with optional digits. Known-bad,
	// overdump and pending-verification tags from GoodTools-style naming.
	badDumpPattern = regexp.MustCompile(`(?i)\[(b|o|p)\d*\]`)

	betaPattern      = regexp.MustCompile(`(?i)[\[(]beta\s*\d*[\])]`)
	prototypePattern = regexp.MustCompile(`(?i)[\[(](proto|prototype)\s*\d*[\])]`)
	demoPattern      = regexp.MustCompile(`(?i)[\[(](demo|sample|kiosk)\s*\d*[\])]`)

	// Hack detection overlaps deliberately: classic [h] markers with
	// optional numbering, any parenthesized phrase containing "hack", and
	// the No-Intro "(Hack)" / "[T+...]" translation-hack convention.
	hackBracketPattern = regexp.MustCompile(`(?i)\[h\d*[a-z]?\]`)
	hackParenPattern   = regexp.MustCompile(`(?i)\([^)]*hack[^)]*\)`)
	hackTransPattern   = regexp.MustCompile(`(?i)\[t[+-][^\]]*\]`)

	extensionPattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
)

// ShouldSync evaluates the admission checks in order, short-circuiting on
// the first failure. extensions is the platform's whitelist; empty means
// every extension is accepted.
func (f *Filter) ShouldSync(rom *romm.Rom, extensions []string) (bool, RejectReason) {
	if !f.extensionAllowed(rom, extensions) {
		return false, RejectExtension
	}
	if isBadDump(rom.Name) || isBadDump(rom.FsName) {
		return false, RejectBadDump
	}
	if !f.regionAllowed(rom.Regions) {
		return false, RejectRegion
	}
	if f.cfg.ExcludeBetas && isBeta(rom) {
		return false, RejectBeta
	}
	if f.cfg.ExcludePrototypes && isPrototype(rom) {
		return false, RejectPrototype
	}
	if f.cfg.ExcludeDemos && isDemo(rom) {
		return false, RejectDemo
	}
	if f.cfg.ExcludeHacks && isHack(rom) {
		return false, RejectHack
	}
	return true, RejectNone
}

// extensionAllowed derives a candidate extension and checks it against the
// platform whitelist. An entry with no derivable extension passes.
func (f *Filter) extensionAllowed(rom *romm.Rom, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := deriveExtension(rom)
	if ext == "" {
		return true
	}
	for _, allowed := range extensions {
		if strings.EqualFold(ext, strings.TrimPrefix(allowed, ".")) {
			return true
		}
	}
	return false
}

// deriveExtension picks the entry's extension from the first root-level
// file, the full path, or the filesystem name, in that order. Returns ""
// when no candidate is valid.
func deriveExtension(rom *romm.Rom) string {
	for _, file := range rom.Files {
		if strings.Contains(file.FileName, "/") {
			continue
		}
		if ext := validExtension(file.FileName); ext != "" {
			return ext
		}
		break
	}
	if ext := validExtension(rom.FsPath); ext != "" {
		return ext
	}
	return validExtension(rom.FsName)
}

// validExtension extracts a usable extension from a path: non-empty, at
// most 10 characters, alphanumeric with no spaces.
func validExtension(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" || len(ext) > 10 {
		return ""
	}
	if !extensionPattern.MatchString(ext) {
		return ""
	}
	return ext
}

func isBadDump(name string) bool {
	return badDumpPattern.MatchString(name)
}

// regionAllowed applies the include/exclude region filter. Entries with no
// listed region always pass since there is nothing to match against.
func (f *Filter) regionAllowed(regions []string) bool {
	if len(f.cfg.Regions) == 0 {
		return true
	}
	if len(regions) == 0 {
		return true
	}

	matched := false
	for _, region := range regions {
		for _, selected := range f.cfg.Regions {
			if strings.EqualFold(region, selected) {
				matched = true
				break
			}
		}
		if matched {
			break
		}
	}

	if f.cfg.RegionMode == config.RegionExclude {
		return !matched
	}
	return matched
}

func isBeta(rom *romm.Rom) bool {
	if betaPattern.MatchString(rom.Name) || betaPattern.MatchString(rom.FsName) {
		return true
	}
	if strings.Contains(strings.ToLower(rom.Revision), "beta") {
		return true
	}
	return tagContains(rom.Tags, "beta")
}

func isPrototype(rom *romm.Rom) bool {
	if prototypePattern.MatchString(rom.Name) || prototypePattern.MatchString(rom.FsName) {
		return true
	}
	if strings.Contains(strings.ToLower(rom.Revision), "proto") {
		return true
	}
	return tagContains(rom.Tags, "proto")
}

func isDemo(rom *romm.Rom) bool {
	if demoPattern.MatchString(rom.Name) || demoPattern.MatchString(rom.FsName) {
		return true
	}
	return tagContains(rom.Tags, "demo")
}

// isHack combines the explicit revision text, the tag list, and three
// overlapping name-pattern heuristics.
func isHack(rom *romm.Rom) bool {
	if strings.Contains(strings.ToLower(rom.Revision), "hack") {
		return true
	}
	if tagContains(rom.Tags, "hack") {
		return true
	}
	for _, name := range []string{rom.Name, rom.FsName} {
		if hackBracketPattern.MatchString(name) ||
			hackParenPattern.MatchString(name) ||
			hackTransPattern.MatchString(name) {
			return true
		}
	}
	return false
}

func tagContains(tags []string, needle string) bool {
	for _, tag := range tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}
