// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

package romm

import (
	"reflect"
	"strings"
	"testing"
)

func TestCandidateURLs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "explicit https honored",
			input: "https://romm.example.com",
			want:  []string{"https://romm.example.com"},
		},
		{
			name:  "explicit http honored",
			input: "http://romm.example.com:8080",
			want:  []string{"http://romm.example.com:8080"},
		},
		{
			name:  "bare hostname tries https first",
			input: "romm.example.com",
			want:  []string{"https://romm.example.com", "http://romm.example.com"},
		},
		{
			name:  "bare ip tries http first",
			input: "192.168.1.50",
			want:  []string{"http://192.168.1.50", "https://192.168.1.50"},
		},
		{
			name:  "ip with port tries http first",
			input: "192.168.1.50:8080",
			want:  []string{"http://192.168.1.50:8080", "https://192.168.1.50:8080"},
		},
		{
			name:  "localhost tries http first",
			input: "localhost:8080",
			want:  []string{"http://localhost:8080", "https://localhost:8080"},
		},
		{
			name:  "trailing slash stripped",
			input: "https://romm.example.com/",
			want:  []string{"https://romm.example.com"},
		},
		{
			name:  "whitespace trimmed",
			input: "  romm.example.com  ",
			want:  []string{"https://romm.example.com", "http://romm.example.com"},
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := candidateURLs(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("candidateURLs(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoginScopeTracksDeviceSupport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		version     string
		wantDevices bool
	}{
		{name: "pre-device server", version: "3.9.0", wantDevices: false},
		{name: "first device release", version: "3.10.0", wantDevices: true},
		{name: "current server", version: "3.10.2", wantDevices: true},
		{name: "unparseable version", version: "unknown", wantDevices: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			scope := loginScope(tt.version)
			if !strings.Contains(scope, "roms.read") || !strings.Contains(scope, "collections.write") {
				t.Errorf("base scopes missing from %q", scope)
			}
			gotDevices := strings.Contains(scope, "devices.read") && strings.Contains(scope, "devices.write")
			if gotDevices != tt.wantDevices {
				t.Errorf("loginScope(%q) = %q, device scopes = %v, want %v",
					tt.version, scope, gotDevices, tt.wantDevices)
			}
		})
	}
}
