// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

package romm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, ClientOptions{Token: "test-token"})
}

func TestHeartbeatDecodesVersion(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/heartbeat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("auth header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"SYSTEM":{"VERSION":"3.10.2"},"METADATA_SOURCES":{"RA_API_ENABLED":true}}`))
	})

	hb, err := c.Heartbeat(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if hb.System.Version != "3.10.2" {
		t.Errorf("version = %q", hb.System.Version)
	}
	if !hb.Metadata.RaEnabled {
		t.Error("expected RA enabled")
	}
}

func TestLoginSendsFormEncodedCredentials(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/token" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("content type = %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.PostForm.Get("username") != "alice" || r.PostForm.Get("password") != "s3cret" {
			t.Errorf("credentials = %v", r.PostForm)
		}
		if r.PostForm.Get("scope") == "" {
			t.Error("missing scope")
		}
		_, _ = w.Write([]byte(`{"access_token":"abc","token_type":"bearer"}`))
	})

	resp, err := c.Login(context.Background(), "alice", "s3cret", "me.read")
	if err != nil {
		t.Fatal(err)
	}
	if resp.AccessToken != "abc" {
		t.Errorf("token = %q", resp.AccessToken)
	}
}

func TestGetRomsPlatformParamGating(t *testing.T) {
	t.Parallel()

	var gotQuery map[string][]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"items":[],"total":0,"limit":50,"offset":0}`))
	})

	_, err := c.GetRoms(context.Background(), RomQuery{PlatformID: 7, Limit: 50})
	if err != nil {
		t.Fatal(err)
	}
	if got := gotQuery["platform_id"]; len(got) != 1 || got[0] != "7" {
		t.Errorf("platform_id = %v", got)
	}
	if _, ok := gotQuery["platform_ids"]; ok {
		t.Error("unexpected platform_ids on legacy path")
	}

	_, err = c.GetRoms(context.Background(), RomQuery{PlatformID: 7, PluralPlatformParam: true, Limit: 50})
	if err != nil {
		t.Fatal(err)
	}
	if got := gotQuery["platform_ids"]; len(got) != 1 || got[0] != "7" {
		t.Errorf("platform_ids = %v", got)
	}
}

func TestUpdateCollectionRomsSendsRawIDArray(t *testing.T) {
	t.Parallel()

	var gotBody []byte
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/collections/42" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var err error
		gotBody, err = io.ReadAll(r.Body)
		if err != nil {
			t.Fatal(err)
		}
		w.WriteHeader(http.StatusOK)
	})

	if err := c.UpdateCollectionRoms(context.Background(), 42, []int64{10, 20}); err != nil {
		t.Fatal(err)
	}

	var payload map[string][]int64
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("body %q: %v", gotBody, err)
	}
	if ids := payload["rom_ids"]; len(ids) != 2 || ids[0] != 10 || ids[1] != 20 {
		t.Errorf("rom_ids = %v", ids)
	}

	// Empty membership still sends an array, never null.
	if err := c.UpdateCollectionRoms(context.Background(), 42, nil); err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(gotBody, &raw); err != nil {
		t.Fatal(err)
	}
	if string(raw["rom_ids"]) != "[]" {
		t.Errorf("rom_ids raw = %s, want []", raw["rom_ids"])
	}
}

func TestStatusErrorClassification(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid token"}`, http.StatusUnauthorized)
	})

	_, err := c.GetCurrentUser(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsAuthError(err) {
		t.Errorf("IsAuthError = false for %v", err)
	}

	var se *StatusError
	if !asStatusError(err, &se) {
		t.Fatalf("not a StatusError: %v", err)
	}
	if se.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d", se.StatusCode)
	}
}

func TestDownloadRomWritesAndRenames(t *testing.T) {
	t.Parallel()

	content := []byte("ROMDATA-0123456789")
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "" {
			t.Errorf("unexpected Range header %q", r.Header.Get("Range"))
		}
		_, _ = w.Write(content)
	})

	dest := filepath.Join(t.TempDir(), "snes", "game.sfc")
	res, err := c.DownloadRom(context.Background(), 5, "game.sfc", dest, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.BytesWritten != int64(len(content)) || res.Resumed {
		t.Errorf("result = %+v", res)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Errorf("content = %q", got)
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Error("partial file left behind")
	}
}

func TestDownloadRomResumesOnPartialContent(t *testing.T) {
	t.Parallel()

	tail := []byte("6789")
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Range"); got != "bytes=6-" {
			t.Errorf("Range = %q", got)
		}
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(tail)
	})

	dest := filepath.Join(t.TempDir(), "game.sfc")
	if err := os.WriteFile(dest+".part", []byte("012345"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := c.DownloadRom(context.Background(), 5, "game.sfc", dest, 6)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Resumed || res.BytesWritten != int64(len(tail)) {
		t.Errorf("result = %+v", res)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "0123456789" {
		t.Errorf("content = %q", got)
	}
}

var _ ClientInterface = (*Client)(nil)
