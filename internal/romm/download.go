// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

package romm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/halcyonforge/romshelf/internal/logging"
)

// DownloadResult reports the outcome of a ROM content download.
type DownloadResult struct {
	// BytesWritten counts bytes written in this call, excluding any
	// pre-existing prefix the server let us resume past.
	BytesWritten int64
	// Resumed is true when the server honored the Range header and the
	// download continued from the requested offset.
	Resumed bool
}

// DownloadRom streams a ROM's content to destPath. When offset is positive a
// Range header is sent; if the server answers 206 the existing file is
// appended to, otherwise it is truncated and rewritten from scratch.
//
// The content is written to a .part file and renamed into place on success,
// so destPath never holds a half-written ROM.
func (c *Client) DownloadRom(ctx context.Context, id int64, fileName, destPath string, offset int64) (*DownloadResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	endpoint := "/api/roms/" + strconv.FormatInt(id, 10) + "/content/" + url.PathEscape(fileName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	// Downloads bypass the normal client timeout; large ROMs can
	// legitimately take longer than any per-request deadline.
	dl := &http.Client{Transport: c.client.Transport}
	resp, err := dl.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	resumed := false
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusPartialContent:
		resumed = offset > 0
	default:
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Endpoint:   endpoint,
			Body:       string(readBodyForError(resp.Body)),
		}
	}

	partPath := destPath + ".part"
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return nil, fmt.Errorf("create download directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if resumed {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(partPath, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open partial file: %w", err)
	}

	written, err := io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		// Keep the .part file so a later call can resume from it.
		logging.Warn().Err(err).Str("path", partPath).Int64("written", written).
			Msg("ROM download interrupted, partial file retained")
		return &DownloadResult{BytesWritten: written, Resumed: resumed}, fmt.Errorf("download interrupted: %w", err)
	}

	if err := os.Rename(partPath, destPath); err != nil {
		return nil, fmt.Errorf("finalize download: %w", err)
	}

	return &DownloadResult{BytesWritten: written, Resumed: resumed}, nil
}
