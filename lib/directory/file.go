// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/jsonc"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// Listing file formats.
const (
	FormatYAML  = "yaml"
	FormatJSONC = "jsonc"
)

// FileProvider reads a listing exported by a directory connector. The
// file is re-read on every call, so an export job can replace it
// between passes.
type FileProvider struct {
	// Path is the listing file.
	Path string

	// Format is FormatYAML or FormatJSONC. Empty selects by extension:
	// .json and .jsonc are JSONC, everything else is YAML.
	Format string

	Options Options

	mu sync.Mutex
	// digest is the BLAKE3 hash of the last listing that parsed.
	digest [32]byte
}

// Rooms reads, parses, and normalizes the listing file.
func (p *FileProvider) Rooms(ctx context.Context) ([]Room, error) {
	if p.Path == "" {
		return nil, &IncompleteError{Missing: []string{"directory.path"}}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("directory: reading listing: %w", err)
	}
	listing, err := ParseListing(data, p.format())
	if err != nil {
		return nil, fmt.Errorf("directory: %s: %w", p.Path, err)
	}
	p.noteDigest(data, len(listing.Rooms))
	return Build(listing, p.Options)
}

// Digest returns the hex BLAKE3 hash of the last listing read, or ""
// before the first successful read.
func (p *FileProvider) Digest() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.digest == ([32]byte{}) {
		return ""
	}
	return hex.EncodeToString(p.digest[:])
}

// noteDigest logs when the listing content differs from the last read,
// so operators can correlate membership changes with export runs.
func (p *FileProvider) noteDigest(data []byte, rooms int) {
	digest := blake3.Sum256(data)
	p.mu.Lock()
	previous := p.digest
	p.digest = digest
	p.mu.Unlock()
	if previous == digest || p.Options.Logger == nil {
		return
	}
	p.Options.Logger.Info("directory listing changed",
		"path", p.Path,
		"digest", hex.EncodeToString(digest[:8]),
		"rooms", rooms,
	)
}

func (p *FileProvider) format() string {
	if p.Format != "" {
		return p.Format
	}
	switch strings.ToLower(filepath.Ext(p.Path)) {
	case ".json", ".jsonc":
		return FormatJSONC
	default:
		return FormatYAML
	}
}

// ParseListing decodes a listing in the given format. JSONC input may
// carry // and /* */ comments and trailing commas.
func ParseListing(data []byte, format string) (Listing, error) {
	var listing Listing
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &listing); err != nil {
			return Listing{}, fmt.Errorf("parsing YAML listing: %w", err)
		}
	case FormatJSONC:
		if err := json.Unmarshal(jsonc.ToJSON(data), &listing); err != nil {
			return Listing{}, fmt.Errorf("parsing JSONC listing: %w", err)
		}
	default:
		return Listing{}, fmt.Errorf("unknown listing format %q (want %s or %s)", format, FormatYAML, FormatJSONC)
	}
	return listing, nil
}

// StaticProvider serves a fixed listing, typically the rooms inlined in
// the configuration file.
type StaticProvider struct {
	Listing Listing
	Options Options
}

// Rooms normalizes the fixed listing. Each call returns fresh Room
// values so callers may fill in RoomID without affecting later passes.
func (p *StaticProvider) Rooms(ctx context.Context) ([]Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Build(p.Listing, p.Options)
}
