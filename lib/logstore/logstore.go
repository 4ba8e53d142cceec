// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package logstore persists captured step output.
//
// Logs are written through a Capture, which buffers appended chunks
// and seals them into a single zstd-compressed file on Close. Sealed
// logs are immutable and are read back whole. References are
// caller-chosen identifiers (the engine uses "log-<step run ID>").
package logstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// ErrNotFound is returned by Read when no sealed log exists for the
// given reference.
var ErrNotFound = errors.New("log not found")

var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("logstore: zstd encoder initialization failed: " + err.Error())
	}
	decoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("logstore: zstd decoder initialization failed: " + err.Error())
	}
}

// Store manages a directory of sealed log files.
type Store struct {
	root string
}

// NewStore creates a Store rooted at the given directory, creating it
// if needed.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	return &Store{root: root}, nil
}

// Capture accumulates log output for one reference until Close seals
// it. Safe for concurrent appends.
type Capture struct {
	store *Store
	ref   string

	mu     sync.Mutex
	buffer []byte
	closed bool
}

// Create opens a Capture for the given reference. The reference must
// be non-empty and free of path separators; it becomes the on-disk
// file name.
func (s *Store) Create(ref string) (*Capture, error) {
	if ref == "" || strings.ContainsAny(ref, "/\\") {
		return nil, fmt.Errorf("invalid log reference %q", ref)
	}
	return &Capture{store: s, ref: ref}, nil
}

// Ref returns the reference the capture will seal under.
func (c *Capture) Ref() string {
	return c.ref
}

// Append adds a chunk of output to the capture. Appending to a closed
// capture is an error.
func (c *Capture) Append(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("log %s already sealed", c.ref)
	}
	c.buffer = append(c.buffer, data...)
	return nil
}

// Close seals the capture: the accumulated output is compressed and
// written to disk in one atomic rename. Close is idempotent.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	compressed := encoder.EncodeAll(c.buffer, nil)
	path := c.store.path(c.ref)
	tmp, err := os.CreateTemp(c.store.root, c.ref+"-*")
	if err != nil {
		return fmt.Errorf("creating temp log file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing log %s: %w", c.ref, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing log %s: %w", c.ref, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("sealing log %s: %w", c.ref, err)
	}
	c.buffer = nil
	return nil
}

// Read returns the full uncompressed content of a sealed log.
func (s *Store) Read(ref string) ([]byte, error) {
	if ref == "" || strings.ContainsAny(ref, "/\\") {
		return nil, fmt.Errorf("invalid log reference %q", ref)
	}
	compressed, err := os.ReadFile(s.path(ref))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("reading log %s: %w", ref, err)
	}
	content, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing log %s: %w", ref, err)
	}
	return content, nil
}

func (s *Store) path(ref string) string {
	return filepath.Join(s.root, ref+".zst")
}
