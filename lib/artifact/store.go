// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/conveyor-foundation/conveyor/lib/schema"
)

// Directory names within the artifact store root.
const (
	objectsDir = "objects"
	tmpDir     = "tmp"
)

// ErrNotFound is returned by Open and Stat when no artifact exists
// for the given reference.
var ErrNotFound = errors.New("artifact not found")

// zstdEncoder and zstdDecoder are reused across calls to avoid
// repeated initialization overhead. zstd.Encoder and zstd.Decoder
// are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("artifact: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("artifact: zstd decoder initialization failed: " + err.Error())
	}
}

// Store manages a content-addressed artifact directory.
type Store struct {
	root string
}

// NewStore creates a Store rooted at the given directory. The
// directory structure is created if it does not exist.
func NewStore(root string) (*Store, error) {
	for _, dir := range []string{
		root,
		filepath.Join(root, objectsDir),
		filepath.Join(root, tmpDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
		}
	}
	return &Store{root: root}, nil
}

// Write ingests content from r, compresses it, and stores it under a
// reference derived from the content hash. The returned record
// carries the reference, the logical name, and the uncompressed size.
//
// Writing the same bytes twice returns the same reference and leaves
// a single file on disk.
func (s *Store) Write(name string, r io.Reader) (schema.Artifact, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return schema.Artifact{}, fmt.Errorf("reading content: %w", err)
	}
	if len(content) == 0 {
		return schema.Artifact{}, fmt.Errorf("cannot store empty artifact %q", name)
	}

	hash := HashContent(content)
	ref := hash.Ref()
	path := s.objectPath(ref)

	if _, err := os.Stat(path); err == nil {
		// Already stored; content addressing makes this the same
		// artifact.
		return schema.Artifact{Name: name, Ref: ref, Size: int64(len(content))}, nil
	}

	compressed := zstdEncoder.EncodeAll(content, nil)

	// Write through a temp file and rename so a crash mid-write never
	// leaves a truncated object behind.
	tmp, err := os.CreateTemp(filepath.Join(s.root, tmpDir), ref+"-*")
	if err != nil {
		return schema.Artifact{}, fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return schema.Artifact{}, fmt.Errorf("writing object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return schema.Artifact{}, fmt.Errorf("closing object: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		os.Remove(tmpName)
		return schema.Artifact{}, fmt.Errorf("creating object directory: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return schema.Artifact{}, fmt.Errorf("publishing object: %w", err)
	}

	return schema.Artifact{Name: name, Ref: ref, Size: int64(len(content))}, nil
}

// Read returns the uncompressed content of the artifact with the
// given reference. Returns ErrNotFound if no such artifact exists.
func (s *Store) Read(ref string) ([]byte, error) {
	if !ValidRef(ref) {
		return nil, fmt.Errorf("malformed artifact reference %q", ref)
	}
	compressed, err := os.ReadFile(s.objectPath(ref))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("reading object %s: %w", ref, err)
	}
	content, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing object %s: %w", ref, err)
	}
	return content, nil
}

// Stat reports the uncompressed size of the artifact with the given
// reference, without reading the whole object into memory more than
// once. Returns ErrNotFound if no such artifact exists.
func (s *Store) Stat(ref string) (int64, error) {
	content, err := s.Read(ref)
	if err != nil {
		return 0, err
	}
	return int64(len(content)), nil
}

// objectPath returns the on-disk location for an artifact reference.
// Objects fan out into subdirectories keyed by the first two hex
// characters so a large store does not put every file in one
// directory.
func (s *Store) objectPath(ref string) string {
	hexPart := ref[len("art-"):]
	return filepath.Join(s.root, objectsDir, hexPart[:2], hexPart+".zst")
}
