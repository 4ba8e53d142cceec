// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestHashRefShape(t *testing.T) {
	t.Parallel()

	hash := HashContent([]byte("binary payload"))
	ref := hash.Ref()
	if !strings.HasPrefix(ref, "art-") {
		t.Fatalf("ref %q missing art- prefix", ref)
	}
	if len(ref) != len("art-")+refHexLength {
		t.Fatalf("ref %q has wrong length", ref)
	}
	if !ValidRef(ref) {
		t.Fatalf("ValidRef(%q) = false", ref)
	}

	for _, bad := range []string{"", "art-", "art-xyz", "blob-abcdef123456", "art-ABCDEF12345"} {
		if ValidRef(bad) {
			t.Errorf("ValidRef(%q) = true, want false", bad)
		}
	}
}

func TestHashChangesWithContent(t *testing.T) {
	t.Parallel()

	first := HashContent([]byte("version 1"))
	second := HashContent([]byte("version 2"))
	if first == second {
		t.Fatal("different content produced identical hashes")
	}
	if HashContent([]byte("version 1")) != first {
		t.Fatal("same content produced different hashes")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	content := bytes.Repeat([]byte("build output line\n"), 100)
	record, err := store.Write("app.tar", bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if record.Name != "app.tar" {
		t.Errorf("Name = %q, want app.tar", record.Name)
	}
	if record.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", record.Size, len(content))
	}

	got, err := store.Read(record.Ref)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("read content differs from written content")
	}

	size, err := store.Stat(record.Ref)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if size != int64(len(content)) {
		t.Errorf("Stat size = %d, want %d", size, len(content))
	}
}

func TestStoreWriteIsIdempotent(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	content := []byte("identical bytes")
	first, err := store.Write("a.bin", bytes.NewReader(content))
	if err != nil {
		t.Fatalf("first Write: %v", err)
	}
	second, err := store.Write("b.bin", bytes.NewReader(content))
	if err != nil {
		t.Fatalf("second Write: %v", err)
	}
	if first.Ref != second.Ref {
		t.Fatalf("refs differ for identical content: %s vs %s", first.Ref, second.Ref)
	}
}

func TestStoreRejectsEmptyContent(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.Write("empty", bytes.NewReader(nil)); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestStoreReadMissing(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.Read("art-0123456789ab"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if _, err := store.Read("not-a-ref"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("malformed ref error = %v, want parse error", err)
	}
}
