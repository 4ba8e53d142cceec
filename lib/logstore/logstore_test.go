// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package logstore

import (
	"bytes"
	"errors"
	"testing"
)

func TestCaptureRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	capture, err := store.Create("log-step-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := capture.Append([]byte("compiling main.go\n")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := capture.Append([]byte("linking binary\n")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := capture.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	content, err := store.Read("log-step-1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := []byte("compiling main.go\nlinking binary\n")
	if !bytes.Equal(content, want) {
		t.Fatalf("content = %q, want %q", content, want)
	}
}

func TestAppendAfterCloseFails(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	capture, err := store.Create("log-step-2")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := capture.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := capture.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := capture.Append([]byte("late output")); err == nil {
		t.Fatal("expected error appending to sealed capture")
	}
}

func TestReadMissingLog(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.Read("log-absent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestRejectsBadReferences(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	for _, ref := range []string{"", "a/b", `a\b`, "../escape"} {
		if _, err := store.Create(ref); err == nil {
			t.Errorf("Create(%q) succeeded, want error", ref)
		}
		if _, err := store.Read(ref); err == nil || errors.Is(err, ErrNotFound) {
			t.Errorf("Read(%q) error = %v, want invalid reference error", ref, err)
		}
	}
}
