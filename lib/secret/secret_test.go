// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewFromBytesZeroesSource(t *testing.T) {
	source := []byte("syt_token")
	buffer, err := NewFromBytes(source)
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer buffer.Close()

	if buffer.String() != "syt_token" {
		t.Errorf("String() = %q", buffer.String())
	}
	if buffer.Len() != len("syt_token") {
		t.Errorf("Len() = %d", buffer.Len())
	}
	for index, b := range source {
		if b != 0 {
			t.Fatalf("source[%d] = %q, want zeroed", index, b)
		}
	}
}

func TestCloseIsIdempotentAndPanicsOnRead(t *testing.T) {
	buffer, err := NewFromString("token")
	if err != nil {
		t.Fatalf("NewFromString: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Error("Bytes after Close did not panic")
		}
	}()
	buffer.Bytes()
}

func TestEmptySourceRejected(t *testing.T) {
	if _, err := NewFromString(""); err == nil {
		t.Error("NewFromString(\"\") succeeded")
	}
}

func TestReadFromPath(t *testing.T) {
	directory := t.TempDir()

	path := filepath.Join(directory, "token")
	if err := os.WriteFile(path, []byte("  syt_abc\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	buffer, err := ReadFromPath(path)
	if err != nil {
		t.Fatalf("ReadFromPath: %v", err)
	}
	defer buffer.Close()
	if buffer.String() != "syt_abc" {
		t.Errorf("token = %q, want trimmed syt_abc", buffer.String())
	}

	blank := filepath.Join(directory, "blank")
	if err := os.WriteFile(blank, []byte("\n\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFromPath(blank); err == nil {
		t.Error("ReadFromPath accepted a whitespace-only file")
	}
	if _, err := ReadFromPath(filepath.Join(directory, "missing")); err == nil {
		t.Error("ReadFromPath accepted a missing file")
	}
}
