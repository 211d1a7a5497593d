package main

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"testing"
)

func TestMigrationFilenamePattern(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  int
		name     string
	}{
		{"0001_create_transactions.sql", true, 1, "create_transactions"},
		{"0002_create_categories.sql", true, 2, "create_categories"},
		{"001_invalid.sql", false, 0, ""},       // wrong number format
		{"0001_test", false, 0, ""},             // missing .sql
		{"0001.sql", false, 0, ""},              // missing name
		{"invalid_0001_test.sql", false, 0, ""}, // wrong order
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			matches := migrationFilePattern.FindStringSubmatch(tt.filename)
			if !tt.valid {
				if matches != nil {
					t.Fatalf("filename %q should not match", tt.filename)
				}
				return
			}
			if matches == nil {
				t.Fatalf("filename %q should match", tt.filename)
			}
			version, err := strconv.Atoi(matches[1])
			if err != nil {
				t.Fatalf("version %q not numeric: %v", matches[1], err)
			}
			if version != tt.version {
				t.Errorf("version = %d, want %d", version, tt.version)
			}
			if matches[2] != tt.name {
				t.Errorf("name = %q, want %q", matches[2], tt.name)
			}
		})
	}
}

func TestMigrationChecksumConsistency(t *testing.T) {
	content1 := []byte("CREATE TABLE test (id INT64);")
	content2 := []byte("CREATE TABLE test (id INT64);")
	content3 := []byte("CREATE TABLE different (id INT64);")

	sum := func(b []byte) string { return fmt.Sprintf("%x", sha256.Sum256(b)) }

	if sum(content1) != sum(content2) {
		t.Error("same content should produce the same checksum")
	}
	if sum(content1) == sum(content3) {
		t.Error("different content should produce different checksums")
	}
}
