package main

import (
	"archive/tar"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/mtzanidakis/ghostgate/internal/store"
	"github.com/mtzanidakis/ghostgate/internal/vault"
)

func TestSplitArchivePath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind string
		wantRel  string
	}{
		{"vault value", "vault.json", "vault.json", "vault.json"},
		{"leading dot-slash", "./vault.json", "vault.json", "vault.json"},
		{"leading slash", "/vault.json", "vault.json", "vault.json"},
		{"export file", "exports/ghostgate-encryption-00a1b2.txt", "exports", "ghostgate-encryption-00a1b2.txt"},
		{"export dir", "exports/", "", ""},
		{"nested export", "exports/sub/file.txt", "", ""},
		{"escaping export", "exports/../passwd.txt", "", ""},
		{"non-txt export", "exports/notes.md", "", ""},
		{"vault in subdir", "other/vault.json", "", ""},
		{"empty string", "", "", ""},
		{"just a slash", "/", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotKind, gotRel := splitArchivePath(tt.input)
			if gotKind != tt.wantKind {
				t.Errorf("splitArchivePath(%q) kind = %q, want %q", tt.input, gotKind, tt.wantKind)
			}
			if gotRel != tt.wantRel {
				t.Errorf("splitArchivePath(%q) rel = %q, want %q", tt.input, gotRel, tt.wantRel)
			}
		})
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 bytes"},
		{512, "512 bytes"},
		{1023, "1023 bytes"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{5242880, "5.0 MB"},
		{1073741824, "1.0 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := formatSize(tt.bytes); got != tt.want {
				t.Errorf("formatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

// createTestArchive builds a zstd-compressed tar with the given entries.
func createTestArchive(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.tar.zst")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		t.Fatal(err)
	}

	tw := tar.NewWriter(zw)
	for name, content := range entries {
		hdr := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     name,
			Mode:     0o600,
			Size:     int64(len(content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	tw.Close()
	zw.Close()

	return path
}

func seedVault(t *testing.T) *store.Memory {
	t.Helper()
	kv := store.NewMemory()
	vault.NewStore(kv, 0).Save([]vault.Entry{
		&vault.EncryptionEntry{
			ID:              "3f2a9c1e-0000-4000-8000-00000000a1b2",
			CreatedAt:       time.UnixMilli(1700000000000),
			EncryptedBase64: "Aw4HBwQ=",
		},
	})
	return kv
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	kv := seedVault(t)
	exports := t.TempDir()
	os.WriteFile(filepath.Join(exports, "ghostgate-encryption-00a1b2.txt"), []byte("--- export ---\n"), 0o600)
	os.WriteFile(filepath.Join(exports, "notes.md"), []byte("ignored"), 0o600)

	archive := filepath.Join(t.TempDir(), "backup.tar.zst")
	n, err := writeBackup(archive, kv, exports)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 archived files, got %d", n)
	}

	members, err := scanArchive(archive)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %v", members)
	}

	restoredKV := store.NewMemory()
	restoredExports := filepath.Join(t.TempDir(), "exports")
	n, err = restoreBackup(archive, restoredKV, restoredExports, false)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 restored files, got %d", n)
	}

	want, _, _ := kv.Get(vault.StorageKey)
	got, ok, _ := restoredKV.Get(vault.StorageKey)
	if !ok || got != want {
		t.Errorf("vault value = %q, want %q", got, want)
	}
	data, err := os.ReadFile(filepath.Join(restoredExports, "ghostgate-encryption-00a1b2.txt"))
	if err != nil || string(data) != "--- export ---\n" {
		t.Errorf("export not restored: %q, %v", data, err)
	}
	if _, err := os.Stat(filepath.Join(restoredExports, "notes.md")); err == nil {
		t.Error("non-export file should not be archived")
	}
}

func TestBackupEmptyVault(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "backup.tar.zst")
	n, err := writeBackup(archive, store.NewMemory(), filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("expected empty archive, got %d files", n)
	}
}

func TestRestoreRefusesNonEmptyVault(t *testing.T) {
	archive := createTestArchive(t, map[string]string{
		"vault.json": `[{"id":"b","type":"encryption","createdAt":2,"encryptedBase64":"QQ=="}]`,
	})
	kv := seedVault(t)
	exports := t.TempDir()

	if _, err := restoreBackup(archive, kv, exports, false); err == nil || !strings.Contains(err.Error(), "--overwrite") {
		t.Fatalf("expected overwrite error, got %v", err)
	}
	if got := vault.NewStore(kv, 0).Load(); got[0].EntryID() == "b" {
		t.Fatal("vault replaced without --overwrite")
	}

	if _, err := restoreBackup(archive, kv, exports, true); err != nil {
		t.Fatal(err)
	}
	got := vault.NewStore(kv, 0).Load()
	if len(got) != 1 || got[0].EntryID() != "b" {
		t.Errorf("vault not replaced: %v", got)
	}
}

func TestRestoreRefusesExistingExport(t *testing.T) {
	archive := createTestArchive(t, map[string]string{
		"exports/a.txt": "new",
	})
	exports := t.TempDir()
	os.WriteFile(filepath.Join(exports, "a.txt"), []byte("old"), 0o600)

	if _, err := restoreBackup(archive, store.NewMemory(), exports, false); err == nil {
		t.Fatal("expected error for existing export")
	}
	data, _ := os.ReadFile(filepath.Join(exports, "a.txt"))
	if string(data) != "old" {
		t.Errorf("export overwritten: %q", data)
	}
}

func TestRestoreRejectsUnreadableVault(t *testing.T) {
	archive := createTestArchive(t, map[string]string{
		"vault.json": "{not json",
	})
	kv := store.NewMemory()
	if _, err := restoreBackup(archive, kv, t.TempDir(), false); err == nil {
		t.Fatal("expected error for corrupt vault data")
	}
	if _, ok, _ := kv.Get(vault.StorageKey); ok {
		t.Error("corrupt vault data was written")
	}
}

func TestRestoreSkipsForeignEntries(t *testing.T) {
	archive := createTestArchive(t, map[string]string{
		"volumes/db.sqlite":     "data",
		"exports/../escape.txt": "data",
		"random-file.txt":       "data",
	})

	members, err := scanArchive(archive)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 0 {
		t.Fatalf("expected no members, got %v", members)
	}
	n, err := restoreBackup(archive, store.NewMemory(), t.TempDir(), false)
	if err != nil || n != 0 {
		t.Errorf("restore = %d, %v", n, err)
	}
}

func TestScanArchive_InvalidFile(t *testing.T) {
	if _, err := scanArchive("/nonexistent/file.tar.zst"); err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestScanArchive_InvalidZstd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.tar.zst")
	os.WriteFile(path, []byte("not zstd data"), 0o600)

	if _, err := scanArchive(path); err == nil {
		t.Fatal("expected error for invalid zstd data")
	}
}
