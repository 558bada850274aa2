package main

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mtzanidakis/ghostgate/internal/identity"
	"github.com/mtzanidakis/ghostgate/internal/store"
	"github.com/mtzanidakis/ghostgate/internal/vault"
)

func newTestVaultCmd(t *testing.T) (*vaultCmd, *bytes.Buffer) {
	t.Helper()
	t.Setenv(vaultKeyEnv, "")
	out := &bytes.Buffer{}
	return &vaultCmd{
		store:     vault.NewStore(store.NewMemory(), 0),
		gen:       identity.New(rand.NewPCG(1, 2)),
		out:       out,
		in:        strings.NewReader(""),
		exportDir: t.TempDir(),
		now:       func() time.Time { return time.UnixMilli(1700000000123) },
	}, out
}

func TestVaultEncryptDecrypt(t *testing.T) {
	c, out := newTestVaultCmd(t)

	if err := c.encrypt([]string{"-k", "k", "hello"}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "Aw4HBwQ=\n") {
		t.Fatalf("unexpected output %q", out.String())
	}

	entries := c.store.Load()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if got := entries[0].Created().UnixMilli(); got != 1700000000123 {
		t.Errorf("created = %d", got)
	}

	out.Reset()
	ref := vault.ShortID(entries[0].EntryID())
	if err := c.decrypt([]string{ref, "--key", "k"}); err != nil {
		t.Fatal(err)
	}
	if out.String() != "hello\n" {
		t.Errorf("decrypt output = %q", out.String())
	}
}

func TestVaultEncryptReadsStdinAndEnvKey(t *testing.T) {
	c, out := newTestVaultCmd(t)
	t.Setenv(vaultKeyEnv, "k")
	c.in = strings.NewReader("hello\n")

	if err := c.encrypt(nil); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "Aw4HBwQ=\n") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestVaultEncryptMissingKey(t *testing.T) {
	c, _ := newTestVaultCmd(t)

	if err := c.encrypt([]string{"hello"}); err == nil {
		t.Fatal("expected error without a key")
	}
	if n := len(c.store.Load()); n != 0 {
		t.Errorf("nothing should be stored, got %d", n)
	}
}

func TestVaultDecryptErrors(t *testing.T) {
	c, _ := newTestVaultCmd(t)
	if err := c.identity(); err != nil {
		t.Fatal(err)
	}
	ref := vault.ShortID(c.store.Load()[0].EntryID())

	if err := c.decrypt([]string{ref, "-k", "k"}); !errors.Is(err, vault.ErrNotDecryptable) {
		t.Errorf("identity decrypt: %v", err)
	}
	if err := c.decrypt([]string{"ffffff", "-k", "k"}); !errors.Is(err, vault.ErrEntryNotFound) {
		t.Errorf("unknown ref: %v", err)
	}
	if err := c.decrypt(nil); err == nil {
		t.Error("expected usage error")
	}
}

func TestVaultListMasks(t *testing.T) {
	c, out := newTestVaultCmd(t)
	_ = c.encrypt([]string{"-k", "k", "a longer secret message"})
	_ = c.identity()
	out.Reset()

	if err := c.list(); err != nil {
		t.Fatal(err)
	}
	text := out.String()
	entries := c.store.Load()
	enc := entries[0].(*vault.EncryptionEntry)
	id := entries[1].(*vault.IdentityEntry)

	if strings.Contains(text, enc.EncryptedBase64) {
		t.Error("list shows full ciphertext")
	}
	if !strings.Contains(text, vault.MaskCiphertext(enc.EncryptedBase64)) {
		t.Errorf("masked ciphertext missing:\n%s", text)
	}
	if strings.Contains(text, id.Email) || !strings.Contains(text, identity.MaskEmail(id.Email)) {
		t.Errorf("email not masked:\n%s", text)
	}
	for _, e := range entries {
		if !strings.Contains(text, vault.ShortID(e.EntryID())) {
			t.Errorf("short id %s missing", vault.ShortID(e.EntryID()))
		}
	}
}

func TestVaultListEmpty(t *testing.T) {
	c, out := newTestVaultCmd(t)
	if err := c.list(); err != nil {
		t.Fatal(err)
	}
	if out.String() != "Vault is empty.\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestVaultExport(t *testing.T) {
	c, out := newTestVaultCmd(t)
	_ = c.encrypt([]string{"-k", "k", "hello"})
	entry := c.store.Load()[0]
	ref := vault.ShortID(entry.EntryID())

	out.Reset()
	if err := c.export([]string{ref, "--stdout"}); err != nil {
		t.Fatal(err)
	}
	if out.String() != vault.ExportHeader+"\nAw4HBwQ=\n" {
		t.Errorf("stdout export = %q", out.String())
	}

	if err := c.export([]string{ref}); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(c.exportDir, "ghostgate-encryption-"+ref+".txt")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("export mode = %v", info.Mode().Perm())
	}
}

func TestVaultWipe(t *testing.T) {
	c, out := newTestVaultCmd(t)
	_ = c.encrypt([]string{"-k", "k", "hello"})

	if err := c.wipe(nil); err == nil {
		t.Fatal("wipe without --yes should fail")
	}
	if n := len(c.store.Load()); n != 1 {
		t.Fatalf("vault changed without confirmation: %d", n)
	}

	out.Reset()
	if err := c.wipe([]string{"--yes"}); err != nil {
		t.Fatal(err)
	}
	if n := len(c.store.Load()); n != 0 {
		t.Errorf("expected empty vault, got %d", n)
	}
	if out.String() != "Vault wiped (1 entries)\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestVaultUsage(t *testing.T) {
	c, out := newTestVaultCmd(t)
	if err := c.usage(); err != nil {
		t.Fatal(err)
	}
	if out.String() != "0 entries, 2 bytes of 5.0 MB (0.0%)\n" {
		t.Errorf("output = %q", out.String())
	}
}
