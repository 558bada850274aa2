package vault

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mtzanidakis/ghostgate/internal/store"
)

type failingKV struct {
	data string
}

func (f *failingKV) Get(string) (string, bool, error) {
	if f.data == "" {
		return "", false, nil
	}
	return f.data, true, nil
}
func (f *failingKV) Set(string, string) error { return errors.New("quota exceeded") }
func (f *failingKV) Delete(string) error      { return errors.New("storage unavailable") }

func sampleEntries() []Entry {
	return []Entry{
		&EncryptionEntry{
			ID:              "3f2a9c1e-0000-4000-8000-00000000a1b2",
			CreatedAt:       time.UnixMilli(1700000000000),
			EncryptedBase64: "Aw4HBwQ=",
		},
		&IdentityEntry{
			ID:        "3f2a9c1e-0000-4000-8000-00000000c3d4",
			CreatedAt: time.UnixMilli(1700000005000),
			Name:      "Nova Voss",
			Email:     "nova.voss.123@ghostgate.com",
			Location:  "Zurich, CH",
		},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	s := NewStore(store.NewMemory(), 0)
	want := sampleEntries()
	s.Save(want)

	got := s.Load()
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i := range want {
		switch w := want[i].(type) {
		case *EncryptionEntry:
			g, ok := got[i].(*EncryptionEntry)
			if !ok || *g != *w {
				t.Errorf("entry %d: got %+v, want %+v", i, got[i], w)
			}
		case *IdentityEntry:
			g, ok := got[i].(*IdentityEntry)
			if !ok || *g != *w {
				t.Errorf("entry %d: got %+v, want %+v", i, got[i], w)
			}
		}
	}
}

func TestStoreWireFormat(t *testing.T) {
	kv := store.NewMemory()
	NewStore(kv, 0).Save(sampleEntries()[:1])

	raw, _, _ := kv.Get(StorageKey)
	want := `[{"id":"3f2a9c1e-0000-4000-8000-00000000a1b2","type":"encryption","createdAt":1700000000000,"encryptedBase64":"Aw4HBwQ="}]`
	if raw != want {
		t.Errorf("unexpected serialization:\n got %s\nwant %s", raw, want)
	}
}

func TestStoreWipeIdempotent(t *testing.T) {
	kv := store.NewMemory()
	s := NewStore(kv, 0)
	s.Save(sampleEntries())

	for i := 0; i < 2; i++ {
		s.WipeAll()
		if got := s.Load(); len(got) != 0 {
			t.Fatalf("wipe %d: expected empty vault, got %d entries", i+1, len(got))
		}
		if _, ok, _ := kv.Get(StorageKey); ok {
			t.Fatalf("wipe %d: key still present", i+1)
		}
	}
}

func TestStoreLoadDegradesToEmpty(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing", ""},
		{"corrupt", "{not json"},
		{"object", `{"id":"x","type":"encryption"}`},
		{"number", `42`},
		{"null", `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := store.NewMemory()
			if tt.raw != "" {
				_ = kv.Set(StorageKey, tt.raw)
			}
			got := NewStore(kv, 0).Load()
			if got == nil || len(got) != 0 {
				t.Errorf("expected empty non-nil slice, got %#v", got)
			}
		})
	}
}

func TestStoreLoadSkipsInvalidElements(t *testing.T) {
	kv := store.NewMemory()
	_ = kv.Set(StorageKey, `[
		{"id":"a","type":"encryption","createdAt":1,"encryptedBase64":"QQ=="},
		"junk",
		{"type":"identity","name":"no id"},
		{"id":"b","type":"hologram"},
		{"id":"c","type":"identity","createdAt":2,"name":"Kai Nyx","email":"kai.nyx.500@ghostgate.com","location":"Seoul, KR"}
	]`)

	got := NewStore(kv, 0).Load()
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].EntryID() != "a" || got[1].EntryID() != "c" {
		t.Errorf("unexpected ids %q, %q", got[0].EntryID(), got[1].EntryID())
	}
}

func TestStoreWriteFailureIsSilent(t *testing.T) {
	s := NewStore(&failingKV{}, 0)
	s.Save(sampleEntries())
	s.WipeAll()
	if got := s.Load(); len(got) != 0 {
		t.Errorf("expected empty load after failed save, got %d", len(got))
	}
}

func TestStoreUsage(t *testing.T) {
	s := NewStore(store.NewMemory(), 100)
	entries := sampleEntries()

	size := s.SizeInBytes(entries)
	data, _ := Marshal(entries)
	if size != len(data) {
		t.Errorf("SizeInBytes = %d, want %d", size, len(data))
	}

	u := s.Usage(entries)
	if u.Quota != 100 || u.Bytes != size {
		t.Errorf("unexpected usage %+v", u)
	}
	if u.Percent != 100 {
		t.Errorf("percent should cap at 100, got %v", u.Percent)
	}

	if got := NewStore(store.NewMemory(), 0).Usage(nil); got.Quota != DefaultQuota {
		t.Errorf("default quota = %d, want %d", got.Quota, DefaultQuota)
	}
}

func TestStoreAppend(t *testing.T) {
	s := NewStore(store.NewMemory(), 0)
	for _, e := range sampleEntries() {
		s.Append(e)
	}
	if got := s.Load(); len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
}

func TestBuildExport(t *testing.T) {
	entries := sampleEntries()

	enc, err := BuildExport(entries[0])
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if enc.Filename != "ghostgate-encryption-00a1b2.txt" {
		t.Errorf("filename = %q", enc.Filename)
	}
	if enc.Content != ExportHeader+"\nAw4HBwQ=\n" {
		t.Errorf("content = %q", enc.Content)
	}

	id, err := BuildExport(entries[1])
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	want := ExportHeader + "\nIdentity\nName: Nova Voss\nEmail: nova.voss.123@ghostgate.com\nLocation: Zurich, CH\n"
	if id.Content != want {
		t.Errorf("content = %q, want %q", id.Content, want)
	}
	if !strings.HasSuffix(id.Filename, "-00c3d4.txt") {
		t.Errorf("filename = %q", id.Filename)
	}
}

func TestMaskCiphertext(t *testing.T) {
	cases := map[string]string{
		"Aw4HBwQ=":     "••••••••",
		"":             "••••••••",
		"SGVsbG8gd29y": "SGVs••••••••d29y",
	}
	for in, want := range cases {
		if got := MaskCiphertext(in); got != want {
			t.Errorf("MaskCiphertext(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLookup(t *testing.T) {
	entries := sampleEntries()

	e, err := Lookup(entries, "00A1B2")
	if err != nil || e.EntryID() != entries[0].EntryID() {
		t.Errorf("suffix lookup: %v, %v", e, err)
	}
	if _, err := Lookup(entries, entries[1].EntryID()); err != nil {
		t.Errorf("full id lookup: %v", err)
	}
	if _, err := Lookup(entries, "ffffff"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("unknown ref should not match, got %v", err)
	}
	twins := []Entry{&EncryptionEntry{ID: "x-abc"}, &EncryptionEntry{ID: "y-abc"}}
	if _, err := Lookup(twins, "abc"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("ambiguous suffix should not match, got %v", err)
	}
	if _, err := Lookup(entries, ""); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("empty ref should not match, got %v", err)
	}
}
