package vault

import (
	"log/slog"

	"github.com/mtzanidakis/ghostgate/internal/store"
)

const (
	// StorageKey is the KV key holding the serialized entry array.
	StorageKey = "ghostgate_vault"

	// DefaultQuota is the nominal capacity shown on the storage gauge.
	DefaultQuota = 5 * 1024 * 1024
)

// Store persists the ordered entry sequence under StorageKey. None of
// its methods fail: unreadable data loads as an empty vault and write
// failures are dropped, leaving the caller's in-memory copy as the
// source of truth for the rest of the session.
type Store struct {
	kv    store.KV
	quota int
}

func NewStore(kv store.KV, quota int) *Store {
	if quota <= 0 {
		quota = DefaultQuota
	}
	return &Store{kv: kv, quota: quota}
}

func (s *Store) Load() []Entry {
	raw, ok, err := s.kv.Get(StorageKey)
	if err != nil {
		slog.Debug("vault load failed", "error", err)
		return []Entry{}
	}
	if !ok || raw == "" {
		return []Entry{}
	}

	entries, skipped, err := Unmarshal([]byte(raw))
	if err != nil {
		slog.Debug("vault data unreadable, starting empty", "error", err)
		return []Entry{}
	}
	if skipped > 0 {
		slog.Debug("vault entries skipped", "count", skipped)
	}
	return entries
}

func (s *Store) Save(entries []Entry) {
	data, err := Marshal(entries)
	if err != nil {
		slog.Debug("vault save skipped", "error", err)
		return
	}
	if err := s.kv.Set(StorageKey, string(data)); err != nil {
		slog.Debug("vault save failed", "error", err)
	}
}

// WipeAll removes the persisted value. Calling it on an empty vault is
// fine.
func (s *Store) WipeAll() {
	if err := s.kv.Delete(StorageKey); err != nil {
		slog.Debug("vault wipe failed", "error", err)
	}
}

// SizeInBytes is the length of the serialized form of entries.
func (s *Store) SizeInBytes(entries []Entry) int {
	data, err := Marshal(entries)
	if err != nil {
		return 0
	}
	return len(data)
}

// Usage is the storage gauge. Exceeding the quota is informational.
type Usage struct {
	Bytes   int     `json:"bytes"`
	Quota   int     `json:"quota"`
	Percent float64 `json:"percent"`
}

func (s *Store) Usage(entries []Entry) Usage {
	n := s.SizeInBytes(entries)
	pct := float64(n) / float64(s.quota) * 100
	if pct > 100 {
		pct = 100
	}
	return Usage{Bytes: n, Quota: s.quota, Percent: pct}
}

// Append loads the persisted entries, appends entry and saves. It is
// the path for callers without a Session, such as the CLI.
func (s *Store) Append(entry Entry) []Entry {
	entries := append(s.Load(), entry)
	s.Save(entries)
	return entries
}
