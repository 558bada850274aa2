package vault

import (
	"encoding/json"
	"fmt"
	"time"
)

// Entry is one stored vault record: *EncryptionEntry or
// *IdentityEntry. The set is closed; every consumer switches over both
// and treats anything else as a programming error.
type Entry interface {
	EntryID() string
	Created() time.Time
	Kind() Kind
	isEntry()
}

type Kind string

const (
	KindEncryption Kind = "encryption"
	KindIdentity   Kind = "identity"
)

// EncryptionEntry holds transform output only, never the plaintext.
type EncryptionEntry struct {
	ID              string
	CreatedAt       time.Time
	EncryptedBase64 string
}

type IdentityEntry struct {
	ID        string
	CreatedAt time.Time
	Name      string
	Email     string
	Location  string
}

func (e *EncryptionEntry) EntryID() string    { return e.ID }
func (e *EncryptionEntry) Created() time.Time { return e.CreatedAt }
func (e *EncryptionEntry) Kind() Kind         { return KindEncryption }
func (*EncryptionEntry) isEntry()             {}

func (e *IdentityEntry) EntryID() string    { return e.ID }
func (e *IdentityEntry) Created() time.Time { return e.CreatedAt }
func (e *IdentityEntry) Kind() Kind         { return KindIdentity }
func (*IdentityEntry) isEntry()             {}

// Wire forms. Field order and names match what the browser build wrote
// to localStorage, so an exported vault.json loads unchanged.
type encryptionJSON struct {
	ID              string `json:"id"`
	Type            Kind   `json:"type"`
	CreatedAt       int64  `json:"createdAt"`
	EncryptedBase64 string `json:"encryptedBase64"`
}

type identityJSON struct {
	ID        string `json:"id"`
	Type      Kind   `json:"type"`
	CreatedAt int64  `json:"createdAt"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Location  string `json:"location"`
}

// Marshal serializes entries as a JSON array in the given order.
func Marshal(entries []Entry) ([]byte, error) {
	wire := make([]any, 0, len(entries))
	for _, e := range entries {
		switch e := e.(type) {
		case *EncryptionEntry:
			wire = append(wire, encryptionJSON{
				ID:              e.ID,
				Type:            KindEncryption,
				CreatedAt:       e.CreatedAt.UnixMilli(),
				EncryptedBase64: e.EncryptedBase64,
			})
		case *IdentityEntry:
			wire = append(wire, identityJSON{
				ID:        e.ID,
				Type:      KindIdentity,
				CreatedAt: e.CreatedAt.UnixMilli(),
				Name:      e.Name,
				Email:     e.Email,
				Location:  e.Location,
			})
		default:
			return nil, fmt.Errorf("marshal entry: unknown type %T", e)
		}
	}
	return json.Marshal(wire)
}

// Unmarshal parses a JSON array of entries. Elements that are not
// objects, carry an unknown type, or lack an id are skipped; the
// number skipped is returned so callers can log it.
func Unmarshal(data []byte) ([]Entry, int, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("decode vault: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	skipped := 0
	for _, r := range raw {
		e, err := unmarshalEntry(r)
		if err != nil {
			skipped++
			continue
		}
		entries = append(entries, e)
	}
	return entries, skipped, nil
}

func unmarshalEntry(r json.RawMessage) (Entry, error) {
	var head struct {
		ID   string `json:"id"`
		Type Kind   `json:"type"`
	}
	if err := json.Unmarshal(r, &head); err != nil {
		return nil, err
	}
	if head.ID == "" {
		return nil, fmt.Errorf("entry without id")
	}

	switch head.Type {
	case KindEncryption:
		var w encryptionJSON
		if err := json.Unmarshal(r, &w); err != nil {
			return nil, err
		}
		return &EncryptionEntry{
			ID:              w.ID,
			CreatedAt:       time.UnixMilli(w.CreatedAt),
			EncryptedBase64: w.EncryptedBase64,
		}, nil
	case KindIdentity:
		var w identityJSON
		if err := json.Unmarshal(r, &w); err != nil {
			return nil, err
		}
		return &IdentityEntry{
			ID:        w.ID,
			CreatedAt: time.UnixMilli(w.CreatedAt),
			Name:      w.Name,
			Email:     w.Email,
			Location:  w.Location,
		}, nil
	default:
		return nil, fmt.Errorf("unknown entry type %q", head.Type)
	}
}
