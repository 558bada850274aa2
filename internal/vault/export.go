package vault

import (
	"fmt"
	"strings"

	"github.com/mtzanidakis/ghostgate/internal/identity"
)

// ExportHeader is the first line of every exported file.
const ExportHeader = "--- GHOSTGATE ENCRYPTED MESSAGE ---"

// Export is a downloadable plain-text rendition of one entry.
type Export struct {
	Filename string
	Content  string
}

// BuildExport renders entry for download. Encryption entries export
// their stored base64 only, even if the session has decrypted them.
func BuildExport(entry Entry) (Export, error) {
	var body string
	switch e := entry.(type) {
	case *EncryptionEntry:
		body = e.EncryptedBase64
	case *IdentityEntry:
		body = fmt.Sprintf("Identity\nName: %s\nEmail: %s\nLocation: %s", e.Name, e.Email, e.Location)
	default:
		return Export{}, fmt.Errorf("export entry: unknown type %T", entry)
	}

	return Export{
		Filename: fmt.Sprintf("ghostgate-%s-%s.txt", entry.Kind(), ShortID(entry.EntryID())),
		Content:  ExportHeader + "\n" + body + "\n",
	}, nil
}

func idSuffix(id string) string {
	if len(id) <= 6 {
		return id
	}
	return id[len(id)-6:]
}

const mask = "••••••••"

// MaskCiphertext shows the first and last four characters of a stored
// representation.
func MaskCiphertext(s string) string {
	if len(s) <= 8 {
		return mask
	}
	return s[:4] + mask + s[len(s)-4:]
}

// Row is the list view of one entry.
type Row struct {
	ID        string `json:"id"`
	Kind      Kind   `json:"type"`
	CreatedAt int64  `json:"created_at"`
	// Display is the masked ciphertext, or the decrypted text once
	// revealed in this session.
	Display  string `json:"display,omitempty"`
	Revealed bool   `json:"revealed"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Location string `json:"location,omitempty"`
}

func newRow(entry Entry, revealed map[string]string) Row {
	row := Row{
		ID:        entry.EntryID(),
		Kind:      entry.Kind(),
		CreatedAt: entry.Created().UnixMilli(),
	}
	switch e := entry.(type) {
	case *EncryptionEntry:
		if text, ok := revealed[e.ID]; ok {
			row.Display = text
			row.Revealed = true
		} else {
			row.Display = MaskCiphertext(e.EncryptedBase64)
		}
	case *IdentityEntry:
		row.Name = e.Name
		row.Email = identity.MaskEmail(e.Email)
		row.Location = e.Location
	}
	return row
}

// ShortID is the suffix used to refer to an entry in listings and
// export filenames.
func ShortID(id string) string {
	return idSuffix(id)
}

// Lookup finds the entry whose id equals ref or, failing that, the one
// entry whose id ends with ref. An ambiguous suffix is not found.
func Lookup(entries []Entry, ref string) (Entry, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if ref == "" {
		return nil, ErrEntryNotFound
	}
	var match Entry
	for _, e := range entries {
		id := strings.ToLower(e.EntryID())
		if id == ref {
			return e, nil
		}
		if strings.HasSuffix(id, ref) {
			if match != nil {
				return nil, ErrEntryNotFound
			}
			match = e
		}
	}
	if match == nil {
		return nil, ErrEntryNotFound
	}
	return match, nil
}
