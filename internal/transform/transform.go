// Package transform implements the vault's keyed reversible
// obfuscation: the UTF-8 bytes of the message XORed with the repeating
// UTF-8 bytes of the key, carried as standard base64.
//
// This is not encryption. It keeps stored entries from being readable
// at a glance and nothing more; output must stay byte-for-byte stable
// for existing vaults, so it must not be swapped for a real cipher.
package transform

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"
)

const (
	// KeyMissing is returned by Encode and Decode when the key is empty
	// or whitespace only.
	KeyMissing = "(Key fehlt)"

	// DecodeFailed is returned by Decode when the input is not base64 or
	// the unmasked bytes are not valid UTF-8.
	DecodeFailed = "(Entschlüsselung fehlgeschlagen – falscher Key?)"
)

// Encode masks plaintext with key and returns the base64 form.
func Encode(plaintext, key string) string {
	if blank(key) {
		return KeyMissing
	}
	return base64.StdEncoding.EncodeToString(xor([]byte(plaintext), []byte(key)))
}

// Decode reverses Encode. A wrong key yields whatever the bytes decode
// to; it never panics.
func Decode(representation, key string) string {
	if blank(key) {
		return KeyMissing
	}
	raw, err := base64.StdEncoding.DecodeString(representation)
	if err != nil {
		return DecodeFailed
	}
	out := xor(raw, []byte(key))
	if !utf8.Valid(out) {
		return DecodeFailed
	}
	return string(out)
}

// IsSentinel reports whether s is one of the fixed non-content results.
func IsSentinel(s string) bool {
	return s == KeyMissing || s == DecodeFailed
}

func xor(data, key []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out
}

func blank(key string) bool {
	return strings.TrimSpace(key) == ""
}
