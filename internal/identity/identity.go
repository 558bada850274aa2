// Package identity generates the synthetic "ghost" identities stored in
// the vault. Nothing here refers to real people or real mailboxes.
package identity

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
)

// Domain is the mail domain of every generated address.
const Domain = "ghostgate.com"

var (
	firstNames = []string{"Nova", "Milo", "Skye", "Ari", "Lena", "Kai", "Zoe", "Noah", "Mira", "Juno"}
	lastNames  = []string{"Voss", "Kade", "Nyx", "Sterling", "Haze", "Onyx", "Vale", "Cipher", "Crow", "Rune"}
	locations  = []string{
		"Zurich, CH",
		"Tokyo, JP",
		"Berlin, DE",
		"Reykjavík, IS",
		"Singapore, SG",
		"Helsinki, FI",
		"Lisbon, PT",
		"Seoul, KR",
		"Vancouver, CA",
	}

	whitespace = regexp.MustCompile(`\s+`)
	nonHandle  = regexp.MustCompile(`[^a-z.]`)
)

type Identity struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Location string `json:"location"`
}

// Generator draws identities from a random source. It is not safe for
// concurrent use; callers serialize access.
type Generator struct {
	rnd *rand.Rand
}

// New returns a Generator over src. A nil src seeds from the runtime.
func New(src rand.Source) *Generator {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Generator{rnd: rand.New(src)}
}

func (g *Generator) Generate() Identity {
	name := g.pick(firstNames) + " " + g.pick(lastNames)
	handle := whitespace.ReplaceAllString(strings.ToLower(name), ".")
	handle = nonHandle.ReplaceAllString(handle, "")
	suffix := 100 + g.rnd.IntN(900)

	return Identity{
		Name:     name,
		Email:    fmt.Sprintf("%s.%d@%s", handle, suffix, Domain),
		Location: g.pick(locations),
	}
}

func (g *Generator) pick(from []string) string {
	return from[g.rnd.IntN(len(from))]
}

var maskPattern = regexp.MustCompile(`^(.{2}).*(@.*)$`)

// MaskEmail keeps the first two characters and the domain:
// "nova.voss.123@ghostgate.com" becomes "no***@ghostgate.com".
// Addresses too short to mask are returned unchanged.
func MaskEmail(email string) string {
	return maskPattern.ReplaceAllString(email, "${1}***${2}")
}
