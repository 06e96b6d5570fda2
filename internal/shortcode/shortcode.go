// Package shortcode produces the random tokens that identify links.
package shortcode

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	Length   = 6
)

// Generator draws codes from a cryptographically secure source. The zero
// value is not usable, use New.
type Generator struct {
	alphabet string
	length   int
}

func New() *Generator {
	return &Generator{alphabet: Alphabet, length: Length}
}

// Generate returns a fresh candidate code. An error means the system entropy
// source failed and the caller cannot recover from it.
func (g *Generator) Generate() (string, error) {
	code, err := gonanoid.Generate(g.alphabet, g.length)
	if err != nil {
		return "", fmt.Errorf("failed to generate short code: %w", err)
	}
	return strings.ToUpper(code), nil
}

// IsValid reports whether s could have been produced by a Generator.
func IsValid(s string) bool {
	if len(s) != Length {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune(Alphabet, r) {
			return false
		}
	}
	return true
}
