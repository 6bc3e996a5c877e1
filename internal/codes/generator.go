// Package codes implements access-code generation and the registry that
// owns every code's name and status.
package codes

import (
	cryptorand "crypto/rand"
	mathrand "math/rand"
)

// Alphabet omits visually confusable characters (0/O, 1/I/L).
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// DefaultLength gives ~2^40 possible codes over the 32-symbol alphabet.
// Collisions are possible; callers that require uniqueness must check
// against their own collection (see Registry).
const DefaultLength = 8

// Generate returns length independent symbols from Alphabet. It prefers
// the crypto-strength source and falls back to math/rand only if that
// source fails. Pure function of its input, no shared state.
func Generate(length int) string {
	out := make([]byte, length)
	buf := make([]byte, length)
	if _, err := cryptorand.Read(buf); err != nil {
		for i := range buf {
			buf[i] = byte(mathrand.Intn(256))
		}
	}
	for i, b := range buf {
		out[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return string(out)
}
