package shortcode

import "math/rand/v2"

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// DefaultLength is the code length used for generated (non-alias) codes.
// 62^7 candidate codes is comfortably larger than any realistic record
// count, so collisions are resolved by a short retry loop at the store.
const DefaultLength = 7

// Generator produces pseudo-random fixed-length short codes.
// It never fails and holds no state worth sharing; uniqueness is
// enforced by the record store, not here.
type Generator struct {
	length int
}

// New creates a generator producing codes of the given length.
// Non-positive lengths fall back to DefaultLength.
func New(length int) *Generator {
	if length <= 0 {
		length = DefaultLength
	}
	return &Generator{length: length}
}

// Generate returns a new random code.
func (g *Generator) Generate() string {
	code := make([]byte, g.length)
	for i := range code {
		code[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(code)
}
