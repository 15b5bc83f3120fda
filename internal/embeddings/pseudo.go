package embeddings

import (
	"crypto/sha256"
	"encoding/binary"
)

// PseudoVector deterministically derives a vector from the text content.
//
// It is used whenever the embedding provider is unavailable: identical text
// always yields the identical vector, so memoization, cache keys, and
// round-trip similarity all behave consistently even fully offline. The
// values carry no semantic meaning; only ranking quality degrades.
//
// The SHA-256 digest of the text seeds an xorshift generator whose outputs
// are mapped into [-1, 1).
func PseudoVector(text string, dimension int) []float32 {
	digest := sha256.Sum256([]byte(text))
	state := binary.BigEndian.Uint64(digest[:8])
	// A zero state would lock xorshift at zero forever.
	if state == 0 {
		state = binary.BigEndian.Uint64(digest[8:16]) | 1
	}

	vector := make([]float32, dimension)
	for i := range vector {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		vector[i] = float32(int64(state%2000)-1000) / 1000
	}
	return vector
}
