package provider

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// PlaceholderVector produces a deterministic unit-norm vector of the given
// dimension, seeded from the text. It stands in for a real embedding when no
// provider credential is available, so the pipeline never blocks on missing
// configuration. Identical text always yields an identical vector, which
// keeps retries and re-submissions stable.
func PlaceholderVector(text string, dimension int) []float64 {
	if dimension <= 0 {
		return nil
	}

	seed := sha256.Sum256([]byte(text))
	vector := make([]float64, dimension)

	// Derive one 8-byte value per component by hashing the seed with a
	// block counter, four components per digest.
	var counter [8]byte
	var digest [sha256.Size]byte
	var norm float64
	for i := range vector {
		if i%4 == 0 {
			binary.BigEndian.PutUint64(counter[:], uint64(i/4))
			h := sha256.New()
			h.Write(seed[:])
			h.Write(counter[:])
			h.Sum(digest[:0])
		}
		bits := binary.BigEndian.Uint64(digest[(i%4)*8 : (i%4)*8+8])
		// Map to [-1, 1).
		vector[i] = float64(int64(bits)) / math.MaxInt64
		norm += vector[i] * vector[i]
	}

	if norm > 0 {
		scale := 1 / math.Sqrt(norm)
		for i := range vector {
			vector[i] *= scale
		}
	}
	return vector
}
