package utils

import (
	"crypto/rand"
	"hash/fnv"
	"math/big"
	mathrand "math/rand/v2"
)

const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateRandomID generates a random string of length n
func GenerateRandomID(n int) string {
	b := make([]byte, n)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return ""
		}
		b[i] = charset[num.Int64()]
	}
	return string(b)
}

// SeededRand returns a PCG generator derived only from the seed string.
// Equal seeds always produce equal sequences.
func SeededRand(seed string) *mathrand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	hi := h.Sum64()
	_, _ = h.Write([]byte{0x9e, 0x37, 0x79, 0xb9})
	lo := h.Sum64()
	return mathrand.New(mathrand.NewPCG(hi, lo))
}
