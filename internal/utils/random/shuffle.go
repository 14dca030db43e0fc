package random

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Shuffler reorders a draw pool in place. The engine takes one so tests can
// swap in a deterministic order.
type Shuffler interface {
	Shuffle(tickets []int) error
}

// CryptoShuffler is the production Shuffler backed by crypto/rand.
type CryptoShuffler struct{}

func (CryptoShuffler) Shuffle(tickets []int) error {
	return Shuffle(tickets)
}

// Shuffle performs a cryptographically secure Fisher-Yates shuffle of the slice.
func Shuffle[T any](slice []T) error {
	for i := len(slice) - 1; i > 0; i-- {
		jBig, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return fmt.Errorf("failed to generate random number: %w", err)
		}
		j := int(jBig.Int64())
		slice[i], slice[j] = slice[j], slice[i]
	}
	return nil
}

// Sample returns n elements drawn uniformly without replacement from pool.
// pool itself is left untouched.
func Sample(s Shuffler, pool []int, n int) ([]int, error) {
	if n < 0 || n > len(pool) {
		return nil, fmt.Errorf("sample size %d out of bounds for pool of %d", n, len(pool))
	}
	work := make([]int, len(pool))
	copy(work, pool)
	if err := s.Shuffle(work); err != nil {
		return nil, err
	}
	return work[:n], nil
}
