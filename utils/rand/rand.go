// Package rand draws uniform randoms from the system RNG through crypto/rand.
//
// Sync nonces and peer selection must not be predictable by peers, so the
// services use this package instead of math/rand. A failing system RNG is an
// irrecoverable condition: callers wrap the returned errors as exceptions.
package rand

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// Uint64 returns a random uint64.
func Uint64() (uint64, error) {
	var buffer [8]byte
	if _, err := rand.Read(buffer[:]); err != nil {
		return 0, fmt.Errorf("could not read system randomness: %w", err)
	}
	return binary.LittleEndian.Uint64(buffer[:]), nil
}

// Uint64n returns a random uint64 in [0, n). n must be positive.
func Uint64n(n uint64) (uint64, error) {
	if n == 0 {
		return 0, fmt.Errorf("upper bound must be positive")
	}
	max := n - 1
	size := 0
	for tmp := max; tmp != 0; tmp >>= 8 {
		size++
	}
	mask := uint64(0)
	for max&mask != max {
		mask = (mask << 1) | 1
	}

	// rejection sampling on the bit length of max keeps the result uniform
	var buffer [8]byte
	random := n
	for random > max {
		if _, err := rand.Read(buffer[:size]); err != nil {
			return 0, fmt.Errorf("could not read system randomness: %w", err)
		}
		random = binary.LittleEndian.Uint64(buffer[:]) & mask
	}
	return random, nil
}

// Intn returns a random int in [0, n). n must be positive.
func Intn(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("upper bound must be positive, got %d", n)
	}
	r, err := Uint64n(uint64(n))
	return int(r), err
}

// Shuffle permutes n elements in place through swap (Fisher-Yates).
func Shuffle(n int, swap func(i, j int)) error {
	for i := n - 1; i > 0; i-- {
		j, err := Intn(i + 1)
		if err != nil {
			return err
		}
		swap(i, j)
	}
	return nil
}
