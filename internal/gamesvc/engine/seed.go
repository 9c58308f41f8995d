package engine

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// newSeed draws a round seed from the operating system's CSPRNG.
func newSeed() (int64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("read round seed: %w", err)
	}
	return int64(binary.BigEndian.Uint64(buf[:]) >> 1), nil
}
