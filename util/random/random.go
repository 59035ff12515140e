package random

import (
	"crypto/rand"
	"encoding/binary"
	"io"
)

// Uint64 returns a cryptographically random uint64 value. This is provided
// since the std lib random functions are not cryptographically secure.
func Uint64() (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}
