package internal

import (
	"crypto/rand"
	"errors"
	"math/big"

	"github.com/google/uuid"
)

// CryptoSource draws identifiers and integers from crypto/rand.
type CryptoSource struct{}

// NewID returns a random UUIDv4 string.
func (CryptoSource) NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Intn returns a uniform integer in [0, n).
func (CryptoSource) Intn(n int64) (int64, error) {
	if n <= 0 {
		return 0, errors.New("intn bound must be > 0")
	}
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0, err
	}
	return v.Int64(), nil
}
