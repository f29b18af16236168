// Package credential hashes and verifies user secrets (passwords and administrator PINs).
package credential

import (
	"golang.org/x/crypto/bcrypt"
)

// Store hashes and verifies secrets with a slow, salted, one-way scheme.
type Store interface {
	Hash(plain string) ([]byte, error)
	Verify(plain string, hash []byte) bool
}

type bcryptStore struct {
	cost int
}

var _ Store = (*bcryptStore)(nil)

// NewBcryptStore returns a bcrypt backed Store. Costs outside bcrypt's range fall back to bcrypt.DefaultCost.
func NewBcryptStore(cost int) Store {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &bcryptStore{cost: cost}
}

func (s *bcryptStore) Hash(plain string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plain), s.cost)
}

func (s *bcryptStore) Verify(plain string, hash []byte) bool {
	if len(hash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(plain)) == nil
}
