package credential

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/crypto/bcrypt"
)

// Hasher defines the one-way hashing used for passwords and OTPs at rest.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(hash, secret string) bool
	NeedsRehash(hash string) bool
}

// BcryptHasher implementation. Costs below bcrypt.DefaultCost are raised to it.
type BcryptHasher struct{ Cost int }

// DefaultCost is used when BCRYPT_COST is unset or invalid.
const DefaultCost = 12

// CostFromEnv reads BCRYPT_COST.
func CostFromEnv() int {
	if c, err := strconv.Atoi(os.Getenv("BCRYPT_COST")); err == nil && c > 0 {
		return c
	}
	return DefaultCost
}

func NewBcryptHasher(cost int) BcryptHasher {
	return BcryptHasher{Cost: cost}
}

func (b BcryptHasher) cost() int {
	if b.Cost < bcrypt.DefaultCost {
		return bcrypt.DefaultCost
	}
	if b.Cost > bcrypt.MaxCost {
		return bcrypt.MaxCost
	}
	return b.Cost
}

func (b BcryptHasher) Hash(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), b.cost())
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// NeedsRehash reports whether hash was produced with a different cost than configured.
func (b BcryptHasher) NeedsRehash(hash string) bool {
	c, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return c != b.cost()
}
