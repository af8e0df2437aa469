package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"math/big"
	"strconv"
)

const (
	otpMin     = 100000
	otpSpan    = 900000
	tokenBytes = 32
)

// Generator produces one-time passcodes and opaque tokens.
type Generator interface {
	OTP() (string, error)
	Token() (string, error)
}

// RandomGenerator draws from crypto/rand (or any io.Reader supplied for tests).
type RandomGenerator struct {
	Reader io.Reader
}

func NewRandomGenerator() *RandomGenerator {
	return &RandomGenerator{Reader: rand.Reader}
}

func (g *RandomGenerator) reader() io.Reader {
	if g.Reader == nil {
		return rand.Reader
	}
	return g.Reader
}

// OTP returns a 6-digit code uniform over [100000, 999999].
func (g *RandomGenerator) OTP() (string, error) {
	n, err := rand.Int(g.reader(), big.NewInt(otpSpan))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+otpMin, 10), nil
}

// Token returns 32 random bytes encoded base64url without padding.
func (g *RandomGenerator) Token() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := io.ReadFull(g.reader(), b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Digest returns the hex SHA-256 of a high-entropy token, for lookup columns.
func Digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
