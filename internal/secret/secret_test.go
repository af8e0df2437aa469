package secret

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestOTP_RangeAndFormat(t *testing.T) {
	g := NewRandomGenerator()
	for i := 0; i < 500; i++ {
		otp, err := g.OTP()
		require.NoError(t, err)
		require.Len(t, otp, 6)
		n, err := strconv.Atoi(otp)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 100000)
		assert.LessOrEqual(t, n, 999999)
	}
}

func TestOTP_LowestDraw(t *testing.T) {
	g := &RandomGenerator{Reader: bytes.NewReader(make([]byte, 64))}
	otp, err := g.OTP()
	require.NoError(t, err)
	assert.Equal(t, "100000", otp)
}

func TestToken_Entropy(t *testing.T) {
	g := NewRandomGenerator()
	a, err := g.Token()
	require.NoError(t, err)
	b, err := g.Token()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	raw, err := base64.RawURLEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}

func TestReaderFailure(t *testing.T) {
	g := &RandomGenerator{Reader: failingReader{}}
	_, err := g.OTP()
	assert.Error(t, err)
	_, err = g.Token()
	assert.Error(t, err)
}

func TestDigest(t *testing.T) {
	assert.Len(t, Digest("abc"), 64)
	assert.Equal(t, Digest("abc"), Digest("abc"))
	assert.NotEqual(t, Digest("abc"), Digest("abd"))
}
