package auth

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	// SessionTokenLength is the number of base58 characters in a session token.
	SessionTokenLength = 24

	// RandomPasswordLength is the number of base58 characters in generated passwords.
	RandomPasswordLength = 48
)

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// ExistsFunc reports whether token is already in use.
type ExistsFunc func(ctx context.Context, token string) (bool, error)

// GenerateToken draws zero padded decimal tokens of the given length until
// exists reports an unused one.
func GenerateToken(ctx context.Context, length int, exists ExistsFunc) (string, error) {
	if length <= 0 {
		return "", newConfigurationError("token length must be positive", map[string]any{
			"length": length,
		})
	}

	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		token := padToken(n.String(), length)

		if exists == nil {
			return token, nil
		}

		taken, err := exists(ctx, token)
		if err != nil {
			return "", err
		}
		if !taken {
			return token, nil
		}
	}
}

func padToken(digits string, length int) string {
	if len(digits) >= length {
		return digits
	}
	return strings.Repeat("0", length-len(digits)) + digits
}

// NewSessionToken returns an opaque session token.
func NewSessionToken() (string, error) {
	return randomBase58(SessionTokenLength)
}

// NewRandomPassword returns a high entropy password.
func NewRandomPassword() (string, error) {
	return randomBase58(RandomPasswordLength)
}

func randomBase58(n int) (string, error) {
	max := big.NewInt(int64(len(base58Alphabet)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(base58Alphabet[idx.Int64()])
	}
	return b.String(), nil
}
