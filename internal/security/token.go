package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GameTokenLength is the length of issued game-session bearer tokens.
const GameTokenLength = 64

// GenerateToken returns a cryptographically random alphanumeric string of
// the given length.
func GenerateToken(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("security: invalid token length %d", length)
	}
	max := big.NewInt(int64(len(tokenAlphabet)))
	out := make([]byte, length)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("security: generate token: %w", err)
		}
		out[i] = tokenAlphabet[idx.Int64()]
	}
	return string(out), nil
}

// GenerateBackupCodes returns count random codes of the given length.
func GenerateBackupCodes(count, length int) ([]string, error) {
	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		code, err := GenerateToken(length)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}
