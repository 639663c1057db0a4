// Package credential authenticates opaque bearer secrets that are stored
// only as independently salted ciphertexts, never as matchable plaintext or
// fast hashes.
package credential

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/teealloy/accountd/internal/models"
	"github.com/teealloy/accountd/internal/security"
)

// Match finds the candidate whose decrypted plaintext equals the presented
// secret. For each candidate a key is derived from that record's own salt
// and authenticated decryption is attempted; a decryption failure is a
// no-match for that candidate, not an error. Plaintexts are compared in
// constant time after trimming incidental whitespace on both sides, and
// scanning stops at the first hit. A nil return is the normal no-match
// outcome.
//
// This is an O(n) scan with a key derivation per candidate. It trades
// index-ability for never storing a plaintext-equivalent lookup key;
// callers bound the candidate set (validity window, per-user filters) to
// keep latency acceptable, and must pass candidates in a stable order.
func Match(cipher *security.Cipher, candidates []models.EncryptedCredential, presented string) *models.EncryptedCredential {
	trimmed := strings.TrimSpace(presented)
	if trimmed == "" {
		return nil
	}

	for i := range candidates {
		candidate := &candidates[i]
		if candidate.Salt == "" {
			continue
		}
		plaintext, err := cipher.Decrypt(candidate.Ciphertext, candidate.Salt)
		if err != nil {
			if errors.Is(err, security.ErrDecryptFailed) {
				continue
			}
			// Malformed salt on a stored record; treat as no-match too.
			continue
		}
		if equalConstantTime(strings.TrimSpace(plaintext), trimmed) {
			return candidate
		}
	}
	return nil
}

// equalConstantTime compares two strings without leaking match position
// through timing. Length still leaks, which is inherent to the comparison.
func equalConstantTime(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
