package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Key derivation parameters. Changing these invalidates every stored
// ciphertext, so they are fixed.
const (
	kdfIterations = 100_000
	kdfKeyLength  = 32
	saltBytes     = 16
)

var (
	// ErrDecryptFailed indicates the ciphertext could not be authenticated
	// or decrypted with the derived key.
	ErrDecryptFailed = errors.New("security: decrypt failed")
	// ErrMissingMasterKey indicates the process master secret is unset.
	ErrMissingMasterKey = errors.New("security: master key is not configured")
)

// Cipher encrypts and decrypts bearer secrets with AES-256-GCM under keys
// derived per record: PBKDF2-HMAC-SHA256 over the process master secret and
// the record's own salt. Two records encrypting the same plaintext share
// nothing, so there is no stored value an attacker can index or match
// against.
type Cipher struct {
	master []byte
}

// NewCipher constructs a Cipher from the process master secret.
func NewCipher(master string) (*Cipher, error) {
	if master == "" {
		return nil, ErrMissingMasterKey
	}
	return &Cipher{master: []byte(master)}, nil
}

// NewSalt returns a fresh hex-encoded key-derivation salt (16 random bytes,
// 32 hex characters).
func NewSalt() (string, error) {
	raw := make([]byte, saltBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("security: generate salt: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// deriveKey derives the record key from the master secret and the hex salt.
func (c *Cipher) deriveKey(saltHex string) ([]byte, error) {
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return nil, fmt.Errorf("security: decode salt: %w", err)
	}
	return pbkdf2.Key(c.master, salt, kdfIterations, kdfKeyLength, sha256.New), nil
}

// Encrypt seals the plaintext under a key derived from saltHex. An empty
// saltHex generates a fresh salt; the salt actually used is returned and
// must be stored alongside the ciphertext. The GCM nonce is prefixed to the
// returned ciphertext.
func (c *Cipher) Encrypt(plaintext, saltHex string) ([]byte, string, error) {
	if saltHex == "" {
		fresh, err := NewSalt()
		if err != nil {
			return nil, "", err
		}
		saltHex = fresh
	}

	aead, err := c.aead(saltHex)
	if err != nil {
		return nil, "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, errRead := io.ReadFull(rand.Reader, nonce); errRead != nil {
		return nil, "", fmt.Errorf("security: generate nonce: %w", errRead)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealed, saltHex, nil
}

// Decrypt opens a nonce-prefixed ciphertext under the key derived from
// saltHex. Authentication failure returns ErrDecryptFailed; for credential
// matching that is a no-match signal, not an error condition.
func (c *Cipher) Decrypt(ciphertext []byte, saltHex string) (string, error) {
	aead, err := c.aead(saltHex)
	if err != nil {
		return "", err
	}
	if len(ciphertext) < aead.NonceSize() {
		return "", ErrDecryptFailed
	}

	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, errOpen := aead.Open(nil, nonce, sealed, nil)
	if errOpen != nil {
		return "", ErrDecryptFailed
	}
	return string(plaintext), nil
}

// aead builds the AES-GCM AEAD for the given salt.
func (c *Cipher) aead(saltHex string) (cipher.AEAD, error) {
	key, err := c.deriveKey(saltHex)
	if err != nil {
		return nil, err
	}
	block, errCipher := aes.NewCipher(key)
	if errCipher != nil {
		return nil, fmt.Errorf("security: new cipher: %w", errCipher)
	}
	aead, errGCM := cipher.NewGCM(block)
	if errGCM != nil {
		return nil, fmt.Errorf("security: new gcm: %w", errGCM)
	}
	return aead, nil
}
