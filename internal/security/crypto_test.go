package security

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	cipher, err := NewCipher("test-master-secret")
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}

	sealed, salt, errEncrypt := cipher.Encrypt("the-plaintext-secret", "")
	if errEncrypt != nil {
		t.Fatalf("encrypt: %v", errEncrypt)
	}
	if len(salt) != 32 {
		t.Fatalf("expected a 32-char hex salt, got %d chars", len(salt))
	}

	plaintext, errDecrypt := cipher.Decrypt(sealed, salt)
	if errDecrypt != nil {
		t.Fatalf("decrypt: %v", errDecrypt)
	}
	if plaintext != "the-plaintext-secret" {
		t.Fatalf("expected round-trip plaintext, got %q", plaintext)
	}
}

func TestEncryptReusesProvidedSalt(t *testing.T) {
	cipher, err := NewCipher("test-master-secret")
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	salt, errSalt := NewSalt()
	if errSalt != nil {
		t.Fatalf("new salt: %v", errSalt)
	}

	sealed, used, errEncrypt := cipher.Encrypt("payload", salt)
	if errEncrypt != nil {
		t.Fatalf("encrypt: %v", errEncrypt)
	}
	if used != salt {
		t.Fatalf("expected the provided salt back, got %q", used)
	}
	if plaintext, errDecrypt := cipher.Decrypt(sealed, salt); errDecrypt != nil || plaintext != "payload" {
		t.Fatalf("decrypt under provided salt: %q, %v", plaintext, errDecrypt)
	}
}

func TestEncryptSamePlaintextDiffers(t *testing.T) {
	cipher, err := NewCipher("test-master-secret")
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}

	firstSealed, firstSalt, errFirst := cipher.Encrypt("same-secret", "")
	if errFirst != nil {
		t.Fatalf("first encrypt: %v", errFirst)
	}
	secondSealed, secondSalt, errSecond := cipher.Encrypt("same-secret", "")
	if errSecond != nil {
		t.Fatalf("second encrypt: %v", errSecond)
	}
	if firstSalt == secondSalt {
		t.Fatalf("expected distinct salts per record")
	}
	if string(firstSealed) == string(secondSealed) {
		t.Fatalf("expected distinct ciphertexts for the same plaintext")
	}
}

func TestDecryptFailures(t *testing.T) {
	cipher, err := NewCipher("test-master-secret")
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	sealed, salt, errEncrypt := cipher.Encrypt("payload", "")
	if errEncrypt != nil {
		t.Fatalf("encrypt: %v", errEncrypt)
	}

	// Wrong salt derives a different key.
	otherSalt, errSalt := NewSalt()
	if errSalt != nil {
		t.Fatalf("new salt: %v", errSalt)
	}
	if _, errDecrypt := cipher.Decrypt(sealed, otherSalt); !errors.Is(errDecrypt, ErrDecryptFailed) {
		t.Fatalf("expected ErrDecryptFailed with a wrong salt, got %v", errDecrypt)
	}

	// Tampered ciphertext fails authentication.
	tampered := append([]byte{}, sealed...)
	tampered[len(tampered)-1] ^= 0xff
	if _, errDecrypt := cipher.Decrypt(tampered, salt); !errors.Is(errDecrypt, ErrDecryptFailed) {
		t.Fatalf("expected ErrDecryptFailed for tampered ciphertext, got %v", errDecrypt)
	}

	// Shorter than a nonce cannot be a valid ciphertext.
	if _, errDecrypt := cipher.Decrypt([]byte{1, 2, 3}, salt); !errors.Is(errDecrypt, ErrDecryptFailed) {
		t.Fatalf("expected ErrDecryptFailed for a truncated ciphertext, got %v", errDecrypt)
	}

	// Different master secret.
	other, errOther := NewCipher("a-different-master")
	if errOther != nil {
		t.Fatalf("new cipher: %v", errOther)
	}
	if _, errDecrypt := other.Decrypt(sealed, salt); !errors.Is(errDecrypt, ErrDecryptFailed) {
		t.Fatalf("expected ErrDecryptFailed under a different master, got %v", errDecrypt)
	}
}

func TestNewCipherRequiresMaster(t *testing.T) {
	if _, err := NewCipher(""); !errors.Is(err, ErrMissingMasterKey) {
		t.Fatalf("expected ErrMissingMasterKey, got %v", err)
	}
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == "hunter22" {
		t.Fatalf("password stored unhashed")
	}
	if !CheckPassword(hash, "hunter22") {
		t.Fatalf("expected the correct password to verify")
	}
	if CheckPassword(hash, "hunter23") {
		t.Fatalf("expected a wrong password to fail")
	}
}

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken(GameTokenLength)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if len(token) != GameTokenLength {
		t.Fatalf("expected length=%d, got %d", GameTokenLength, len(token))
	}
	for _, r := range token {
		if !strings.ContainsRune(tokenAlphabet, r) {
			t.Fatalf("unexpected character %q in token", r)
		}
	}

	other, errOther := GenerateToken(GameTokenLength)
	if errOther != nil {
		t.Fatalf("generate second token: %v", errOther)
	}
	if token == other {
		t.Fatalf("expected distinct tokens")
	}

	if _, errBad := GenerateToken(0); errBad == nil {
		t.Fatalf("expected an error for a zero length")
	}
}

func TestGenerateBackupCodes(t *testing.T) {
	codes, err := GenerateBackupCodes(10, 10)
	if err != nil {
		t.Fatalf("generate backup codes: %v", err)
	}
	if len(codes) != 10 {
		t.Fatalf("expected 10 codes, got %d", len(codes))
	}
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		if len(code) != 10 {
			t.Fatalf("expected 10-char codes, got %q", code)
		}
		if seen[code] {
			t.Fatalf("duplicate backup code %q", code)
		}
		seen[code] = true
	}
}

func TestSessionTokenRoundTrip(t *testing.T) {
	signed, err := SignSessionToken("session-secret", "user-123", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	subject, errParse := ParseSessionToken("session-secret", signed)
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if subject != "user-123" {
		t.Fatalf("expected subject=user-123, got %q", subject)
	}

	if _, errWrong := ParseSessionToken("other-secret", signed); !errors.Is(errWrong, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken with a wrong secret, got %v", errWrong)
	}

	expired, errExpired := SignSessionToken("session-secret", "user-123", -time.Hour)
	if errExpired != nil {
		t.Fatalf("sign expired: %v", errExpired)
	}
	if _, errParseExpired := ParseSessionToken("session-secret", expired); !errors.Is(errParseExpired, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for an expired token, got %v", errParseExpired)
	}

	if _, errGarbage := ParseSessionToken("session-secret", "not.a.token"); !errors.Is(errGarbage, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage input, got %v", errGarbage)
	}
}
