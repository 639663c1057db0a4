package models

import "time"

// CredentialKind enumerates the bearer secrets stored only in encrypted form.
type CredentialKind string

// Credential kinds.
const (
	CredentialGameToken   CredentialKind = "game_token"   // Opaque game-session bearer token.
	CredentialTOTPSecret  CredentialKind = "totp_secret"  // TOTP shared secret.
	CredentialBackupCodes CredentialKind = "backup_codes" // Comma-delimited backup code set.
)

// EncryptedCredential stores a bearer secret as AEAD ciphertext with a
// per-record key-derivation salt. No plaintext or fast-lookup hash is ever
// stored; testing ownership of a presented secret requires deriving the
// record's key from its own salt and attempting decryption.
type EncryptedCredential struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID string         `gorm:"type:varchar(36);not null;uniqueIndex:idx_credential_user_kind"` // Owning user.
	Kind   CredentialKind `gorm:"type:varchar(32);not null;uniqueIndex:idx_credential_user_kind"` // Secret kind.

	Ciphertext []byte `gorm:"type:bytea;not null"`       // AEAD ciphertext, nonce-prefixed.
	Salt       string `gorm:"type:varchar(32);not null"` // Hex key-derivation salt, 16 random bytes.

	LastUsedAt *time.Time // Last successful match.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last rotation or consume.
}
