// Package account owns user registration and password authentication.
package account

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/teealloy/accountd/internal/models"
	"github.com/teealloy/accountd/internal/security"
)

var (
	// ErrInvalidUsername indicates the username violates the format rules.
	ErrInvalidUsername = errors.New("account: username must be 6-32 characters of letters, digits and underscores, starting with a letter or digit")
	// ErrInvalidNickname indicates the nickname length is out of range.
	ErrInvalidNickname = errors.New("account: nickname must be 1-16 characters")
	// ErrPasswordTooShort indicates the password is shorter than 6 characters.
	ErrPasswordTooShort = errors.New("account: password must be at least 6 characters")
	// ErrUsernameTaken indicates the username is already registered.
	ErrUsernameTaken = errors.New("account: username already exists")
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_]{5,31}$`)

// Service manages user accounts.
type Service struct {
	db *gorm.DB
}

// NewService constructs an account Service.
func NewService(conn *gorm.DB) *Service {
	return &Service{db: conn}
}

// Create registers a new account and returns its ID.
func (s *Service) Create(ctx context.Context, username, nickname, password string) (string, error) {
	if !usernamePattern.MatchString(username) {
		return "", ErrInvalidUsername
	}
	if len(nickname) < 1 || len(nickname) > 16 {
		return "", ErrInvalidNickname
	}
	if len(password) < 6 {
		return "", ErrPasswordTooShort
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return "", errHash
	}

	userID := uuid.NewString()
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if errCount := tx.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; errCount != nil {
			return fmt.Errorf("account: check username: %w", errCount)
		}
		if count > 0 {
			return ErrUsernameTaken
		}
		user := models.User{
			ID:       userID,
			Username: username,
			Nickname: nickname,
			Password: hash,
		}
		if errCreate := tx.Create(&user).Error; errCreate != nil {
			return fmt.Errorf("account: create user: %w", errCreate)
		}
		return nil
	})
	if errTx != nil {
		return "", errTx
	}
	return userID, nil
}

// Authenticate verifies a username/password pair. A nil user with a nil
// error means the credentials did not match; callers treat that as a normal
// outcome, not a failure.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	var rows []models.User
	errFind := s.db.WithContext(ctx).
		Where("username = ?", username).
		Limit(1).
		Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("account: load user: %w", errFind)
	}
	if len(rows) == 0 || !security.CheckPassword(rows[0].Password, password) {
		return nil, nil
	}
	return &rows[0], nil
}

// Get returns the user by ID, nil when absent.
func (s *Service) Get(ctx context.Context, userID string) (*models.User, error) {
	var rows []models.User
	errFind := s.db.WithContext(ctx).
		Where("id = ?", userID).
		Limit(1).
		Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("account: load user: %w", errFind)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// TouchLastLogin records a successful interactive login.
func (s *Service) TouchLastLogin(ctx context.Context, userID string) error {
	errUpdate := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_login", time.Now().UTC()).Error
	if errUpdate != nil {
		return fmt.Errorf("account: touch last login: %w", errUpdate)
	}
	return nil
}
