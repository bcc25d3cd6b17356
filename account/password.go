package account

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/YuHyungmin1226/flask-sns-app/models"
)

const MinPasswordLength = 6

var (
	ErrWrongPassword    = errors.New("current password is incorrect")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrEmptyUsername    = errors.New("username is required")
	ErrUsernameTaken    = errors.New("username already exists")
)

// ChangePassword replaces the user's password once the current one checks
// out. Nothing is written when a check fails.
func ChangePassword(db *gorm.DB, user *models.User, current, next, confirm string) error {
	if !checkPasswordHash(current, user.PasswordHash) {
		return ErrWrongPassword
	}
	if next != confirm {
		return ErrPasswordMismatch
	}
	if len(next) < MinPasswordLength {
		return ErrPasswordTooShort
	}

	hash, err := hashPassword(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	err = db.Model(user).Select("password_hash", "password_changed").Updates(models.User{
		PasswordHash:    hash,
		PasswordChanged: true,
	}).Error
	if err != nil {
		return fmt.Errorf("save password: %w", err)
	}
	user.PasswordHash = hash
	user.PasswordChanged = true
	return nil
}

// Register creates a member account. Like every new account it starts with
// PasswordChanged unset, so the default-password check still applies.
func Register(db *gorm.DB, username, password, confirm string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrEmptyUsername
	}
	if password != confirm {
		return nil, ErrPasswordMismatch
	}
	if len(password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}

	var count int64
	if err := db.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if count > 0 {
		return nil, ErrUsernameTaken
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Username:     username,
		PasswordHash: hash,
		Role:         models.RoleMember,
	}
	if err := db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &user, nil
}
