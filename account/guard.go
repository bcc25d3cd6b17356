package account

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/YuHyungmin1226/flask-sns-app/models"
)

const (
	MaxLoginAttempts = 5
	LockDuration     = 15 * time.Minute
)

var ErrUnknownUser = errors.New("unknown username")

// LockedError is returned while an account is locked, including the
// attempt that caused the lock.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.Format(time.RFC3339))
}

// PasswordError is a wrong password on an account that is not locked yet.
type PasswordError struct {
	Remaining int
}

func (e *PasswordError) Error() string {
	return fmt.Sprintf("invalid password, %d attempts left", e.Remaining)
}

// Guard checks credentials and keeps the per-account lockout state.
type Guard struct {
	db              *gorm.DB
	defaultPassword string

	// Now is the clock used for lock checks; tests replace it.
	Now func() time.Time
}

func NewGuard(db *gorm.DB, defaultPassword string) *Guard {
	return &Guard{
		db:              db,
		defaultPassword: defaultPassword,
		Now:             time.Now,
	}
}

// Authenticate verifies username and password. Every state change is
// committed before it returns.
func (g *Guard) Authenticate(username, password string) (*models.User, error) {
	var user models.User
	if err := g.db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}

	now := g.Now()

	if user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		return &user, &LockedError{Until: *user.LockedUntil}
	}

	if checkPasswordHash(password, user.PasswordHash) {
		user.LoginAttempts = 0
		user.LockedUntil = nil
		user.LastLogin = &now
		err := g.db.Model(&user).Select("login_attempts", "locked_until", "last_login").Updates(&user).Error
		if err != nil {
			return nil, fmt.Errorf("record login: %w", err)
		}
		return &user, nil
	}

	user.LoginAttempts++
	if user.LoginAttempts >= MaxLoginAttempts {
		until := now.Add(LockDuration)
		user.LockedUntil = &until
		user.LoginAttempts = 0
		err := g.db.Model(&user).Select("login_attempts", "locked_until").Updates(&user).Error
		if err != nil {
			return nil, fmt.Errorf("lock account: %w", err)
		}
		return &user, &LockedError{Until: until}
	}

	if err := g.db.Model(&user).Update("login_attempts", user.LoginAttempts).Error; err != nil {
		return nil, fmt.Errorf("record failed attempt: %w", err)
	}
	return &user, &PasswordError{Remaining: MaxLoginAttempts - user.LoginAttempts}
}

// MustChangePassword reports whether a fresh login is still on the
// bootstrap password: the stored flag and the supplied password must both
// say so.
func (g *Guard) MustChangePassword(user *models.User, suppliedPassword string) bool {
	return !user.PasswordChanged && suppliedPassword == g.defaultPassword
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func checkPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
