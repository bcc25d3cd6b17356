package database

import (
	"errors"
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/YuHyungmin1226/flask-sns-app/models"
)

func RunMigrations(db *gorm.DB) error {
	log.Println("Running database migrations...")

	err := db.AutoMigrate(
		&models.User{},
		&models.Post{},
		&models.LinkPreview{},
		&models.Comment{},
	)

	if err != nil {
		log.Printf("Error running migrations: %v", err)
		return err
	}

	log.Println("Migrations completed successfully")
	return nil
}

// EnsureAdmin creates the reserved admin account with the default password
// when it does not exist yet. It reports whether an account was created.
func EnsureAdmin(db *gorm.DB, username, password string) (bool, error) {
	var existing models.User
	err := db.Where("username = ?", username).First(&existing).Error
	if err == nil {
		if existing.Role != models.RoleAdmin {
			if err := db.Model(&existing).Update("role", models.RoleAdmin).Error; err != nil {
				return false, fmt.Errorf("promote %s: %w", username, err)
			}
		}
		log.Printf("admin account %q already exists", username)
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("look up %s: %w", username, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("hash admin password: %w", err)
	}

	admin := models.User{
		Username:        username,
		PasswordHash:    string(hash),
		Role:            models.RoleAdmin,
		PasswordChanged: false,
	}
	if err := db.Create(&admin).Error; err != nil {
		return false, fmt.Errorf("create %s: %w", username, err)
	}

	log.Printf("created admin account %q with the default password, change it after the first login", username)
	return true, nil
}
