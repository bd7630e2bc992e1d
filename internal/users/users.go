// Package users manages the admin accounts that own QR codes and campaigns.
package users

import (
	"errors"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge/crypto"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// User is an account that owns QR codes and campaigns.
type User struct {
	ID                uint   `gorm:"primaryKey"`
	Email             string `gorm:"uniqueIndex"`
	EncryptedPassword string
	CreatedAt         time.Time `gorm:"autoCreateTime"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

// ErrUserExists is returned when attempting to create a user that already exists.
var ErrUserExists = errors.New("user already exists")

// ErrUserNotFound is returned when a user lookup fails.
var ErrUserNotFound = gorm.ErrRecordNotFound

// FindByEmail retrieves a user by email.
func FindByEmail(db *gorm.DB, email string) (*User, error) {
	var user User
	if err := db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID retrieves a user by ID.
func FindByID(db *gorm.DB, id uint) (*User, error) {
	var user User
	if err := db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser creates a new user with the supplied credentials.
// It returns ErrUserExists if the email is already registered.
func CreateUser(dbConn *gorm.DB, email, password string) (*User, error) {
	if email == "" {
		return nil, errors.New("email cannot be empty")
	}
	if password == "" {
		return nil, errors.New("password cannot be empty")
	}

	if _, err := FindByEmail(dbConn, email); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hashedPassword, err := crypto.GeneratePasswordHash(password)
	if err != nil {
		return nil, err
	}

	newUser := User{
		Email:             email,
		EncryptedPassword: string(hashedPassword),
	}

	logger := slog.Default()
	err = sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		return tx.Create(&newUser).Error
	})
	if err != nil {
		return nil, err
	}
	return &newUser, nil
}

// VerifyCredentials checks an email/password pair and returns the matching
// user. Password verification always runs, even when the email is unknown,
// to keep the response time constant.
func VerifyCredentials(db *gorm.DB, email, password string) (*User, bool) {
	user, err := FindByEmail(db, email)
	if err != nil {
		// bcrypt hash of "dummy" - verified to keep timing constant
		dummyHash := "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"
		crypto.VerifyPassword(dummyHash, password)
		return nil, false
	}

	if !crypto.VerifyPassword(user.EncryptedPassword, password) {
		return nil, false
	}
	return user, true
}

// ChangePassword updates a user's password given their email.
func ChangePassword(dbConn *gorm.DB, email, password string) error {
	if password == "" {
		return errors.New("password cannot be empty")
	}

	user, err := FindByEmail(dbConn, email)
	if err != nil {
		return err
	}

	hashedPassword, err := crypto.GeneratePasswordHash(password)
	if err != nil {
		return err
	}

	logger := slog.Default()
	return sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		return tx.Model(user).Update("encrypted_password", string(hashedPassword)).Error
	})
}

// SetupAdminUserIfNotExists creates a default admin user if it doesn't already exist.
func SetupAdminUserIfNotExists(dbConn *gorm.DB, email string) {
	logger := slog.Default()
	hashedPassword, err := crypto.GeneratePasswordHash("password")
	if err != nil {
		logger.Error("Failed to generate password hash", slog.Any("error", err))
		return
	}
	err = sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		return tx.Exec(`
            INSERT INTO users (email, encrypted_password, created_at, updated_at)
            VALUES (?, ?, ?, ?)
            ON CONFLICT(email) DO NOTHING
        `, email, hashedPassword, time.Now().UTC(), time.Now().UTC()).Error
	})
	if err != nil {
		logger.Error("Failed to upsert admin user", slog.String("email", email), slog.Any("error", err))
		return
	}
	logger.Info("Ensured admin user exists", slog.String("email", email))
}
