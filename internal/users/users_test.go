package users_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"scantrail/internal/testsupport"
	"scantrail/internal/users"
)

func TestFindByEmail(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	t.Run("finds existing user", func(t *testing.T) {
		testUser := testsupport.CreateTestUser(db, "test@example.com", "password123")

		foundUser, err := users.FindByEmail(db, "test@example.com")

		require.NoError(t, err)
		assert.NotNil(t, foundUser)
		assert.Equal(t, testUser.Email, foundUser.Email)
		assert.Equal(t, testUser.ID, foundUser.ID)
	})

	t.Run("returns error for non-existent user", func(t *testing.T) {
		foundUser, err := users.FindByEmail(db, "nonexistent@example.com")

		assert.Error(t, err)
		assert.Nil(t, foundUser)
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})

	t.Run("returns error for empty email", func(t *testing.T) {
		foundUser, err := users.FindByEmail(db, "")

		assert.Error(t, err)
		assert.Nil(t, foundUser)
	})
}

func TestCreateUser(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	t.Run("creates new user successfully", func(t *testing.T) {
		email := "newadmin@example.com"
		password := "securepassword123"

		created, err := users.CreateUser(db, email, password)
		require.NoError(t, err)
		assert.Equal(t, email, created.Email)

		foundUser, err := users.FindByEmail(db, email)
		require.NoError(t, err)
		assert.Equal(t, email, foundUser.Email)
		assert.NotEmpty(t, foundUser.EncryptedPassword)
	})

	t.Run("returns error when user already exists", func(t *testing.T) {
		email := "existing@example.com"
		password := "password123"

		_, err := users.CreateUser(db, email, password)
		require.NoError(t, err)

		_, err = users.CreateUser(db, email, password)
		assert.Error(t, err)
		assert.ErrorIs(t, err, users.ErrUserExists)
	})

	t.Run("returns error for empty email", func(t *testing.T) {
		_, err := users.CreateUser(db, "", "password123")
		assert.Error(t, err)
	})

	t.Run("returns error for empty password", func(t *testing.T) {
		_, err := users.CreateUser(db, "test@example.com", "")
		assert.Error(t, err)
	})
}

func TestVerifyCredentials(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	email := "verify@example.com"
	password := "correcthorse123"
	_, err := users.CreateUser(db, email, password)
	require.NoError(t, err)

	t.Run("accepts correct credentials", func(t *testing.T) {
		user, ok := users.VerifyCredentials(db, email, password)
		assert.True(t, ok)
		require.NotNil(t, user)
		assert.Equal(t, email, user.Email)
	})

	t.Run("rejects wrong password", func(t *testing.T) {
		user, ok := users.VerifyCredentials(db, email, "wrongpassword")
		assert.False(t, ok)
		assert.Nil(t, user)
	})

	t.Run("rejects unknown email", func(t *testing.T) {
		user, ok := users.VerifyCredentials(db, "unknown@example.com", password)
		assert.False(t, ok)
		assert.Nil(t, user)
	})
}

func TestChangePassword(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	t.Run("changes password successfully", func(t *testing.T) {
		email := "changepass@example.com"
		oldPassword := "oldpassword123"
		newPassword := "newpassword456"

		_, err := users.CreateUser(db, email, oldPassword)
		require.NoError(t, err)

		userBefore, err := users.FindByEmail(db, email)
		require.NoError(t, err)
		oldEncryptedPassword := userBefore.EncryptedPassword

		err = users.ChangePassword(db, email, newPassword)
		require.NoError(t, err)

		userAfter, err := users.FindByEmail(db, email)
		require.NoError(t, err)
		assert.NotEqual(t, oldEncryptedPassword, userAfter.EncryptedPassword)

		_, ok := users.VerifyCredentials(db, email, newPassword)
		assert.True(t, ok)
	})

	t.Run("returns error for non-existent user", func(t *testing.T) {
		err := users.ChangePassword(db, "nonexistent@example.com", "newpassword")
		assert.Error(t, err)
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})

	t.Run("returns error for empty password", func(t *testing.T) {
		email := "testuser@example.com"

		_, err := users.CreateUser(db, email, "password123")
		require.NoError(t, err)

		err = users.ChangePassword(db, email, "")
		assert.Error(t, err)
	})
}

func TestSetupAdminUserIfNotExists(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	t.Run("creates user if not exists", func(t *testing.T) {
		email := "setup@example.com"

		users.SetupAdminUserIfNotExists(db, email)

		foundUser, err := users.FindByEmail(db, email)
		require.NoError(t, err)
		assert.Equal(t, email, foundUser.Email)
	})

	t.Run("does not error if user already exists", func(t *testing.T) {
		email := "existing-setup@example.com"

		_, err := users.CreateUser(db, email, "password123")
		require.NoError(t, err)

		users.SetupAdminUserIfNotExists(db, email)

		foundUser, err := users.FindByEmail(db, email)
		require.NoError(t, err)
		assert.Equal(t, email, foundUser.Email)
	})
}

func TestErrUserNotFound(t *testing.T) {
	assert.Equal(t, gorm.ErrRecordNotFound, users.ErrUserNotFound)
}
