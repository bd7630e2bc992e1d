package http

import (
	"strings"

	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/crypto"

	"scantrail/internal/users"
)

// ProcessLoginAction authenticates the admin user and starts a session.
func ProcessLoginAction(ctx *cartridge.Context) error {
	email := ctx.FormValue("email")
	password := ctx.FormValue("password")

	if email == "" && password == "" {
		var jsonBody struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := ctx.BodyParser(&jsonBody); err == nil {
			email = jsonBody.Email
			password = jsonBody.Password
		}
	}

	if email == "" || password == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Email and password are required",
		})
	}

	db := ctx.DB()
	user, findErr := users.FindByEmail(db, email)

	// Always verify a password so response timing does not reveal whether
	// the email exists.
	var passwordValid bool
	if findErr != nil {
		ctx.Logger.Debug("User not found during login", slog.String("email", email))
		dummyHash := "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy" // bcrypt hash of "dummy"
		crypto.VerifyPassword(dummyHash, password)
	} else {
		passwordValid = crypto.VerifyPassword(user.EncryptedPassword, password)
		if !passwordValid {
			ctx.Logger.Debug("Invalid password attempt", slog.String("email", email))
		}
	}

	if !passwordValid {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid email or password",
		})
	}

	if err := ctx.Session.SetSession(ctx.Ctx, user.ID); err != nil {
		ctx.Logger.Error("Failed to set session", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Login failed",
		})
	}

	ctx.Logger.Debug("Login successful",
		slog.String("email", email),
		slog.Int("userId", int(user.ID)))

	return ctx.JSON(fiber.Map{"success": true})
}

// LogoutAction clears the admin session.
func LogoutAction(ctx *cartridge.Context) error {
	ctx.Session.ClearSession(ctx.Ctx)
	return ctx.JSON(fiber.Map{"success": true})
}

// AccountChangePasswordAction changes the signed-in user's password after
// verifying the current one.
func AccountChangePasswordAction(ctx *cartridge.Context) error {
	userID, ok := currentUserID(ctx)
	if !ok {
		return nil
	}

	var params struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := ctx.BodyParser(&params); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if strings.TrimSpace(params.CurrentPassword) == "" {
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "Current password is required"})
	}
	if strings.TrimSpace(params.NewPassword) == "" {
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "New password is required"})
	}
	if len(params.NewPassword) < 8 {
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "New password must be at least 8 characters long"})
	}

	db := ctx.DB()
	user, err := users.FindByID(db, userID)
	if err != nil {
		ctx.Logger.Error("Failed to find user for password change",
			slog.Uint64("userID", uint64(userID)), slog.Any("error", err))
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	}

	if !crypto.VerifyPassword(user.EncryptedPassword, params.CurrentPassword) {
		ctx.Logger.Warn("Invalid current password provided during password change",
			slog.Uint64("userID", uint64(userID)))
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Current password is incorrect"})
	}

	if err := users.ChangePassword(db, user.Email, params.NewPassword); err != nil {
		ctx.Logger.Error("Failed to change password",
			slog.Uint64("userID", uint64(userID)), slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to change password"})
	}

	ctx.Logger.Info("Password changed successfully",
		slog.Uint64("userID", uint64(userID)),
		slog.String("email", user.Email))
	return ctx.JSON(fiber.Map{"success": true})
}
