package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"scantrail/internal/analytics"
	"scantrail/internal/qrcodes"
)

// QRCodeAnalyticsAction returns the aggregated analytics for one QR code
// owned by the signed-in user.
func QRCodeAnalyticsAction(ctx *cartridge.Context) error {
	userID, ok := currentUserID(ctx)
	if !ok {
		return nil
	}

	id, err := paramID(ctx)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid QR code id"})
	}

	// Ownership check before touching the scan rows.
	if _, err := qrcodes.GetQRCodeForUser(ctx.DB(), id, userID); err != nil {
		return respondQRCodeError(ctx, err)
	}

	result, err := analytics.GetQRCodeAnalytics(ctx.DB(), id)
	if err != nil {
		ctx.Logger.Error("Failed to compute QR code analytics",
			slog.Uint64("qrcode_id", uint64(id)),
			slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to compute analytics"})
	}

	return ctx.JSON(result)
}

// GlobalAnalyticsAction returns the aggregated analytics across all of the
// signed-in user's QR codes.
func GlobalAnalyticsAction(ctx *cartridge.Context) error {
	userID, ok := currentUserID(ctx)
	if !ok {
		return nil
	}

	result, err := analytics.GetGlobalAnalytics(ctx.DB(), userID)
	if err != nil {
		ctx.Logger.Error("Failed to compute global analytics",
			slog.Uint64("user_id", uint64(userID)),
			slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to compute analytics"})
	}

	return ctx.JSON(result)
}
