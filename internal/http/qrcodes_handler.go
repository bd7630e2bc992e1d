package http

import (
	"errors"

	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"scantrail/internal/campaigns"
	"scantrail/internal/config"
	"scantrail/internal/qrcodes"
)

type QRCodeParams struct {
	Name       string `json:"name" validate:"required,max=255"`
	Type       string `json:"type" validate:"required,oneof=url text email phone wifi"`
	Content    string `json:"content" validate:"required"`
	CampaignID *uint  `json:"campaignId"`
}

// qrcodeResponse is the JSON shape for a single QR code.
type qrcodeResponse struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Content     string `json:"content"`
	CampaignID  *uint  `json:"campaignId"`
	ScanCount   int64  `json:"scanCount"`
	TrackingURL string `json:"trackingUrl"`
	CreatedAt   string `json:"createdAt"`
}

func presentQRCode(code *qrcodes.QRCode) qrcodeResponse {
	cfg := config.GetConfig()
	return qrcodeResponse{
		ID:          code.ID,
		Name:        code.Name,
		Type:        code.Type,
		Content:     code.Content,
		CampaignID:  code.CampaignID,
		ScanCount:   code.ScanCount,
		TrackingURL: qrcodes.TrackingURL(cfg.BaseURL, code.ID),
		CreatedAt:   code.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// QRCodesIndexAction lists the signed-in user's QR codes.
func QRCodesIndexAction(ctx *cartridge.Context) error {
	userID, ok := currentUserID(ctx)
	if !ok {
		return nil
	}

	codes, err := qrcodes.GetQRCodesForUser(ctx.DB(), userID)
	if err != nil {
		ctx.Logger.Error("Failed to list QR codes", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list QR codes",
		})
	}

	out := make([]qrcodeResponse, 0, len(codes))
	for i := range codes {
		out = append(out, presentQRCode(&codes[i]))
	}
	return ctx.JSON(fiber.Map{"qrcodes": out})
}

// QRCodeShowAction returns one QR code owned by the signed-in user.
func QRCodeShowAction(ctx *cartridge.Context) error {
	userID, ok := currentUserID(ctx)
	if !ok {
		return nil
	}

	id, err := paramID(ctx)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid QR code id"})
	}

	code, err := qrcodes.GetQRCodeForUser(ctx.DB(), id, userID)
	if err != nil {
		return respondQRCodeError(ctx, err)
	}

	return ctx.JSON(fiber.Map{"qrcode": presentQRCode(code)})
}

// QRCodeCreateAction creates a QR code for the signed-in user.
func QRCodeCreateAction(ctx *cartridge.Context) error {
	userID, ok := currentUserID(ctx)
	if !ok {
		return nil
	}

	var params QRCodeParams
	if err := ctx.BodyParser(&params); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(params); err != nil {
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": validationMessage(err)})
	}

	if params.CampaignID != nil {
		if _, err := campaigns.GetCampaignForUser(ctx.DB(), *params.CampaignID, userID); err != nil {
			return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "Campaign not found"})
		}
	}

	code := &qrcodes.QRCode{
		UserID:     userID,
		Name:       params.Name,
		Type:       params.Type,
		Content:    params.Content,
		CampaignID: params.CampaignID,
	}
	if err := qrcodes.CreateQRCode(ctx.Logger, ctx.DB(), code); err != nil {
		ctx.Logger.Error("Failed to create QR code", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create QR code"})
	}

	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{"qrcode": presentQRCode(code)})
}

// QRCodeUpdateAction updates a QR code owned by the signed-in user. The scan
// counter is never writable through this endpoint.
func QRCodeUpdateAction(ctx *cartridge.Context) error {
	userID, ok := currentUserID(ctx)
	if !ok {
		return nil
	}

	id, err := paramID(ctx)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid QR code id"})
	}

	code, err := qrcodes.GetQRCodeForUser(ctx.DB(), id, userID)
	if err != nil {
		return respondQRCodeError(ctx, err)
	}

	var params QRCodeParams
	if err := ctx.BodyParser(&params); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(params); err != nil {
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": validationMessage(err)})
	}

	if params.CampaignID != nil {
		if _, err := campaigns.GetCampaignForUser(ctx.DB(), *params.CampaignID, userID); err != nil {
			return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "Campaign not found"})
		}
	}

	code.Name = params.Name
	code.Type = params.Type
	code.Content = params.Content
	code.CampaignID = params.CampaignID

	if err := qrcodes.UpdateQRCode(ctx.Logger, ctx.DB(), code); err != nil {
		ctx.Logger.Error("Failed to update QR code", slog.Uint64("qrcode_id", uint64(id)), slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update QR code"})
	}

	return ctx.JSON(fiber.Map{"qrcode": presentQRCode(code)})
}

// QRCodeDeleteAction deletes a QR code and its scan history.
func QRCodeDeleteAction(ctx *cartridge.Context) error {
	userID, ok := currentUserID(ctx)
	if !ok {
		return nil
	}

	id, err := paramID(ctx)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid QR code id"})
	}

	if err := qrcodes.DeleteQRCode(ctx.Logger, ctx.DB(), id, userID); err != nil {
		return respondQRCodeError(ctx, err)
	}

	return ctx.JSON(fiber.Map{"success": true})
}

// QRCodeImageAction renders the QR code image. Query parameters: format
// (png|svg, default png), size, margin, dark, light. The encoded content is
// the tracking URL, so printed codes route scans through /s/:id.
func QRCodeImageAction(ctx *cartridge.Context) error {
	userID, ok := currentUserID(ctx)
	if !ok {
		return nil
	}

	id, err := paramID(ctx)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid QR code id"})
	}

	code, err := qrcodes.GetQRCodeForUser(ctx.DB(), id, userID)
	if err != nil {
		return respondQRCodeError(ctx, err)
	}

	opts := qrcodes.DefaultRenderOptions()
	if size := ctx.QueryInt("size"); size > 0 {
		opts.Size = size
	}
	if margin := ctx.QueryInt("margin", -1); margin >= 0 {
		opts.Margin = margin
	}
	if dark := ctx.Query("dark"); dark != "" {
		opts.Dark = dark
	}
	if light := ctx.Query("light"); light != "" {
		opts.Light = light
	}

	cfg := config.GetConfig()
	content := qrcodes.TrackingURL(cfg.BaseURL, code.ID)

	switch ctx.Query("format", "png") {
	case "svg":
		svg, err := qrcodes.EncodeSVG(content, opts)
		if err != nil {
			ctx.Logger.Error("Failed to render QR code SVG", slog.Any("error", err))
			return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to render QR code"})
		}
		ctx.Set("Content-Type", "image/svg+xml")
		return ctx.SendString(svg)
	case "png":
		dataURI, err := qrcodes.EncodePNGDataURI(content, opts)
		if err != nil {
			ctx.Logger.Error("Failed to render QR code PNG", slog.Any("error", err))
			return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to render QR code"})
		}
		return ctx.JSON(fiber.Map{"dataUri": dataURI})
	default:
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unsupported format"})
	}
}

func respondQRCodeError(ctx *cartridge.Context, err error) error {
	var notFound *qrcodes.QRCodeNotFoundError
	if errors.As(err, &notFound) {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "QR code not found"})
	}
	ctx.Logger.Error("QR code lookup failed", slog.Any("error", err))
	return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal error"})
}
