package http

import (
	"errors"
	"time"

	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"scantrail/internal/campaigns"
	"scantrail/internal/qrcodes"
)

type CampaignParams struct {
	Name      string `json:"name" validate:"required,max=255"`
	Status    string `json:"status" validate:"omitempty,oneof=active paused archived"`
	StartDate string `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
}

type campaignResponse struct {
	ID        uint    `json:"id"`
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	StartDate *string `json:"startDate"`
	EndDate   *string `json:"endDate"`
	CreatedAt string  `json:"createdAt"`
}

func presentCampaign(c *campaigns.Campaign) campaignResponse {
	return campaignResponse{
		ID:        c.ID,
		Name:      c.Name,
		Status:    c.Status,
		StartDate: formatDate(c.StartDate),
		EndDate:   formatDate(c.EndDate),
		CreatedAt: c.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}

// CampaignsIndexAction lists the signed-in user's campaigns.
func CampaignsIndexAction(ctx *cartridge.Context) error {
	userID, ok := currentUserID(ctx)
	if !ok {
		return nil
	}

	list, err := campaigns.GetCampaignsForUser(ctx.DB(), userID)
	if err != nil {
		ctx.Logger.Error("Failed to list campaigns", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list campaigns"})
	}

	out := make([]campaignResponse, 0, len(list))
	for i := range list {
		out = append(out, presentCampaign(&list[i]))
	}
	return ctx.JSON(fiber.Map{"campaigns": out})
}

// CampaignShowAction returns one campaign with its QR codes.
func CampaignShowAction(ctx *cartridge.Context) error {
	userID, ok := currentUserID(ctx)
	if !ok {
		return nil
	}

	id, err := paramID(ctx)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid campaign id"})
	}

	campaign, err := campaigns.GetCampaignForUser(ctx.DB(), id, userID)
	if err != nil {
		return respondCampaignError(ctx, err)
	}

	codes, err := qrcodes.GetQRCodesForCampaign(ctx.DB(), campaign.ID)
	if err != nil {
		ctx.Logger.Error("Failed to list campaign QR codes", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load campaign"})
	}

	codeList := make([]qrcodeResponse, 0, len(codes))
	for i := range codes {
		codeList = append(codeList, presentQRCode(&codes[i]))
	}

	return ctx.JSON(fiber.Map{
		"campaign": presentCampaign(campaign),
		"qrcodes":  codeList,
	})
}

// CampaignCreateAction creates a campaign for the signed-in user.
func CampaignCreateAction(ctx *cartridge.Context) error {
	userID, ok := currentUserID(ctx)
	if !ok {
		return nil
	}

	var params CampaignParams
	if err := ctx.BodyParser(&params); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(params); err != nil {
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": validationMessage(err)})
	}

	campaign := &campaigns.Campaign{
		UserID:    userID,
		Name:      params.Name,
		Status:    params.Status,
		StartDate: parseDate(params.StartDate),
		EndDate:   parseDate(params.EndDate),
	}
	if err := campaigns.CreateCampaign(ctx.Logger, ctx.DB(), campaign); err != nil {
		ctx.Logger.Error("Failed to create campaign", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create campaign"})
	}

	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{"campaign": presentCampaign(campaign)})
}

// CampaignUpdateAction updates a campaign owned by the signed-in user.
func CampaignUpdateAction(ctx *cartridge.Context) error {
	userID, ok := currentUserID(ctx)
	if !ok {
		return nil
	}

	id, err := paramID(ctx)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid campaign id"})
	}

	campaign, err := campaigns.GetCampaignForUser(ctx.DB(), id, userID)
	if err != nil {
		return respondCampaignError(ctx, err)
	}

	var params CampaignParams
	if err := ctx.BodyParser(&params); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(params); err != nil {
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": validationMessage(err)})
	}

	campaign.Name = params.Name
	if params.Status != "" {
		campaign.Status = params.Status
	}
	campaign.StartDate = parseDate(params.StartDate)
	campaign.EndDate = parseDate(params.EndDate)

	if err := campaigns.UpdateCampaign(ctx.Logger, ctx.DB(), campaign); err != nil {
		ctx.Logger.Error("Failed to update campaign", slog.Uint64("campaign_id", uint64(id)), slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update campaign"})
	}

	return ctx.JSON(fiber.Map{"campaign": presentCampaign(campaign)})
}

// CampaignDeleteAction deletes a campaign, detaching its QR codes. Scan
// history stays untouched.
func CampaignDeleteAction(ctx *cartridge.Context) error {
	userID, ok := currentUserID(ctx)
	if !ok {
		return nil
	}

	id, err := paramID(ctx)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid campaign id"})
	}

	if err := campaigns.DeleteCampaign(ctx.Logger, ctx.DB(), id, userID); err != nil {
		return respondCampaignError(ctx, err)
	}

	return ctx.JSON(fiber.Map{"success": true})
}

func respondCampaignError(ctx *cartridge.Context, err error) error {
	var notFound *campaigns.CampaignNotFoundError
	if errors.As(err, &notFound) {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Campaign not found"})
	}
	ctx.Logger.Error("Campaign lookup failed", slog.Any("error", err))
	return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal error"})
}
