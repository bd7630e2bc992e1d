package v1

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"scantrail/internal/pkg/geo"
	"scantrail/internal/pkg/useragent"
	"scantrail/internal/qrcodes"
	"scantrail/internal/scans"
)

const errInvalidRequest = "Invalid request"

// resolver is the process-wide geolocation resolver, set during route mounting.
var resolver *geo.Resolver

// SetResolver installs the geolocation resolver used by the public handlers.
func SetResolver(r *geo.Resolver) {
	resolver = r
}

type RecordScanParams struct {
	QRCodeID  uint   `json:"qrcodeId"`
	UserAgent string `json:"userAgent"`
	IPAddress string `json:"ipAddress"`
	Referrer  string `json:"referrer"`
}

// RecordScanPublicAPIHandler ingests a scan event posted by a client.
func RecordScanPublicAPIHandler(ctx *cartridge.Context) error {
	ctx.Logger.Info("Received scan request", slog.String("method", ctx.Method()), slog.String("path", ctx.Path()))

	var params RecordScanParams
	if err := ctx.BodyParser(&params); err != nil {
		ctx.Logger.Debug("Failed to parse scan request", slog.Any("error", err))
		return handleError(ctx.Ctx, fiber.NewError(http.StatusBadRequest, errInvalidRequest))
	}

	if params.QRCodeID == 0 {
		return handleError(ctx.Ctx, fiber.NewError(http.StatusBadRequest, "qrcodeId is required"))
	}

	userAgent := params.UserAgent
	if userAgent == "" {
		userAgent = requestUserAgent(ctx)
	}

	ipAddress := params.IPAddress
	if ipAddress == "" {
		ipAddress = getClientIP(ctx.Ctx)
	}

	input := &scans.RecordScanInput{
		QRCodeID:  params.QRCodeID,
		UserAgent: userAgent,
		IPAddress: ipAddress,
		Referrer:  params.Referrer,
	}

	recorder := scans.NewRecorder(ctx.DBManager, resolver, ctx.Logger)
	scanID, err := recorder.RecordScan(ctx.Ctx.UserContext(), input)
	if err != nil {
		ctx.Logger.Error("Failed to record scan", slog.Any("error", err))
		if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "busy") {
			return ctx.Status(599).JSON(fiber.Map{}) // custom status code
		}

		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record scan",
			"code":  "SCAN_ERROR",
		})
	}

	ctx.Logger.Info("Recorded scan successfully", slog.Uint64("scan_id", uint64(scanID)))
	return ctx.Status(http.StatusOK).JSON(fiber.Map{
		"success": true,
		"scanId":  scanID,
	})
}

// RedirectScanHandler serves the tracking URL printed inside a QR code: it
// records the scan from request context and forwards the visitor to the QR
// code's content. Recording failures never break the redirect.
func RedirectScanHandler(ctx *cartridge.Context) error {
	id, err := strconv.ParseUint(ctx.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return ctx.SendStatus(http.StatusNotFound)
	}

	db := ctx.DBManager.GetConnection()
	code, err := qrcodes.GetQRCodeByID(db, uint(id))
	if err != nil {
		var notFound *qrcodes.QRCodeNotFoundError
		if errors.As(err, &notFound) {
			return ctx.SendStatus(http.StatusNotFound)
		}
		ctx.Logger.Error("Failed to load QR code for redirect", slog.Any("error", err))
		return ctx.SendStatus(http.StatusInternalServerError)
	}

	input := &scans.RecordScanInput{
		QRCodeID:  code.ID,
		UserAgent: requestUserAgent(ctx),
		IPAddress: getClientIP(ctx.Ctx),
		Referrer:  ctx.Get("Referer"),
	}

	recorder := scans.NewRecorder(ctx.DBManager, resolver, ctx.Logger)
	if _, err := recorder.RecordScan(ctx.Ctx.UserContext(), input); err != nil {
		// The visitor still gets where they were going; the scan is lost.
		ctx.Logger.Error("Failed to record scan on redirect",
			slog.Uint64("qrcode_id", uint64(code.ID)),
			slog.Any("error", err))
	}

	switch code.Type {
	case qrcodes.TypeURL, qrcodes.TypeEmail, qrcodes.TypePhone:
		return ctx.Redirect(code.Content, http.StatusFound)
	default:
		// Text and WiFi payloads are not navigable; serve them as-is.
		return ctx.SendString(code.Content)
	}
}

// GetVisitorInfoHandler echoes what the classifier and geolocation would
// record for the caller, without persisting anything.
func GetVisitorInfoHandler(ctx *cartridge.Context) error {
	userAgent := requestUserAgent(ctx)
	ipAddress := getClientIP(ctx.Ctx)

	info := useragent.Classify(userAgent)
	location := resolver.Lookup(ctx.Ctx.UserContext(), ipAddress)

	return ctx.JSON(fiber.Map{
		"ip":         ipAddress,
		"deviceType": info.DeviceType,
		"browser":    info.Browser,
		"country":    location.Country,
		"city":       location.City,
	})
}

// requestUserAgent reads the caller's User-Agent, honoring the override
// header set by proxying SDKs.
func requestUserAgent(ctx *cartridge.Context) string {
	userAgent := ctx.Get("User-Agent")
	if forwardedUA := ctx.Get("X-Forwarded-User-Agent"); forwardedUA != "" {
		userAgent = forwardedUA
	}
	return userAgent
}

func handleError(c *fiber.Ctx, err error) error {
	if fiberErr, ok := err.(*fiber.Error); ok {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"error": fiberErr.Message,
		})
	}

	return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{
		"error": errInvalidRequest,
	})
}
