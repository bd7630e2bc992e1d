package http

import (
	"net"
	"strings"
	"time"

	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"scantrail/internal/config"
	"scantrail/internal/jobs"
	"scantrail/internal/settings"
)

// validateIPList validates a comma-separated list of IP addresses
func validateIPList(ipList string) (bool, string) {
	if ipList == "" {
		return true, ""
	}

	ips := strings.Split(ipList, ",")
	for _, ip := range ips {
		ip = strings.TrimSpace(ip)
		if ip == "" {
			continue
		}

		parsed := net.ParseIP(ip)
		if parsed == nil {
			return false, "Invalid IP address format: " + ip
		}
	}

	return true, ""
}

// SettingsShowAction returns the current ingestion and geolocation settings.
func SettingsShowAction(ctx *cartridge.Context) error {
	if _, ok := currentUserID(ctx); !ok {
		return nil
	}

	db := ctx.DB()
	excludedIPs, _ := settings.GetSetting(db, settings.KeyExcludedIPs)
	accountID, _, _ := settings.GetGeoLiteCredentials(db)

	configured, dbExists, lastUpdate := jobs.GetGeoLiteStatus(ctx.DBManager)
	var lastUpdateStr string
	if !lastUpdate.IsZero() {
		lastUpdateStr = lastUpdate.Format(time.RFC3339)
	}

	agentKey, _ := settings.GetAgentAPIKey(db)

	return ctx.JSON(fiber.Map{
		"excluded_ips":        excludedIPs,
		"geolite_account_id":  accountID,
		"geolite_configured":  configured,
		"geolite_db_exists":   dbExists,
		"geolite_last_update": lastUpdateStr,
		"agent_key_set":       agentKey != "",
	})
}

// ExcludedIPsUpdateAction updates the comma-separated excluded-IPs list.
// Scans from these addresses are silently dropped before recording.
func ExcludedIPsUpdateAction(ctx *cartridge.Context) error {
	if _, ok := currentUserID(ctx); !ok {
		return nil
	}

	var params struct {
		ExcludedIPs string `json:"excluded_ips"`
	}
	if err := ctx.BodyParser(&params); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if valid, msg := validateIPList(params.ExcludedIPs); !valid {
		ctx.Logger.Warn("invalid IP format submitted", slog.String("error", msg))
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": msg})
	}

	if err := settings.UpdateSetting(ctx.DB(), settings.KeyExcludedIPs, params.ExcludedIPs); err != nil {
		ctx.Logger.Error("failed to update excluded_ips setting", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update IP filtering settings"})
	}

	ctx.Logger.Info("excluded IPs updated")
	return ctx.JSON(fiber.Map{"success": true})
}

// GeoLiteSettingsAction saves MaxMind credentials and kicks off a background
// database download when both are present.
func GeoLiteSettingsAction(ctx *cartridge.Context) error {
	if _, ok := currentUserID(ctx); !ok {
		return nil
	}

	var params struct {
		AccountID  string `json:"geolite_account_id"`
		LicenseKey string `json:"geolite_license_key"`
	}
	if err := ctx.BodyParser(&params); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	db := ctx.DB()
	if err := settings.SaveGeoLiteCredentials(db, params.AccountID, params.LicenseKey); err != nil {
		ctx.Logger.Error("Failed to save GeoLite settings", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save GeoLite settings"})
	}

	downloadStarted := false
	if params.AccountID != "" && params.LicenseKey != "" {
		jobs.TriggerImmediateDownload(db, resolver, ctx.Logger, config.GetConfig())
		downloadStarted = true
	}

	ctx.Logger.Info("GeoLite settings updated", slog.Bool("download_started", downloadStarted))
	return ctx.JSON(fiber.Map{
		"success":          true,
		"download_started": downloadStarted,
	})
}

// GeoLiteDownloadAction triggers an immediate GeoLite database download.
func GeoLiteDownloadAction(ctx *cartridge.Context) error {
	if _, ok := currentUserID(ctx); !ok {
		return nil
	}

	db := ctx.DB()
	accountID, licenseKey, _ := settings.GetGeoLiteCredentials(db)
	if accountID == "" || licenseKey == "" {
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "GeoLite credentials not configured",
		})
	}

	jobs.TriggerImmediateDownload(db, resolver, ctx.Logger, config.GetConfig())
	ctx.Logger.Info("Manual GeoLite database download triggered")

	return ctx.JSON(fiber.Map{"success": true})
}

// AgentKeyShowAction returns the agent API key, creating one on first use.
func AgentKeyShowAction(ctx *cartridge.Context) error {
	if _, ok := currentUserID(ctx); !ok {
		return nil
	}

	key, err := settings.GetOrCreateAgentAPIKey(ctx.DB())
	if err != nil {
		ctx.Logger.Error("Failed to load agent API key", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load agent API key"})
	}

	return ctx.JSON(fiber.Map{"api_key": key})
}

// AgentKeyRegenerateAction replaces the agent API key, revoking the old one.
func AgentKeyRegenerateAction(ctx *cartridge.Context) error {
	if _, ok := currentUserID(ctx); !ok {
		return nil
	}

	key, err := settings.GenerateAgentAPIKey(ctx.DB())
	if err != nil {
		ctx.Logger.Error("Failed to regenerate agent API key", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to regenerate agent API key"})
	}

	return ctx.JSON(fiber.Map{"api_key": key})
}
