package internal

import (
	"sync"
	"time"

	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "scantrail/api/v1"
	"scantrail/internal/config"
	"scantrail/internal/http"
	"scantrail/internal/http/middleware"
	"scantrail/internal/pkg/geo"
)

// publicCORSConfig returns the standard CORS configuration for public endpoints.
// Scan ingestion must accept cross-origin POSTs from any page embedding a QR code.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referrer, User-Agent",
}

var (
	resolverOnce sync.Once
	appResolver  *geo.Resolver
)

// AppResolver returns the process-wide geolocation resolver, built from
// config on first use. The same instance is shared by the scan recorder and
// the GeoLite updater job so a reload is visible everywhere.
func AppResolver() *geo.Resolver {
	resolverOnce.Do(func() {
		cfg := config.GetConfig()
		appResolver = geo.NewResolver(geo.Options{
			GeoDBPath: cfg.GeoDBPath,
			APIURL:    cfg.GeoAPIURL,
			Timeout:   time.Duration(cfg.GeoAPITimeoutSeconds) * time.Second,
		}, slog.Default())
	})
	return appResolver
}

// SetupSession configures session management on the server.
func SetupSession(srv *cartridge.Server) {
	cfg := config.GetConfig()
	sessionMgr := cartridge.NewSessionManager(cartridge.SessionConfig{
		CookieName: cfg.AppName + "_session",
		Secret:     cfg.GetSessionSecret(),
		TTL:        time.Duration(cfg.GetLoginSessionTimeout()) * time.Second,
		Secure:     cfg.IsProduction(),
		LoginPath:  "/login",
	})
	srv.SetSession(sessionMgr)
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server) {
	SetupSession(srv)
	MountAppRoutesWithoutSession(srv)
}

// MountAppRoutesWithoutSession mounts routes without setting up session.
func MountAppRoutesWithoutSession(srv *cartridge.Server) {
	cfg := config.GetConfig()
	sessionMgr := srv.Session()

	resolver := AppResolver()
	v1.SetResolver(resolver)
	http.SetResolver(resolver)

	// Rate limiting only applies in production; in development and test it
	// would interfere with tooling.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// Public scan ingestion: 120 requests per minute per IP. A single QR
	// code going viral produces many distinct IPs, so per-IP limiting does
	// not throttle legitimate bursts.
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(120),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Stricter rate limiter for auth endpoints (10 requests per minute)
	// Prevents brute force login attempts
	authRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(10),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Public API config (scan ingestion + visitor echo)
	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		WriteConcurrency: false,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	// Tracking redirects are plain navigations; no CORS needed.
	redirectConfig := &cartridge.RouteConfig{
		EnableSecFetchSite: cartridge.Bool(false),
		CustomMiddleware:   []fiber.Handler{publicRateLimiter},
	}

	db := srv.GetDBManager().GetConnection()
	logger := srv.GetLogger()

	adminAPIConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{
			sessionMgr.Middleware(),
		},
	}

	agentAPIConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{
			middleware.AgentAPIKeyAuth(db, logger),
		},
	}

	// === HEALTH ===
	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)

	// === TRACKING REDIRECT ===
	srv.Get("/s/:id", v1.RedirectScanHandler, redirectConfig)

	// === PUBLIC API ROUTES ===
	srv.Post("/x/api/v1/scans", v1.RecordScanPublicAPIHandler, publicAPIConfig)
	srv.Options("/x/api/v1/scans", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, publicAPIConfig)
	srv.Get("/x/api/v1/me", v1.GetVisitorInfoHandler, publicAPIConfig)
	srv.Options("/x/api/v1/me", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, publicAPIConfig)

	// === AUTHENTICATION ROUTES ===
	loginConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{authRateLimiter},
	}
	srv.Post("/login", http.ProcessLoginAction, loginConfig)
	srv.Post("/logout", http.LogoutAction)

	// === ADMIN API ROUTES ===
	srv.Get("/admin/api/qrcodes", http.QRCodesIndexAction, adminAPIConfig)
	srv.Post("/admin/api/qrcodes", http.QRCodeCreateAction, adminAPIConfig)
	srv.Get("/admin/api/qrcodes/:id", http.QRCodeShowAction, adminAPIConfig)
	srv.Post("/admin/api/qrcodes/:id", http.QRCodeUpdateAction, adminAPIConfig)
	srv.Delete("/admin/api/qrcodes/:id", http.QRCodeDeleteAction, adminAPIConfig)
	srv.Get("/admin/api/qrcodes/:id/image", http.QRCodeImageAction, adminAPIConfig)
	srv.Get("/admin/api/qrcodes/:id/analytics", http.QRCodeAnalyticsAction, adminAPIConfig)

	srv.Get("/admin/api/campaigns", http.CampaignsIndexAction, adminAPIConfig)
	srv.Post("/admin/api/campaigns", http.CampaignCreateAction, adminAPIConfig)
	srv.Get("/admin/api/campaigns/:id", http.CampaignShowAction, adminAPIConfig)
	srv.Post("/admin/api/campaigns/:id", http.CampaignUpdateAction, adminAPIConfig)
	srv.Delete("/admin/api/campaigns/:id", http.CampaignDeleteAction, adminAPIConfig)

	srv.Get("/admin/api/analytics", http.GlobalAnalyticsAction, adminAPIConfig)

	srv.Get("/admin/api/settings", http.SettingsShowAction, adminAPIConfig)
	srv.Post("/admin/api/settings/excluded-ips", http.ExcludedIPsUpdateAction, adminAPIConfig)
	srv.Post("/admin/api/settings/geolite", http.GeoLiteSettingsAction, adminAPIConfig)
	srv.Post("/admin/api/settings/geolite/download", http.GeoLiteDownloadAction, adminAPIConfig)
	srv.Get("/admin/api/settings/agent-key", http.AgentKeyShowAction, adminAPIConfig)
	srv.Post("/admin/api/settings/agent-key", http.AgentKeyRegenerateAction, adminAPIConfig)

	srv.Post("/admin/api/account/change-password", http.AccountChangePasswordAction, adminAPIConfig)

	// === AGENT API ROUTES ===
	srv.Get("/agent/api/v1/schema", http.AgentSchemaAction, agentAPIConfig)
	srv.Post("/agent/api/v1/sql", http.AgentSQLAction, agentAPIConfig)
}
