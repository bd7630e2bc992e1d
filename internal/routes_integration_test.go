package internal

import (
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
)

func TestPublicScansRouteRateLimited(t *testing.T) {
	srv := testsupport.NewTestServer(t, testsupport.TestServerOptions{
		RouteMountFunc: MountAppRoutes,
	})
	routes := srv.App.GetRoutes(true)

	var scanRoute *fiber.Route
	for idx := range routes {
		route := routes[idx]
		if route.Method == fiber.MethodPost && route.Path == "/x/api/v1/scans" {
			scanRoute = &routes[idx]
			break
		}
	}

	require.NotNil(t, scanRoute, "expected scan ingestion route to be registered")

	// The rate limiter is wrapped in a conditional function that only applies
	// in production. In test environment, it passes through but the wrapper
	// still exists.
	hasRateLimiter := false
	var handlerNames []string
	for _, handler := range scanRoute.Handlers {
		name := runtime.FuncForPC(reflect.ValueOf(handler).Pointer()).Name()
		handlerNames = append(handlerNames, name)
		if strings.Contains(name, "middleware/limiter") || strings.Contains(name, "MountAppRoutes") {
			hasRateLimiter = true
			break
		}
	}

	require.Truef(t, hasRateLimiter, "expected rate limiter middleware for scan ingestion route, handlers: %v", handlerNames)
}

func TestTrackingRoutesRegistered(t *testing.T) {
	srv := testsupport.NewTestServer(t, testsupport.TestServerOptions{
		RouteMountFunc: MountAppRoutes,
	})
	routes := srv.App.GetRoutes(true)

	var hasRedirect, hasVisitorEcho, hasGlobalAnalytics, hasAgentSQL bool

	for _, route := range routes {
		if route.Path == "/s/:id" && route.Method == fiber.MethodGet {
			hasRedirect = true
		}
		if route.Path == "/x/api/v1/me" && route.Method == fiber.MethodGet {
			hasVisitorEcho = true
		}
		if route.Path == "/admin/api/analytics" && route.Method == fiber.MethodGet {
			hasGlobalAnalytics = true
		}
		if route.Path == "/agent/api/v1/sql" && route.Method == fiber.MethodPost {
			hasAgentSQL = true
		}
	}

	require.True(t, hasRedirect, "expected tracking redirect route to be registered")
	require.True(t, hasVisitorEcho, "expected visitor echo route to be registered")
	require.True(t, hasGlobalAnalytics, "expected global analytics route to be registered")
	require.True(t, hasAgentSQL, "expected agent SQL route to be registered")
}
