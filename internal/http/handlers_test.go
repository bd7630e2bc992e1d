package http_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scantrail/internal/settings"
	"scantrail/internal/testsupport"
)

func jsonRequest(t *testing.T, method, path string, body any, cookies ...*nethttp.Cookie) *nethttp.Request {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	return req
}

func decodeJSON(t *testing.T, resp *nethttp.Response) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	return body
}

// login authenticates against /login and returns the session cookie.
func login(t *testing.T, app *fiber.App, email, password string) *nethttp.Cookie {
	t.Helper()

	req := jsonRequest(t, nethttp.MethodPost, "/login", map[string]string{
		"email":    email,
		"password": password,
	})
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	for _, cookie := range resp.Cookies() {
		if cookie.Name == testsupport.SessionCookieName {
			return cookie
		}
	}
	t.Fatal("no session cookie returned from login")
	return nil
}

func TestLoginEndpoint(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)
	testsupport.CreateTestUserForAuth(t, db, "admin@example.com", "correct-horse")

	t.Run("rejects an invalid password", func(t *testing.T) {
		req := jsonRequest(t, nethttp.MethodPost, "/login", map[string]string{
			"email":    "admin@example.com",
			"password": "wrong",
		})
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("rejects an unknown email with the same error", func(t *testing.T) {
		req := jsonRequest(t, nethttp.MethodPost, "/login", map[string]string{
			"email":    "nobody@example.com",
			"password": "correct-horse",
		})
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		body := decodeJSON(t, resp)
		assert.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "Invalid email or password", body["error"])
	})

	t.Run("issues a session cookie on success", func(t *testing.T) {
		cookie := login(t, app, "admin@example.com", "correct-horse")
		assert.NotEmpty(t, cookie.Value)
	})

	t.Run("requires both fields", func(t *testing.T) {
		req := jsonRequest(t, nethttp.MethodPost, "/login", map[string]string{"email": "admin@example.com"})
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)
	})
}

func TestQRCodeEndpoints(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)
	testsupport.CreateTestUserForAuth(t, db, "qr-admin@example.com", "password123")
	cookie := login(t, app, "qr-admin@example.com", "password123")

	t.Run("rejects unauthenticated requests", func(t *testing.T) {
		req := jsonRequest(t, nethttp.MethodGet, "/admin/api/qrcodes", nil)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		resp.Body.Close()
		assert.NotEqual(t, nethttp.StatusOK, resp.StatusCode)
	})

	var createdID float64

	t.Run("creates a QR code", func(t *testing.T) {
		req := jsonRequest(t, nethttp.MethodPost, "/admin/api/qrcodes", map[string]any{
			"name":    "Storefront Poster",
			"type":    "url",
			"content": "https://example.com/menu",
		}, cookie)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, nethttp.StatusCreated, resp.StatusCode)

		body := decodeJSON(t, resp)
		code := body["qrcode"].(map[string]any)
		createdID = code["id"].(float64)
		assert.Equal(t, "Storefront Poster", code["name"])
		assert.Contains(t, code["trackingUrl"].(string), fmt.Sprintf("/s/%d", int(createdID)))
		assert.Equal(t, float64(0), code["scanCount"])
	})

	t.Run("rejects an invalid type", func(t *testing.T) {
		req := jsonRequest(t, nethttp.MethodPost, "/admin/api/qrcodes", map[string]any{
			"name":    "Bad",
			"type":    "barcode",
			"content": "x",
		}, cookie)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		body := decodeJSON(t, resp)
		assert.Equal(t, nethttp.StatusUnprocessableEntity, resp.StatusCode)
		assert.Contains(t, body["error"].(string), "Type")
	})

	t.Run("lists the user's QR codes", func(t *testing.T) {
		req := jsonRequest(t, nethttp.MethodGet, "/admin/api/qrcodes", nil, cookie)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, nethttp.StatusOK, resp.StatusCode)

		body := decodeJSON(t, resp)
		assert.Len(t, body["qrcodes"].([]any), 1)
	})

	t.Run("updates a QR code", func(t *testing.T) {
		req := jsonRequest(t, nethttp.MethodPost, fmt.Sprintf("/admin/api/qrcodes/%d", int(createdID)), map[string]any{
			"name":    "Window Sticker",
			"type":    "url",
			"content": "https://example.com/specials",
		}, cookie)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, nethttp.StatusOK, resp.StatusCode)

		body := decodeJSON(t, resp)
		code := body["qrcode"].(map[string]any)
		assert.Equal(t, "Window Sticker", code["name"])
		assert.Equal(t, "https://example.com/specials", code["content"])
	})

	t.Run("renders a PNG data URI", func(t *testing.T) {
		req := jsonRequest(t, nethttp.MethodGet, fmt.Sprintf("/admin/api/qrcodes/%d/image", int(createdID)), nil, cookie)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, nethttp.StatusOK, resp.StatusCode)

		body := decodeJSON(t, resp)
		assert.True(t, strings.HasPrefix(body["dataUri"].(string), "data:image/png;base64,"))
	})

	t.Run("renders an SVG", func(t *testing.T) {
		req := jsonRequest(t, nethttp.MethodGet, fmt.Sprintf("/admin/api/qrcodes/%d/image?format=svg", int(createdID)), nil, cookie)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, nethttp.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "image/svg+xml")
		resp.Body.Close()
	})

	t.Run("returns 404 for another id", func(t *testing.T) {
		req := jsonRequest(t, nethttp.MethodGet, "/admin/api/qrcodes/9999", nil, cookie)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, nethttp.StatusNotFound, resp.StatusCode)
	})

	t.Run("deletes a QR code", func(t *testing.T) {
		req := jsonRequest(t, nethttp.MethodDelete, fmt.Sprintf("/admin/api/qrcodes/%d", int(createdID)), nil, cookie)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, nethttp.StatusOK, resp.StatusCode)
		resp.Body.Close()

		req = jsonRequest(t, nethttp.MethodGet, "/admin/api/qrcodes", nil, cookie)
		resp, err = app.Test(req, -1)
		require.NoError(t, err)
		body := decodeJSON(t, resp)
		assert.Empty(t, body["qrcodes"])
	})
}

func TestCampaignEndpoints(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)
	testsupport.CreateTestUserForAuth(t, db, "camp-admin@example.com", "password123")
	cookie := login(t, app, "camp-admin@example.com", "password123")

	var campaignID float64

	t.Run("creates a campaign", func(t *testing.T) {
		req := jsonRequest(t, nethttp.MethodPost, "/admin/api/campaigns", map[string]any{
			"name":      "Spring Launch",
			"startDate": "2026-03-01",
		}, cookie)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, nethttp.StatusCreated, resp.StatusCode)

		body := decodeJSON(t, resp)
		campaign := body["campaign"].(map[string]any)
		campaignID = campaign["id"].(float64)
		assert.Equal(t, "Spring Launch", campaign["name"])
		assert.Equal(t, "active", campaign["status"])
		assert.Equal(t, "2026-03-01", campaign["startDate"])
	})

	t.Run("attaches a QR code to the campaign", func(t *testing.T) {
		id := uint(campaignID)
		req := jsonRequest(t, nethttp.MethodPost, "/admin/api/qrcodes", map[string]any{
			"name":       "Campaign Poster",
			"type":       "url",
			"content":    "https://example.com/spring",
			"campaignId": id,
		}, cookie)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, nethttp.StatusCreated, resp.StatusCode)
		resp.Body.Close()

		req = jsonRequest(t, nethttp.MethodGet, fmt.Sprintf("/admin/api/campaigns/%d", int(campaignID)), nil, cookie)
		resp, err = app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, nethttp.StatusOK, resp.StatusCode)

		body := decodeJSON(t, resp)
		assert.Len(t, body["qrcodes"].([]any), 1)
	})

	t.Run("rejects an invalid status", func(t *testing.T) {
		req := jsonRequest(t, nethttp.MethodPost, fmt.Sprintf("/admin/api/campaigns/%d", int(campaignID)), map[string]any{
			"name":   "Spring Launch",
			"status": "finished",
		}, cookie)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, nethttp.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("archives a campaign", func(t *testing.T) {
		req := jsonRequest(t, nethttp.MethodPost, fmt.Sprintf("/admin/api/campaigns/%d", int(campaignID)), map[string]any{
			"name":   "Spring Launch",
			"status": "archived",
		}, cookie)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, nethttp.StatusOK, resp.StatusCode)

		body := decodeJSON(t, resp)
		campaign := body["campaign"].(map[string]any)
		assert.Equal(t, "archived", campaign["status"])
	})

	t.Run("deletes the campaign and detaches its codes", func(t *testing.T) {
		req := jsonRequest(t, nethttp.MethodDelete, fmt.Sprintf("/admin/api/campaigns/%d", int(campaignID)), nil, cookie)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, nethttp.StatusOK, resp.StatusCode)
		resp.Body.Close()

		req = jsonRequest(t, nethttp.MethodGet, "/admin/api/qrcodes", nil, cookie)
		resp, err = app.Test(req, -1)
		require.NoError(t, err)
		body := decodeJSON(t, resp)
		codes := body["qrcodes"].([]any)
		require.Len(t, codes, 1)
		assert.Nil(t, codes[0].(map[string]any)["campaignId"])
	})
}

func TestAnalyticsEndpoints(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)
	user := testsupport.CreateTestUserForAuth(t, db, "stats-admin@example.com", "password123")
	cookie := login(t, app, "stats-admin@example.com", "password123")

	code := testsupport.CreateTestQRCode(t, db, user.ID, "Tracked", "https://example.com")
	now := time.Now()
	testsupport.CreateTestScan(t, db, code.ID, "1.1.1.1", "France", "Paris", "Mobile", "Safari", now)
	testsupport.CreateTestScan(t, db, code.ID, "2.2.2.2", "France", "Lyon", "Desktop", "Chrome", now.Add(-time.Hour))
	testsupport.CreateTestScan(t, db, code.ID, "1.1.1.1", "Spain", "Madrid", "Mobile", "Safari", now.Add(-2*time.Hour))

	t.Run("per QR code analytics", func(t *testing.T) {
		req := jsonRequest(t, nethttp.MethodGet, fmt.Sprintf("/admin/api/qrcodes/%d/analytics", code.ID), nil, cookie)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, nethttp.StatusOK, resp.StatusCode)

		body := decodeJSON(t, resp)
		assert.Equal(t, float64(3), body["totalScans"])
		assert.Equal(t, float64(2), body["uniqueVisitors"])
		countries := body["scansByCountry"].(map[string]any)
		assert.Equal(t, float64(2), countries["France"])
	})

	t.Run("global analytics", func(t *testing.T) {
		req := jsonRequest(t, nethttp.MethodGet, "/admin/api/analytics", nil, cookie)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, nethttp.StatusOK, resp.StatusCode)

		body := decodeJSON(t, resp)
		assert.Equal(t, float64(3), body["totalScans"])
		top := body["topCountries"].([]any)
		require.NotEmpty(t, top)
		first := top[0].(map[string]any)
		assert.Equal(t, "France", first["name"])
	})

	t.Run("analytics for a foreign QR code is 404", func(t *testing.T) {
		other := testsupport.CreateTestUser(db, "other@example.com", "password")
		foreign := testsupport.CreateTestQRCode(t, db, other.ID, "Foreign", "https://example.org")

		req := jsonRequest(t, nethttp.MethodGet, fmt.Sprintf("/admin/api/qrcodes/%d/analytics", foreign.ID), nil, cookie)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, nethttp.StatusNotFound, resp.StatusCode)
	})
}

func TestSettingsEndpoints(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)
	testsupport.CreateTestUserForAuth(t, db, "settings-admin@example.com", "password123")
	cookie := login(t, app, "settings-admin@example.com", "password123")

	t.Run("shows current settings", func(t *testing.T) {
		req := jsonRequest(t, nethttp.MethodGet, "/admin/api/settings", nil, cookie)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, nethttp.StatusOK, resp.StatusCode)

		body := decodeJSON(t, resp)
		assert.Contains(t, body, "excluded_ips")
		assert.Equal(t, false, body["geolite_configured"])
	})

	t.Run("rejects a malformed excluded IP list", func(t *testing.T) {
		req := jsonRequest(t, nethttp.MethodPost, "/admin/api/settings/excluded-ips", map[string]string{
			"excluded_ips": "not-an-ip",
		}, cookie)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, nethttp.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("saves a valid excluded IP list", func(t *testing.T) {
		req := jsonRequest(t, nethttp.MethodPost, "/admin/api/settings/excluded-ips", map[string]string{
			"excluded_ips": "203.0.113.1, 203.0.113.2",
		}, cookie)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, nethttp.StatusOK, resp.StatusCode)
		resp.Body.Close()

		stored, err := settings.GetSetting(db, settings.KeyExcludedIPs)
		require.NoError(t, err)
		assert.Equal(t, "203.0.113.1, 203.0.113.2", stored)
	})

	t.Run("creates and regenerates the agent API key", func(t *testing.T) {
		req := jsonRequest(t, nethttp.MethodGet, "/admin/api/settings/agent-key", nil, cookie)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, nethttp.StatusOK, resp.StatusCode)
		first := decodeJSON(t, resp)["api_key"].(string)
		assert.Len(t, first, 32)

		req = jsonRequest(t, nethttp.MethodPost, "/admin/api/settings/agent-key", nil, cookie)
		resp, err = app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, nethttp.StatusOK, resp.StatusCode)
		second := decodeJSON(t, resp)["api_key"].(string)
		assert.NotEqual(t, first, second)
	})

	t.Run("requires credentials before a manual GeoLite download", func(t *testing.T) {
		req := jsonRequest(t, nethttp.MethodPost, "/admin/api/settings/geolite/download", nil, cookie)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, nethttp.StatusUnprocessableEntity, resp.StatusCode)
	})
}

func TestAgentEndpoints(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	key, err := settings.GenerateAgentAPIKey(db)
	require.NoError(t, err)

	t.Run("rejects requests without a key", func(t *testing.T) {
		req := jsonRequest(t, nethttp.MethodGet, "/agent/api/v1/schema", nil)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("rejects a wrong key", func(t *testing.T) {
		req := jsonRequest(t, nethttp.MethodGet, "/agent/api/v1/schema", nil)
		req.Header.Set("Authorization", "Bearer "+strings.Repeat("x", 32))
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("serves the schema with a valid key", func(t *testing.T) {
		req := jsonRequest(t, nethttp.MethodGet, "/agent/api/v1/schema", nil)
		req.Header.Set("Authorization", "Bearer "+key)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, nethttp.StatusOK, resp.StatusCode)

		body := decodeJSON(t, resp)
		assert.Contains(t, body["schema"].(string), "qr_scans")
	})

	t.Run("executes a read-only query", func(t *testing.T) {
		req := jsonRequest(t, nethttp.MethodPost, "/agent/api/v1/sql", map[string]string{
			"sql": "SELECT COUNT(*) AS total FROM qr_scans",
		})
		req.Header.Set("Authorization", "Bearer "+key)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, nethttp.StatusOK, resp.StatusCode)

		body := decodeJSON(t, resp)
		assert.Equal(t, []any{"total"}, body["columns"].([]any))
	})

	t.Run("rejects a write query", func(t *testing.T) {
		req := jsonRequest(t, nethttp.MethodPost, "/agent/api/v1/sql", map[string]string{
			"sql": "DELETE FROM qr_scans",
		})
		req.Header.Set("Authorization", "Bearer "+key)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)
	})
}
