package v1_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "scantrail/api/v1"
	"scantrail/internal/pkg/geo"
	"scantrail/internal/scans"
	"scantrail/internal/settings"
	"scantrail/internal/testsupport"
)

// geoStub serves ip-api style responses so no lookup leaves the test process.
func geoStub(t *testing.T, country, city string) *geo.Resolver {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"success","country":%q,"city":%q}`, country, city)
	}))
	t.Cleanup(server.Close)

	return geo.NewResolver(geo.Options{APIURL: server.URL + "/%s"}, testsupport.GetLogger())
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	return body
}

func TestRecordScanEndpoint(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)
	v1.SetResolver(geoStub(t, "France", "Paris"))

	user := testsupport.CreateTestUser(db, "scan-api@example.com", "password")

	t.Run("records an enriched scan", func(t *testing.T) {
		testsupport.CleanAllTables(db)
		code := testsupport.CreateTestQRCode(t, db, user.ID, "Poster", "https://example.com")

		resp := postJSON(t, app, "/x/api/v1/scans", map[string]any{
			"qrcodeId":  code.ID,
			"userAgent": "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Version/17.0 Mobile/15E148 Safari/604.1",
			"ipAddress": "203.0.113.7",
			"referrer":  "https://instagram.com",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, true, body["success"])
		assert.Greater(t, body["scanId"].(float64), float64(0))

		events, err := scans.GetScansForQRCode(db, code.ID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "France", *events[0].Country)
		assert.Equal(t, "Mobile", *events[0].DeviceType)
		assert.Equal(t, "203.0.113.7", *events[0].IPAddress)
	})

	t.Run("rejects a missing qrcodeId", func(t *testing.T) {
		testsupport.CleanAllTables(db)

		resp := postJSON(t, app, "/x/api/v1/scans", map[string]any{
			"userAgent": "curl/8.0",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("records a scan for an unknown QR code", func(t *testing.T) {
		testsupport.CleanAllTables(db)

		resp := postJSON(t, app, "/x/api/v1/scans", map[string]any{
			"qrcodeId": 9999,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, true, body["success"])

		events, err := scans.GetScansForQRCode(db, 9999)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("drops scans from excluded IPs", func(t *testing.T) {
		testsupport.CleanAllTables(db)
		code := testsupport.CreateTestQRCode(t, db, user.ID, "Excluded", "https://example.com")
		require.NoError(t, settings.UpdateSetting(db, settings.KeyExcludedIPs, "198.51.100.9"))

		resp := postJSON(t, app, "/x/api/v1/scans", map[string]any{
			"qrcodeId":  code.ID,
			"ipAddress": "198.51.100.9",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, float64(0), body["scanId"])

		events, err := scans.GetScansForQRCode(db, code.ID)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestRedirectScanEndpoint(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)
	v1.SetResolver(geo.NewResolver(geo.Options{}, testsupport.GetLogger()))

	user := testsupport.CreateTestUser(db, "redirect@example.com", "password")

	t.Run("records the scan and redirects to the content URL", func(t *testing.T) {
		testsupport.CleanAllTables(db)
		code := testsupport.CreateTestQRCode(t, db, user.ID, "Flyer", "https://example.com/menu")

		req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/s/%d", code.ID), nil)
		req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0.0.0 Safari/537.36")
		req.Header.Set("Referer", "https://twitter.com")

		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "https://example.com/menu", resp.Header.Get("Location"))

		events, err := scans.GetScansForQRCode(db, code.ID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "Desktop", *events[0].DeviceType)
		assert.Equal(t, "Chrome", *events[0].Browser)
		assert.Equal(t, "https://twitter.com", *events[0].Referrer)
	})

	t.Run("returns 404 for an unknown QR code", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/s/424242", nil)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("returns 404 for a malformed id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/s/not-a-number", nil)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestVisitorInfoEndpoint(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)
	v1.SetResolver(geo.NewResolver(geo.Options{}, testsupport.GetLogger()))

	t.Run("classifies the caller without persisting", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x/api/v1/me", nil)
		req.Header.Set("User-Agent", "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) Version/17.0 Safari/604.1")

		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, "Tablet", body["deviceType"])
		assert.Equal(t, "Safari", body["browser"])
		assert.Equal(t, "Unknown", body["country"])
	})

	t.Run("honors the forwarded user agent override", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x/api/v1/me", nil)
		req.Header.Set("User-Agent", "curl/8.0")
		req.Header.Set("X-Forwarded-User-Agent", "Mozilla/5.0 (Linux; Android 14) Chrome/120.0.0.0 Mobile Safari/537.36")

		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, "Mobile", body["deviceType"])
		assert.Equal(t, "Chrome", body["browser"])
	})
}
