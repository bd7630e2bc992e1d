// Package geo resolves IP addresses to an approximate country and city.
//
// Resolution is best-effort by design: a local GeoLite2 database is used
// when one is configured and present, otherwise a single HTTP lookup is
// issued against an ip-api style endpoint. Every failure mode degrades to
// the Unknown/Unknown result - callers never see an error.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/oschwald/geoip2-golang"
	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Unknown is the fallback value for both country and city.
const Unknown = "Unknown"

// Location is the resolved approximate location for an IP address.
type Location struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

// UnknownLocation returns the degraded lookup result.
func UnknownLocation() Location {
	return Location{Country: Unknown, City: Unknown}
}

// apiResponse mirrors the relevant fields of the ip-api JSON schema.
type apiResponse struct {
	Status  string `json:"status"`
	Country string `json:"country"`
	City    string `json:"city"`
}

// Resolver performs IP geolocation lookups.
type Resolver struct {
	mu        sync.RWMutex
	db        *geoip2.Reader
	geoDBPath string
	client    *http.Client
	apiURL    string
	countries *gountries.Query
	logger    *slog.Logger
}

// Options configures a Resolver.
type Options struct {
	// GeoDBPath is the optional path to a local GeoLite2 City database.
	// A missing or unreadable file disables the local path silently.
	GeoDBPath string
	// APIURL is a printf template receiving the IP address, e.g.
	// "http://ip-api.com/json/%s". Empty disables the HTTP fallback.
	APIURL string
	// Timeout bounds each HTTP lookup.
	Timeout time.Duration
}

// NewResolver builds a Resolver from the given options.
func NewResolver(opts Options, logger *slog.Logger) *Resolver {
	r := &Resolver{
		geoDBPath: opts.GeoDBPath,
		apiURL:    opts.APIURL,
		countries: gountries.New(),
		logger:    logger,
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	r.client = &http.Client{Timeout: timeout}

	r.Reload()

	return r
}

// Reload re-opens the local GeoLite2 database, picking up a freshly
// downloaded file. Safe to call while lookups are in flight.
func (r *Resolver) Reload() {
	if r.geoDBPath == "" {
		return
	}

	if _, err := os.Stat(r.geoDBPath); err != nil {
		r.logger.Debug("GeoLite2 database not found - falling back to HTTP lookups",
			slog.String("path", r.geoDBPath))
		return
	}

	db, err := geoip2.Open(r.geoDBPath)
	if err != nil {
		r.logger.Warn("Failed to open GeoLite2 database - falling back to HTTP lookups",
			slog.String("path", r.geoDBPath),
			slog.Any("error", err))
		return
	}

	r.logger.Info("Using local GeoLite2 database for geolocation",
		slog.String("path", r.geoDBPath))

	r.mu.Lock()
	old := r.db
	r.db = db
	r.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

// Close releases the local database handle, if any.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// localDB returns the current GeoLite2 handle, nil when HTTP-only.
func (r *Resolver) localDB() *geoip2.Reader {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.db
}

// Lookup resolves an IP address to a country and city. A missing IP, the
// literal "Unknown", and every lookup failure all return Unknown/Unknown.
func (r *Resolver) Lookup(ctx context.Context, ipAddress string) Location {
	if ipAddress == "" || ipAddress == Unknown {
		return UnknownLocation()
	}

	if db := r.localDB(); db != nil {
		return r.lookupLocal(db, ipAddress)
	}

	return r.lookupHTTP(ctx, ipAddress)
}

// lookupLocal resolves against the local GeoLite2 City database.
func (r *Resolver) lookupLocal(db *geoip2.Reader, ipAddress string) Location {
	ip := net.ParseIP(ipAddress)
	if ip == nil {
		r.logger.Debug("Failed to parse IP address", slog.String("ip_address", ipAddress))
		return UnknownLocation()
	}

	record, err := db.City(ip)
	if err != nil {
		r.logger.Debug("GeoLite2 lookup failed",
			slog.String("ip_address", ipAddress),
			slog.Any("error", err))
		return UnknownLocation()
	}

	loc := UnknownLocation()
	if name := r.countryName(record.Country.IsoCode); name != "" {
		loc.Country = name
	}
	if city := record.City.Names["en"]; city != "" {
		loc.City = city
	}
	return loc
}

// countryName maps an ISO code to a display name, upper-casing the raw
// code when it is not a known country.
func (r *Resolver) countryName(isoCode string) string {
	if isoCode == "" || isoCode == "--" {
		return ""
	}
	country, err := r.countries.FindCountryByAlpha(isoCode)
	if err != nil {
		caser := cases.Upper(language.AmericanEnglish)
		return caser.String(isoCode)
	}
	return country.Name.Common
}

// lookupHTTP issues one lookup against the configured geolocation endpoint.
// No retry and no caching: every scan pays for a fresh lookup.
func (r *Resolver) lookupHTTP(ctx context.Context, ipAddress string) Location {
	if r.apiURL == "" {
		return UnknownLocation()
	}

	url := fmt.Sprintf(r.apiURL, ipAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		r.logger.Debug("Failed to build geolocation request", slog.Any("error", err))
		return UnknownLocation()
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("Geolocation lookup failed",
			slog.String("ip_address", ipAddress),
			slog.Any("error", err))
		return UnknownLocation()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Warn("Geolocation lookup returned non-OK status",
			slog.String("ip_address", ipAddress),
			slog.Int("status", resp.StatusCode))
		return UnknownLocation()
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		r.logger.Warn("Failed to decode geolocation response", slog.Any("error", err))
		return UnknownLocation()
	}

	if body.Status != "success" {
		return UnknownLocation()
	}

	loc := UnknownLocation()
	if body.Country != "" {
		loc.Country = body.Country
	}
	if body.City != "" {
		loc.City = body.City
	}
	return loc
}
