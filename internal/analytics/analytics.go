// Package analytics computes scan statistics in memory from stored scan
// events. Aggregates are recomputed per request, there are no rollup tables.
package analytics

import (
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"scantrail/internal/qrcodes"
	"scantrail/internal/scans"
)

// dateKey buckets a timestamp by calendar day in the server's local timezone
const dateLayout = "Mon Jan 02 2006"

// NamedCount is a ranked label with its scan count
type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// QRCodeSummary is the subset of a QR code shown alongside its analytics
type QRCodeSummary struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	ScanCount int64     `json:"scan_count"`
	CreatedAt time.Time `json:"created_at"`
}

// QRCodeAnalytics aggregates all scans of a single QR code
type QRCodeAnalytics struct {
	TotalScans     int               `json:"totalScans"`
	UniqueVisitors int               `json:"uniqueVisitors"`
	ScansByCountry map[string]int    `json:"scansByCountry"`
	ScansByCity    map[string]int    `json:"scansByCity"`
	ScansByDevice  map[string]int    `json:"scansByDevice"`
	ScansByBrowser map[string]int    `json:"scansByBrowser"`
	ScansByDate    map[string]int    `json:"scansByDate"`
	RecentScans    []scans.ScanEvent `json:"recentScans"`
	QRCode         *QRCodeSummary    `json:"qrcode"`
}

// GlobalAnalytics aggregates all scans across a user's QR codes
type GlobalAnalytics struct {
	TotalScans       int                    `json:"totalScans"`
	UniqueVisitors   int                    `json:"uniqueVisitors"`
	TopCountries     []NamedCount           `json:"topCountries"`
	TopCities        []NamedCount           `json:"topCities"`
	DeviceBreakdown  map[string]int         `json:"deviceBreakdown"`
	BrowserBreakdown map[string]int         `json:"browserBreakdown"`
	ScanTrend        map[string]int         `json:"scanTrend"`
	TopQRCodes       []NamedCount           `json:"topQRCodes"`
	RecentActivity   []scans.ScanWithQRCode `json:"recentActivity"`
}

// GetQRCodeAnalytics computes analytics for one QR code from its scans.
// Empty history yields zeroed aggregates with a nil QR code summary.
func GetQRCodeAnalytics(db *gorm.DB, qrcodeID uint) (*QRCodeAnalytics, error) {
	events, err := scans.GetScansForQRCode(db, qrcodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load scans for analytics: %w", err)
	}

	result := &QRCodeAnalytics{
		TotalScans:     len(events),
		UniqueVisitors: countUniqueVisitors(ips(events)),
		ScansByCountry: map[string]int{},
		ScansByCity:    map[string]int{},
		ScansByDevice:  map[string]int{},
		ScansByBrowser: map[string]int{},
		ScansByDate:    map[string]int{},
		RecentScans:    firstN(events, 10),
	}

	for _, scan := range events {
		countIfPresent(result.ScansByCountry, scan.Country)
		countIfPresent(result.ScansByCity, scan.City)
		countIfPresent(result.ScansByDevice, scan.DeviceType)
		countIfPresent(result.ScansByBrowser, scan.Browser)
		result.ScansByDate[scan.ScannedAt.Local().Format(dateLayout)]++
	}

	if len(events) > 0 {
		qr, err := qrcodes.GetQRCodeByID(db, qrcodeID)
		if err == nil {
			result.QRCode = &QRCodeSummary{
				Name:      qr.Name,
				Type:      qr.Type,
				Content:   qr.Content,
				ScanCount: qr.ScanCount,
				CreatedAt: qr.CreatedAt,
			}
		}
	}

	return result, nil
}

// GetGlobalAnalytics computes analytics across every QR code owned by a user
func GetGlobalAnalytics(db *gorm.DB, userID uint) (*GlobalAnalytics, error) {
	events, err := scans.GetScansForUser(db, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load scans for analytics: %w", err)
	}

	result := &GlobalAnalytics{
		TotalScans:       len(events),
		DeviceBreakdown:  map[string]int{},
		BrowserBreakdown: map[string]int{},
		ScanTrend:        map[string]int{},
		RecentActivity:   firstN(events, 20),
	}

	visitorIPs := make([]*string, 0, len(events))
	countries := newOrderedCounter()
	cities := newOrderedCounter()
	codes := newOrderedCounter()

	for _, scan := range events {
		visitorIPs = append(visitorIPs, scan.IPAddress)

		if scan.Country != nil {
			countries.add(*scan.Country)
		}
		if scan.City != nil {
			cities.add(*scan.City)
		}
		countIfPresent(result.DeviceBreakdown, scan.DeviceType)
		countIfPresent(result.BrowserBreakdown, scan.Browser)

		name := scan.QRCodeName
		if name == "" {
			name = "Unknown"
		}
		codes.add(name)

		result.ScanTrend[scan.ScannedAt.Local().Format(dateLayout)]++
	}

	result.UniqueVisitors = countUniqueVisitors(visitorIPs)
	result.TopCountries = countries.top(10)
	result.TopCities = cities.top(10)
	result.TopQRCodes = codes.top(10)

	return result, nil
}

// countUniqueVisitors counts distinct IP addresses. Scans without an IP all
// collapse into a single extra bucket.
func countUniqueVisitors(ips []*string) int {
	seen := make(map[string]struct{})
	missing := false
	for _, ip := range ips {
		if ip == nil {
			missing = true
			continue
		}
		seen[*ip] = struct{}{}
	}
	count := len(seen)
	if missing {
		count++
	}
	return count
}

func countIfPresent(counts map[string]int, value *string) {
	if value != nil {
		counts[*value]++
	}
}

func ips(events []scans.ScanEvent) []*string {
	out := make([]*string, len(events))
	for i, scan := range events {
		out[i] = scan.IPAddress
	}
	return out
}

func firstN[T any](items []T, n int) []T {
	if len(items) < n {
		n = len(items)
	}
	return items[:n:n]
}

// orderedCounter counts labels while remembering first-seen order so that
// ranking ties resolve deterministically.
type orderedCounter struct {
	counts map[string]int
	order  []string
}

func newOrderedCounter() *orderedCounter {
	return &orderedCounter{counts: map[string]int{}}
}

func (c *orderedCounter) add(key string) {
	if _, exists := c.counts[key]; !exists {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

func (c *orderedCounter) top(n int) []NamedCount {
	ranked := make([]NamedCount, 0, len(c.order))
	for _, key := range c.order {
		ranked = append(ranked, NamedCount{Name: key, Count: c.counts[key]})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	return firstN(ranked, n)
}
