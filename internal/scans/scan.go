// Package scans records and queries individual QR code scan events.
package scans

import (
	"time"
)

// ScanEvent is a single scan of a QR code. Enrichment columns are nullable:
// a scan is still stored when the user agent is missing or geolocation fails.
type ScanEvent struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	QRCodeID   uint      `gorm:"column:qrcode_id;index;not null" json:"qrcode_id"`
	CampaignID *uint     `gorm:"index" json:"campaign_id"`
	ScannedAt  time.Time `gorm:"index;not null" json:"scanned_at"`
	IPAddress  *string   `json:"ip_address"`
	UserAgent  *string   `json:"user_agent"`
	Referrer   *string   `json:"referrer"`
	Country    *string   `json:"country"`
	City       *string   `json:"city"`
	DeviceType *string   `json:"device_type"`
	Browser    *string   `json:"browser"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName overrides the default pluralization ("scan_events")
func (ScanEvent) TableName() string {
	return "qr_scans"
}
