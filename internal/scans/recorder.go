package scans

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"scantrail/internal/pkg/geo"
	"scantrail/internal/pkg/useragent"
	"scantrail/internal/qrcodes"
	"scantrail/internal/settings"
)

// RecordScanInput carries the raw request data for one scan. Everything but
// the QR code ID is optional.
type RecordScanInput struct {
	QRCodeID  uint
	UserAgent string
	IPAddress string
	Referrer  string
}

// Recorder turns raw scan requests into stored scan events
type Recorder struct {
	dbManager cartridge.DBManager
	resolver  *geo.Resolver
	logger    *slog.Logger
}

// NewRecorder creates a Recorder
func NewRecorder(dbManager cartridge.DBManager, resolver *geo.Resolver, logger *slog.Logger) *Recorder {
	return &Recorder{
		dbManager: dbManager,
		resolver:  resolver,
		logger:    logger,
	}
}

// RecordScan stores a scan event and bumps the QR code's counter.
//
// The event insert is the source of truth: if it fails the whole operation
// fails. The counter increment is best effort, a failure there is logged and
// the scan still succeeds. Returns the new scan's ID, or 0 when the scan was
// dropped because the client IP is on the exclusion list.
func (r *Recorder) RecordScan(ctx context.Context, input *RecordScanInput) (uint, error) {
	if input.QRCodeID == 0 {
		return 0, fmt.Errorf("qrcode id is required")
	}

	db := r.dbManager.GetConnection()

	if input.IPAddress != "" {
		excluded, err := settings.IsIPExcluded(input.IPAddress)
		if err != nil {
			r.logger.Warn("Failed to check IP exclusion list", slog.Any("error", err))
		} else if excluded {
			r.logger.Debug("Dropping scan from excluded IP",
				slog.String("ip", input.IPAddress),
				slog.Uint64("qrcode_id", uint64(input.QRCodeID)))
			return 0, nil
		}
	}

	ua := useragent.Classify(input.UserAgent)
	location := r.resolver.Lookup(ctx, input.IPAddress)

	// Missing QR codes don't block recording, the scan is stored without a
	// campaign. The counter increment will surface the problem below.
	var campaignID *uint
	if qr, err := qrcodes.GetQRCodeByID(db, input.QRCodeID); err == nil {
		campaignID = qr.CampaignID
	} else {
		r.logger.Warn("QR code lookup failed while recording scan",
			slog.Uint64("qrcode_id", uint64(input.QRCodeID)),
			slog.Any("error", err))
	}

	now := time.Now().UTC()
	event := ScanEvent{
		QRCodeID:   input.QRCodeID,
		CampaignID: campaignID,
		ScannedAt:  now,
		IPAddress:  optional(input.IPAddress),
		UserAgent:  optional(input.UserAgent),
		Referrer:   optional(input.Referrer),
		Country:    &location.Country,
		City:       &location.City,
		DeviceType: &ua.DeviceType,
		Browser:    &ua.Browser,
		CreatedAt:  now,
	}

	err := sqlite.PerformWrite(r.logger, db, func(tx *gorm.DB) error {
		return tx.Create(&event).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to record scan: %w", err)
	}

	r.incrementCounter(db, input.QRCodeID)

	return event.ID, nil
}

// incrementCounter bumps the denormalized scan_count, falling back to a
// read-modify-write when the atomic update fails. Errors never propagate,
// drift is repaired by the reconciler job.
func (r *Recorder) incrementCounter(db *gorm.DB, qrcodeID uint) {
	err := qrcodes.IncrementScanCount(r.logger, db, qrcodeID)
	if err == nil {
		return
	}
	r.logger.Warn("Atomic scan count increment failed, falling back",
		slog.Uint64("qrcode_id", uint64(qrcodeID)),
		slog.Any("error", err))

	if err := qrcodes.IncrementScanCountFallback(r.logger, db, qrcodeID); err != nil {
		r.logger.Error("Scan count fallback update failed",
			slog.Uint64("qrcode_id", uint64(qrcodeID)),
			slog.Any("error", err))
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
