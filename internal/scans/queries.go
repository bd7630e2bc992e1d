package scans

import (
	"fmt"

	"gorm.io/gorm"
)

// ScanWithQRCode is a scan event joined with a summary of its QR code
type ScanWithQRCode struct {
	ScanEvent
	QRCodeName string `json:"qrcode_name"`
	QRCodeType string `json:"qrcode_type"`
}

// GetScansForQRCode returns all scans of one QR code, newest first
func GetScansForQRCode(db *gorm.DB, qrcodeID uint) ([]ScanEvent, error) {
	var events []ScanEvent
	err := db.Where("qrcode_id = ?", qrcodeID).
		Order("scanned_at DESC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get scans: %w", err)
	}
	return events, nil
}

// GetScansForUser returns all scans across a user's QR codes, newest first,
// each joined with the QR code's name and type.
func GetScansForUser(db *gorm.DB, userID uint) ([]ScanWithQRCode, error) {
	var events []ScanWithQRCode
	err := db.Table("qr_scans").
		Select("qr_scans.*, qrcodes.name AS qr_code_name, qrcodes.type AS qr_code_type").
		Joins("JOIN qrcodes ON qrcodes.id = qr_scans.qrcode_id").
		Where("qrcodes.user_id = ?", userID).
		Order("qr_scans.scanned_at DESC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get scans: %w", err)
	}
	return events, nil
}

// GetScansForCampaign returns all scans attributed to a campaign, newest first
func GetScansForCampaign(db *gorm.DB, campaignID uint) ([]ScanEvent, error) {
	var events []ScanEvent
	err := db.Where("campaign_id = ?", campaignID).
		Order("scanned_at DESC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get scans: %w", err)
	}
	return events, nil
}

// CountScansForQRCode counts the stored scan events of one QR code
func CountScansForQRCode(db *gorm.DB, qrcodeID uint) (int64, error) {
	var count int64
	err := db.Model(&ScanEvent{}).Where("qrcode_id = ?", qrcodeID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count scans: %w", err)
	}
	return count, nil
}
