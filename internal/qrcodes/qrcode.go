// Package qrcodes manages QR code records and their rendered images.
package qrcodes

import (
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// QR code content types
const (
	TypeURL   = "url"
	TypeText  = "text"
	TypeEmail = "email"
	TypePhone = "phone"
	TypeWiFi  = "wifi"
)

// QRCodeNotFoundError represents an error when a QR code is not found
type QRCodeNotFoundError struct {
	ID uint
}

func (e *QRCodeNotFoundError) Error() string {
	return fmt.Sprintf("qr code not found: %d", e.ID)
}

// NewQRCodeNotFoundError creates a new QRCodeNotFoundError
func NewQRCodeNotFoundError(id uint) *QRCodeNotFoundError {
	return &QRCodeNotFoundError{ID: id}
}

// QRCode represents a generated QR code. ScanCount is a denormalized counter
// kept in sync with the scans table on a best effort basis; the reconciler
// job repairs any drift.
type QRCode struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     uint      `gorm:"index;not null" json:"user_id"`
	Name       string    `gorm:"not null" json:"name"`
	Type       string    `gorm:"default:'url'" json:"type"`
	Content    string    `gorm:"not null" json:"content"`
	ScanCount  int64     `gorm:"not null;default:0" json:"scan_count"`
	CampaignID *uint     `gorm:"index" json:"campaign_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName overrides the default pluralization ("qr_codes")
func (QRCode) TableName() string {
	return "qrcodes"
}

// ValidType reports whether t is one of the known content types
func ValidType(t string) bool {
	switch t {
	case TypeURL, TypeText, TypeEmail, TypePhone, TypeWiFi:
		return true
	}
	return false
}

// GetQRCodeByID retrieves a QR code by its ID
func GetQRCodeByID(db *gorm.DB, id uint) (*QRCode, error) {
	var qr QRCode
	if err := db.First(&qr, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NewQRCodeNotFoundError(id)
		}
		return nil, fmt.Errorf("unexpected error querying qr code: %w", err)
	}
	return &qr, nil
}

// GetQRCodeForUser retrieves a QR code by ID scoped to its owner
func GetQRCodeForUser(db *gorm.DB, id uint, userID uint) (*QRCode, error) {
	var qr QRCode
	if err := db.Where("id = ? AND user_id = ?", id, userID).First(&qr).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NewQRCodeNotFoundError(id)
		}
		return nil, fmt.Errorf("unexpected error querying qr code: %w", err)
	}
	return &qr, nil
}

// GetQRCodesForUser retrieves all QR codes owned by a user, newest first
func GetQRCodesForUser(db *gorm.DB, userID uint) ([]QRCode, error) {
	var codes []QRCode
	if err := db.Where("user_id = ?", userID).Order("created_at DESC").Find(&codes).Error; err != nil {
		return nil, fmt.Errorf("failed to get qr codes: %w", err)
	}
	return codes, nil
}

// GetQRCodesForCampaign retrieves all QR codes assigned to a campaign
func GetQRCodesForCampaign(db *gorm.DB, campaignID uint) ([]QRCode, error) {
	var codes []QRCode
	if err := db.Where("campaign_id = ?", campaignID).Order("created_at DESC").Find(&codes).Error; err != nil {
		return nil, fmt.Errorf("failed to get qr codes: %w", err)
	}
	return codes, nil
}

// CreateQRCode creates a new QR code record
func CreateQRCode(logger *slog.Logger, db *gorm.DB, qr *QRCode) error {
	qr.Name = strings.TrimSpace(qr.Name)
	if qr.Name == "" {
		return fmt.Errorf("qr code name is required")
	}
	if strings.TrimSpace(qr.Content) == "" {
		return fmt.Errorf("qr code content is required")
	}
	if qr.Type == "" {
		qr.Type = TypeURL
	}
	if !ValidType(qr.Type) {
		return fmt.Errorf("invalid qr code type: %s", qr.Type)
	}
	qr.ScanCount = 0
	qr.CreatedAt = time.Now().UTC()
	qr.UpdatedAt = qr.CreatedAt

	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(qr).Error
	})
}

// UpdateQRCode updates an existing QR code. ScanCount is never written here,
// only the increment path and the reconciler touch it.
func UpdateQRCode(logger *slog.Logger, db *gorm.DB, qr *QRCode) error {
	qr.Name = strings.TrimSpace(qr.Name)
	if qr.Name == "" {
		return fmt.Errorf("qr code name is required")
	}
	if !ValidType(qr.Type) {
		return fmt.Errorf("invalid qr code type: %s", qr.Type)
	}
	qr.UpdatedAt = time.Now().UTC()

	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(&QRCode{}).Where("id = ?", qr.ID).Updates(map[string]interface{}{
			"name":        qr.Name,
			"type":        qr.Type,
			"content":     qr.Content,
			"campaign_id": qr.CampaignID,
			"updated_at":  qr.UpdatedAt,
		}).Error
	})
}

// DeleteQRCode deletes a QR code and its scans
func DeleteQRCode(logger *slog.Logger, db *gorm.DB, id uint, userID uint) error {
	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&QRCode{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return NewQRCodeNotFoundError(id)
		}
		return tx.Exec("DELETE FROM qr_scans WHERE qrcode_id = ?", id).Error
	})
}

// IncrementScanCount bumps the denormalized counter by one. The single
// UPDATE is atomic; if it fails the caller falls back to a read-modify-write
// via IncrementScanCountFallback.
func IncrementScanCount(logger *slog.Logger, db *gorm.DB, id uint) error {
	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		result := tx.Exec("UPDATE qrcodes SET scan_count = scan_count + 1, updated_at = ? WHERE id = ?", time.Now().UTC(), id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return NewQRCodeNotFoundError(id)
		}
		return nil
	})
}

// IncrementScanCountFallback reads the current counter and writes it back
// incremented. Less safe under concurrency than IncrementScanCount, used
// only when the atomic path fails.
func IncrementScanCountFallback(logger *slog.Logger, db *gorm.DB, id uint) error {
	qr, err := GetQRCodeByID(db, id)
	if err != nil {
		return err
	}
	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(&QRCode{}).Where("id = ?", id).
			Updates(map[string]interface{}{"scan_count": qr.ScanCount + 1, "updated_at": time.Now().UTC()}).Error
	})
}

// SetScanCount overwrites the counter, used by the reconciler job
func SetScanCount(logger *slog.Logger, db *gorm.DB, id uint, count int64) error {
	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(&QRCode{}).Where("id = ?", id).
			Updates(map[string]interface{}{"scan_count": count, "updated_at": time.Now().UTC()}).Error
	})
}
