package campaigns

import (
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Campaign statuses
const (
	StatusActive   = "active"
	StatusPaused   = "paused"
	StatusArchived = "archived"
)

// CampaignNotFoundError represents an error when a campaign is not found
type CampaignNotFoundError struct {
	ID uint
}

func (e *CampaignNotFoundError) Error() string {
	return fmt.Sprintf("campaign not found: %d", e.ID)
}

// NewCampaignNotFoundError creates a new CampaignNotFoundError
func NewCampaignNotFoundError(id uint) *CampaignNotFoundError {
	return &CampaignNotFoundError{ID: id}
}

// Campaign groups QR codes under a shared marketing initiative
type Campaign struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      uint       `gorm:"index;not null" json:"user_id"`
	Name        string     `gorm:"not null" json:"name"`
	Description string     `json:"description"`
	Status      string     `gorm:"default:'active'" json:"status"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ValidStatus reports whether s is one of the known campaign statuses
func ValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusPaused, StatusArchived:
		return true
	}
	return false
}

// GetCampaignByID retrieves a campaign by its ID
func GetCampaignByID(db *gorm.DB, id uint) (*Campaign, error) {
	var campaign Campaign
	if err := db.First(&campaign, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NewCampaignNotFoundError(id)
		}
		return nil, fmt.Errorf("unexpected error querying campaign: %w", err)
	}
	return &campaign, nil
}

// GetCampaignForUser retrieves a campaign by ID scoped to its owner
func GetCampaignForUser(db *gorm.DB, id uint, userID uint) (*Campaign, error) {
	var campaign Campaign
	if err := db.Where("id = ? AND user_id = ?", id, userID).First(&campaign).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NewCampaignNotFoundError(id)
		}
		return nil, fmt.Errorf("unexpected error querying campaign: %w", err)
	}
	return &campaign, nil
}

// GetCampaignsForUser retrieves all campaigns owned by a user, newest first
func GetCampaignsForUser(db *gorm.DB, userID uint) ([]Campaign, error) {
	var campaigns []Campaign
	if err := db.Where("user_id = ?", userID).Order("created_at DESC").Find(&campaigns).Error; err != nil {
		return nil, fmt.Errorf("failed to get campaigns: %w", err)
	}
	return campaigns, nil
}

// CreateCampaign creates a new campaign
func CreateCampaign(logger *slog.Logger, db *gorm.DB, campaign *Campaign) error {
	campaign.Name = strings.TrimSpace(campaign.Name)
	if campaign.Name == "" {
		return fmt.Errorf("campaign name is required")
	}
	if campaign.Status == "" {
		campaign.Status = StatusActive
	}
	if !ValidStatus(campaign.Status) {
		return fmt.Errorf("invalid campaign status: %s", campaign.Status)
	}
	campaign.CreatedAt = time.Now().UTC()
	campaign.UpdatedAt = campaign.CreatedAt

	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(campaign).Error
	})
}

// UpdateCampaign updates an existing campaign
func UpdateCampaign(logger *slog.Logger, db *gorm.DB, campaign *Campaign) error {
	campaign.Name = strings.TrimSpace(campaign.Name)
	if campaign.Name == "" {
		return fmt.Errorf("campaign name is required")
	}
	if !ValidStatus(campaign.Status) {
		return fmt.Errorf("invalid campaign status: %s", campaign.Status)
	}
	campaign.UpdatedAt = time.Now().UTC()

	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Save(campaign).Error
	})
}

// DeleteCampaign deletes a campaign by its ID. QR codes assigned to the
// campaign are detached, not deleted.
func DeleteCampaign(logger *slog.Logger, db *gorm.DB, id uint, userID uint) error {
	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if err := tx.Exec("UPDATE qrcodes SET campaign_id = NULL WHERE campaign_id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to detach qrcodes: %w", err)
		}
		result := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&Campaign{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return NewCampaignNotFoundError(id)
		}
		return nil
	})
}
