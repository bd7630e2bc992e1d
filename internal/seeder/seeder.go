// Package seeder fills a development database with demo QR codes, campaigns
// and scan history.
package seeder

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"scantrail/internal/campaigns"
	"scantrail/internal/pkg/useragent"
	"scantrail/internal/qrcodes"
	"scantrail/internal/scans"
	"scantrail/internal/users"
)

// Seeder handles the data seeding process
type Seeder struct {
	DBManager cartridge.DBManager
	Logger    *slog.Logger
	ScanCount int
}

// NewSeeder creates a new seeder instance
func NewSeeder(dbManager cartridge.DBManager, logger *slog.Logger, scanCount int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		DBManager: dbManager,
		Logger:    logger,
		ScanCount: scanCount,
	}
}

// Run executes the seeding process
func (s *Seeder) Run(ctx context.Context) error {
	start := time.Now()
	s.Logger.Info("Starting database seeding...", slog.Int("scanCount", s.ScanCount))

	user, err := s.seedUser()
	if err != nil {
		return fmt.Errorf("failed to seed user: %w", err)
	}

	campaignList, err := s.seedCampaigns(user.ID)
	if err != nil {
		return fmt.Errorf("failed to seed campaigns: %w", err)
	}

	codes, err := s.seedQRCodes(user.ID, campaignList)
	if err != nil {
		return fmt.Errorf("failed to seed qr codes: %w", err)
	}

	if err := s.generateScanHistory(ctx, codes); err != nil {
		return fmt.Errorf("failed to generate scan history: %w", err)
	}

	s.Logger.Info("Seeding completed successfully", slog.Duration("elapsed", time.Since(start)))
	return nil
}

// seedUser ensures the default admin user exists
func (s *Seeder) seedUser() (*users.User, error) {
	db := s.DBManager.GetConnection()
	user, err := users.FindByEmail(db, "admin@example.com")

	if err == nil {
		s.Logger.Info("Admin user already exists", slog.String("email", user.Email))
		return user, nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check for existing user: %w", err)
	}

	s.Logger.Info("Creating admin user")
	newUser, err := users.CreateUser(db, "admin@example.com", "password")
	if err != nil {
		return nil, fmt.Errorf("failed to create admin user: %w", err)
	}

	s.Logger.Info("Admin user created successfully", slog.Uint64("id", uint64(newUser.ID)))
	return newUser, nil
}

// seedCampaigns creates a couple of demo campaigns
func (s *Seeder) seedCampaigns(userID uint) ([]*campaigns.Campaign, error) {
	db := s.DBManager.GetConnection()

	specs := []struct {
		name        string
		description string
		status      string
	}{
		{"Spring Launch", "Posters and flyers for the spring product launch", campaigns.StatusActive},
		{"Restaurant Menus", "Table QR codes linking to the digital menu", campaigns.StatusActive},
		{"Winter Promo", "Last season's discount stickers", campaigns.StatusArchived},
	}

	var result []*campaigns.Campaign
	for _, spec := range specs {
		var existing campaigns.Campaign
		if err := db.Where("user_id = ? AND name = ?", userID, spec.name).First(&existing).Error; err == nil {
			result = append(result, &existing)
			continue
		}

		campaign := &campaigns.Campaign{
			UserID:      userID,
			Name:        spec.name,
			Description: spec.description,
			Status:      spec.status,
		}
		if err := campaigns.CreateCampaign(s.Logger, db, campaign); err != nil {
			return nil, fmt.Errorf("failed to create campaign %s: %w", spec.name, err)
		}
		s.Logger.Info("Campaign created", slog.String("name", spec.name))
		result = append(result, campaign)
	}

	return result, nil
}

// seedQRCodes creates demo QR codes, some assigned to campaigns
func (s *Seeder) seedQRCodes(userID uint, campaignList []*campaigns.Campaign) ([]*qrcodes.QRCode, error) {
	db := s.DBManager.GetConnection()

	specs := []struct {
		name     string
		qrType   string
		content  string
		campaign int // index into campaignList, -1 for none
	}{
		{"Menu Table 1", qrcodes.TypeURL, "https://example.com/menu", 1},
		{"Menu Table 2", qrcodes.TypeURL, "https://example.com/menu", 1},
		{"Launch Poster", qrcodes.TypeURL, "https://example.com/launch", 0},
		{"Business Card", qrcodes.TypeEmail, "mailto:hello@example.com", -1},
		{"Support Line", qrcodes.TypePhone, "tel:+33123456789", -1},
		{"Guest WiFi", qrcodes.TypeWiFi, "WIFI:T:WPA;S:guest;P:welcome123;;", -1},
	}

	var result []*qrcodes.QRCode
	for _, spec := range specs {
		var existing qrcodes.QRCode
		if err := db.Where("user_id = ? AND name = ?", userID, spec.name).First(&existing).Error; err == nil {
			result = append(result, &existing)
			continue
		}

		qr := &qrcodes.QRCode{
			UserID:  userID,
			Name:    spec.name,
			Type:    spec.qrType,
			Content: spec.content,
		}
		if spec.campaign >= 0 && spec.campaign < len(campaignList) {
			qr.CampaignID = &campaignList[spec.campaign].ID
		}
		if err := qrcodes.CreateQRCode(s.Logger, db, qr); err != nil {
			return nil, fmt.Errorf("failed to create qr code %s: %w", spec.name, err)
		}
		s.Logger.Info("QR code created", slog.String("name", spec.name))
		result = append(result, qr)
	}

	return result, nil
}

// generateScanHistory inserts randomized scan events spread over the last
// 30 days and sets each counter to match.
func (s *Seeder) generateScanHistory(ctx context.Context, codes []*qrcodes.QRCode) error {
	db := s.DBManager.GetConnection()

	ipPool := generateIPPool(40)
	agents := seedUserAgents()
	places := seedPlaces()
	referrers := seedReferrers()

	created := 0
	target := s.ScanCount
	if target <= 0 {
		target = 200
	}

	perCode := make(map[uint]int64, len(codes))
	for i := 0; i < target; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		qr := codes[rand.IntN(len(codes))]
		ip := ipPool[rand.IntN(len(ipPool))]
		agent := agents[rand.IntN(len(agents))]
		place := places[rand.IntN(len(places))]
		info := useragent.Classify(agent)
		scannedAt := time.Now().UTC().Add(-time.Duration(rand.IntN(30*24*60*60)) * time.Second)

		event := scans.ScanEvent{
			QRCodeID:   qr.ID,
			CampaignID: qr.CampaignID,
			ScannedAt:  scannedAt,
			IPAddress:  &ip,
			UserAgent:  &agent,
			Country:    &place.country,
			City:       &place.city,
			DeviceType: &info.DeviceType,
			Browser:    &info.Browser,
			CreatedAt:  scannedAt,
		}
		if ref := referrers[rand.IntN(len(referrers))]; ref != "" {
			event.Referrer = &ref
		}

		err := sqlite.PerformWrite(s.Logger, db, func(tx *gorm.DB) error {
			return tx.Create(&event).Error
		})
		if err != nil {
			s.Logger.Error("Failed to insert scan during seeding", slog.Any("error", err))
			continue
		}
		perCode[qr.ID]++
		created++
	}

	for id, count := range perCode {
		if err := qrcodes.SetScanCount(s.Logger, db, id, count); err != nil {
			s.Logger.Error("Failed to set seeded scan count",
				slog.Uint64("qrcode_id", uint64(id)),
				slog.Any("error", err))
		}
	}

	s.Logger.Info("Generated scan history", slog.Int("totalScans", created))
	return nil
}

type seedPlace struct {
	country string
	city    string
}

func seedPlaces() []seedPlace {
	return []seedPlace{
		{"France", "Paris"},
		{"France", "Lyon"},
		{"France", "Marseille"},
		{"United States", "New York"},
		{"United States", "San Francisco"},
		{"Germany", "Berlin"},
		{"Spain", "Madrid"},
		{"United Kingdom", "London"},
		{"Japan", "Tokyo"},
		{"Unknown", "Unknown"},
	}
}

func seedUserAgents() []string {
	return []string{
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
		"Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	}
}

func seedReferrers() []string {
	return []string{
		"",
		"",
		"https://instagram.com",
		"https://facebook.com",
		"https://twitter.com",
	}
}

// generateIPPool builds a pool of random public-looking IPv4 addresses
func generateIPPool(size int) []string {
	pool := make([]string, size)
	for i := range pool {
		pool[i] = fmt.Sprintf("%d.%d.%d.%d", rand.IntN(200)+30, rand.IntN(256), rand.IntN(256), rand.IntN(254)+1)
	}
	return pool
}
