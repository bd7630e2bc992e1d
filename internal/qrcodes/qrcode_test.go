package qrcodes_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scantrail/internal/qrcodes"
	"scantrail/internal/testsupport"
)

func TestCreateQRCode(t *testing.T) {
	t.Run("creates with defaults", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		user := testsupport.CreateTestUser(db, "owner@example.com", "secret")

		qr := &qrcodes.QRCode{
			UserID:  user.ID,
			Name:    "  menu  ",
			Content: "https://example.com/menu",
		}
		require.NoError(t, qrcodes.CreateQRCode(logger, db, qr))
		require.NotZero(t, qr.ID)

		stored, err := qrcodes.GetQRCodeByID(db, qr.ID)
		require.NoError(t, err)
		assert.Equal(t, "menu", stored.Name, "name should be trimmed")
		assert.Equal(t, qrcodes.TypeURL, stored.Type)
		assert.Zero(t, stored.ScanCount)
	})

	t.Run("rejects blank name and content", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()

		err := qrcodes.CreateQRCode(logger, db, &qrcodes.QRCode{Name: "  ", Content: "x"})
		assert.Error(t, err)

		err = qrcodes.CreateQRCode(logger, db, &qrcodes.QRCode{Name: "x", Content: " "})
		assert.Error(t, err)
	})

	t.Run("rejects unknown content type", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()

		err := qrcodes.CreateQRCode(logger, db, &qrcodes.QRCode{Name: "x", Content: "y", Type: "barcode"})
		assert.Error(t, err)
	})
}

func TestGetQRCodeForUser(t *testing.T) {
	t.Run("scopes lookups to the owner", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		owner := testsupport.CreateTestUser(db, "owner@example.com", "secret")
		other := testsupport.CreateTestUser(db, "other@example.com", "secret")
		qr := testsupport.CreateTestQRCode(t, db, owner.ID, "menu", "https://example.com")

		found, err := qrcodes.GetQRCodeForUser(db, qr.ID, owner.ID)
		require.NoError(t, err)
		assert.Equal(t, qr.ID, found.ID)

		_, err = qrcodes.GetQRCodeForUser(db, qr.ID, other.ID)
		var notFound *qrcodes.QRCodeNotFoundError
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestIncrementScanCount(t *testing.T) {
	t.Run("increments by one per call", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		user := testsupport.CreateTestUser(db, "owner@example.com", "secret")
		qr := testsupport.CreateTestQRCode(t, db, user.ID, "menu", "https://example.com")

		require.NoError(t, qrcodes.IncrementScanCount(logger, db, qr.ID))
		require.NoError(t, qrcodes.IncrementScanCount(logger, db, qr.ID))

		stored, err := qrcodes.GetQRCodeByID(db, qr.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stored.ScanCount)
	})

	t.Run("fails for unknown qr code", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()

		err := qrcodes.IncrementScanCount(logger, db, 4242)
		var notFound *qrcodes.QRCodeNotFoundError
		assert.ErrorAs(t, err, &notFound)
	})

	t.Run("fallback path reaches the same count", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		user := testsupport.CreateTestUser(db, "owner@example.com", "secret")
		qr := testsupport.CreateTestQRCode(t, db, user.ID, "menu", "https://example.com")

		require.NoError(t, qrcodes.IncrementScanCountFallback(logger, db, qr.ID))

		stored, err := qrcodes.GetQRCodeByID(db, qr.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stored.ScanCount)
	})
}

func TestDeleteQRCode(t *testing.T) {
	t.Run("removes the code and its scans", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		user := testsupport.CreateTestUser(db, "owner@example.com", "secret")
		qr := testsupport.CreateTestQRCode(t, db, user.ID, "menu", "https://example.com")
		testsupport.CreateTestScan(t, db, qr.ID, "1.1.1.1", "France", "Paris", "Mobile", "Chrome", qr.CreatedAt)

		require.NoError(t, qrcodes.DeleteQRCode(logger, db, qr.ID, user.ID))

		_, err := qrcodes.GetQRCodeByID(db, qr.ID)
		assert.Error(t, err)

		var count int64
		db.Table("qr_scans").Where("qrcode_id = ?", qr.ID).Count(&count)
		assert.Zero(t, count)
	})

	t.Run("refuses deletes by non-owners", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		owner := testsupport.CreateTestUser(db, "owner@example.com", "secret")
		other := testsupport.CreateTestUser(db, "other@example.com", "secret")
		qr := testsupport.CreateTestQRCode(t, db, owner.ID, "menu", "https://example.com")

		err := qrcodes.DeleteQRCode(logger, db, qr.ID, other.ID)
		assert.Error(t, err)

		_, err = qrcodes.GetQRCodeByID(db, qr.ID)
		assert.NoError(t, err)
	})
}
