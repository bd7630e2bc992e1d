package jobs

import (
	"context"
	"fmt"
	"strconv"

	"log/slog"

	"github.com/karloscodes/cartridge"

	"scantrail/internal/pkg/async"
	"scantrail/internal/qrcodes"
	"scantrail/internal/scans"
)

// reconcilerWorkers bounds concurrent recount queries per run
const reconcilerWorkers = 4

// ReconcilerJob repairs drift between the denormalized scan_count column
// and the authoritative qr_scans table. The increment done at scan time is
// best effort, so counts can lag after crashes or failed fallback updates.
// Scan events themselves are never touched.
type ReconcilerJob struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
}

// NewReconcilerJob creates a new reconciler job
func NewReconcilerJob(dbManager cartridge.DBManager, logger *slog.Logger) *ReconcilerJob {
	return &ReconcilerJob{
		dbManager: dbManager,
		logger:    logger,
	}
}

// Run recounts scans for every QR code and rewrites counters that drifted
func (j *ReconcilerJob) Run() error {
	db := j.dbManager.GetConnection()

	type counterRow struct {
		ID        uint
		ScanCount int64
	}
	var rows []counterRow
	if err := db.Table("qrcodes").Select("id, scan_count").Scan(&rows).Error; err != nil {
		return fmt.Errorf("failed to list qr codes: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	stored := make(map[string]int64, len(rows))
	tasks := make([]async.Task[int64], 0, len(rows))
	for _, row := range rows {
		name := strconv.FormatUint(uint64(row.ID), 10)
		stored[name] = row.ScanCount
		qrcodeID := row.ID
		tasks = append(tasks, async.Task[int64]{
			Name: name,
			Execute: func() (int64, error) {
				return scans.CountScansForQRCode(db, qrcodeID)
			},
		})
	}

	pool := async.NewPool[int64](reconcilerWorkers)
	results := pool.Execute(context.Background(), tasks)

	repaired := 0
	for name, result := range results {
		if result.Err != nil {
			j.logger.Warn("Failed to recount scans",
				slog.String("qrcode_id", name),
				slog.Any("error", result.Err))
			continue
		}
		if stored[name] == result.Value {
			continue
		}

		id, err := strconv.ParseUint(name, 10, 64)
		if err != nil {
			continue
		}
		j.logger.Info("Repairing drifted scan counter",
			slog.String("qrcode_id", name),
			slog.Int64("stored", stored[name]),
			slog.Int64("actual", result.Value))
		if err := qrcodes.SetScanCount(j.logger, db, uint(id), result.Value); err != nil {
			j.logger.Error("Failed to repair scan counter",
				slog.String("qrcode_id", name),
				slog.Any("error", err))
			continue
		}
		repaired++
	}

	if repaired > 0 {
		j.logger.Info("Scan counter reconciliation completed", slog.Int("repaired", repaired))
	}
	return nil
}
