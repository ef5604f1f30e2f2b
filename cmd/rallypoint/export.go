package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mroshb/rallypoint/internal/export"
	"github.com/mroshb/rallypoint/internal/repositories"
	"github.com/mroshb/rallypoint/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	exportOut   string
	exportSince time.Duration
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write recent movements and combat reports to an XLSX workbook",
	Example: `  rallypoint export --out movements.xlsx
  rallypoint export --since 2h --out last-two-hours.xlsx`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}

		since := time.Now().Add(-exportSince)
		moves, err := repositories.NewMovementRepository(db).ListSince(since)
		if err != nil {
			return err
		}
		reports, err := repositories.NewReportRepository(db).ListSince(since)
		if err != nil {
			return err
		}

		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", exportOut, err)
		}
		if err := export.Write(f, moves, reports); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		logger.Info("Export written", "path", exportOut, "movements", len(moves), "reports", len(reports))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "rallypoint-export.xlsx", "output file")
	exportCmd.Flags().DurationVar(&exportSince, "since", 24*time.Hour, "how far back to export")
}
