package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mroshb/rallypoint/internal/combat"
	"github.com/mroshb/rallypoint/internal/models"
	"github.com/mroshb/rallypoint/internal/units"
	"github.com/xuri/excelize/v2"
)

const (
	MovementsSheet = "Movements"
	ReportsSheet   = "Reports"
)

var movementHeader = []interface{}{
	"ID", "Mission", "Status", "Account", "Source village", "Target village",
	"From", "To", "Units", "Depart at", "Arrive at", "Wave group", "Parent", "Report", "Warnings",
}

var reportHeader = []interface{}{
	"ID", "Movement", "Mission", "Attacker", "Attacker village", "Defender", "Defender village",
	"Attacker won", "Morale", "Wall before", "Wall after", "Attacker losses", "Catapult damage", "Occurred at",
}

// WriteMovements writes a workbook with a single movements sheet.
func WriteMovements(w io.Writer, moves []models.Movement) error {
	return Write(w, moves, nil)
}

// WriteReports writes a workbook with a single combat reports sheet.
func WriteReports(w io.Writer, reports []models.CombatReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ReportsSheet); err != nil {
		return err
	}
	if err := fillReports(f, reports); err != nil {
		return err
	}
	return f.Write(w)
}

// Write puts movements and reports on their own sheets of one workbook. A nil
// reports slice leaves the reports sheet out.
func Write(w io.Writer, moves []models.Movement, reports []models.CombatReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", MovementsSheet); err != nil {
		return err
	}
	if err := fillMovements(f, moves); err != nil {
		return err
	}
	if reports != nil {
		if _, err := f.NewSheet(ReportsSheet); err != nil {
			return err
		}
		if err := fillReports(f, reports); err != nil {
			return err
		}
	}
	return f.Write(w)
}

func fillMovements(f *excelize.File, moves []models.Movement) error {
	if err := f.SetSheetRow(MovementsSheet, "A1", &movementHeader); err != nil {
		return err
	}
	for i, m := range moves {
		counts, err := m.UnitCounts()
		if err != nil {
			return fmt.Errorf("movement %s: %w", m.ID, err)
		}
		row := []interface{}{
			m.ID, m.Kind, m.Status, m.AccountID, m.SourceVillageID, optUint(m.TargetVillageID),
			coords(m.FromX, m.FromY), coords(m.ToX, m.ToY), formatCounts(counts),
			stamp(m.DepartAt), stamp(m.ArriveAt), optString(m.WaveGroupID), optString(m.ParentID),
			optString(m.ReportID), strings.Join(m.WarningList(), ", "),
		}
		if err := f.SetSheetRow(MovementsSheet, cell(i+2), &row); err != nil {
			return err
		}
	}
	return nil
}

func fillReports(f *excelize.File, reports []models.CombatReport) error {
	if err := f.SetSheetRow(ReportsSheet, "A1", &reportHeader); err != nil {
		return err
	}
	for i, r := range reports {
		var res combat.BattleResult
		if err := r.DecodeResult(&res); err != nil {
			return fmt.Errorf("report %s: %w", r.ID, err)
		}
		row := []interface{}{
			r.ID, r.MovementID, r.Mission, r.AttackerAccountID, r.AttackerVillageID,
			optUint(r.DefenderAccountID), optUint(r.DefenderVillageID), r.AttackerWon,
			res.Morale, res.WallBefore, res.WallAfter, formatCounts(res.AttackerLosses),
			formatCatapult(res.Catapult), stamp(r.OccurredAt),
		}
		if err := f.SetSheetRow(ReportsSheet, cell(i+2), &row); err != nil {
			return err
		}
	}
	return nil
}

func cell(row int) string {
	name, _ := excelize.CoordinatesToCellName(1, row)
	return name
}

func stamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05.000")
}

func coords(x, y int) string {
	return fmt.Sprintf("%d|%d", x, y)
}

func optUint(v *uint) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func optString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func formatCounts(c units.Counts) string {
	parts := make([]string, 0, len(c))
	for _, id := range c.IDs() {
		parts = append(parts, fmt.Sprintf("%s=%d", id, c[id]))
	}
	return strings.Join(parts, " ")
}

func formatCatapult(c *combat.CatapultResult) string {
	if c == nil {
		return ""
	}
	parts := make([]string, 0, len(c.Targets))
	for _, t := range c.Targets {
		parts = append(parts, fmt.Sprintf("%s %d->%d", t.TargetID, t.BeforeLevel, t.AfterLevel))
	}
	return strings.Join(parts, "; ")
}
