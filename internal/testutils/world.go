package testutils

import (
	"testing"

	"github.com/mroshb/rallypoint/internal/database"
	"github.com/mroshb/rallypoint/internal/models"
	"github.com/mroshb/rallypoint/internal/units"
	"gorm.io/gorm"
)

// World is a small fixture: an attacker with a capital and a second village,
// and a defender with one village.
type World struct {
	Attacker        *models.Account
	Defender        *models.Account
	AttackerVillage *models.Village
	AttackerOutpost *models.Village
	DefenderVillage *models.Village
}

func NewWorld(t *testing.T, db *gorm.DB) *World {
	t.Helper()

	w := &World{
		Attacker: &models.Account{Name: "attacker", Points: 10000},
		Defender: &models.Account{Name: "defender", Points: 4000},
	}
	for _, a := range []*models.Account{w.Attacker, w.Defender} {
		if err := db.Create(a).Error; err != nil {
			t.Fatalf("failed to create account: %v", err)
		}
	}

	w.AttackerVillage = mustVillage(t, db, w.Attacker.ID, database.VillageSeed{
		Name: "Home", X: 0, Y: 0, IsCapital: true, Rally: 20, WallLevel: 5,
		Fields: map[string]int{"wood": 5, "clay": 5, "iron": 5, "crop": 5},
		Garrison: units.Counts{
			"axeman": 2000, "spearman": 500, "scout": 100,
			"light_cavalry": 300, "ram": 200, "catapult": 60,
		},
	})
	w.AttackerOutpost = mustVillage(t, db, w.Attacker.ID, database.VillageSeed{
		Name: "Outpost", X: 3, Y: 4, Rally: 1,
		Garrison: units.Counts{"spearman": 50},
	})
	w.DefenderVillage = mustVillage(t, db, w.Defender.ID, database.VillageSeed{
		Name: "Target", X: 6, Y: 8, IsCapital: false, Rally: 1, WallLevel: 10,
		Fields:   map[string]int{"wood": 6, "clay": 6, "iron": 6, "crop": 6},
		Garrison: units.Counts{"spearman": 100, "scout": 5},
	})
	return w
}

func mustVillage(t *testing.T, db *gorm.DB, owner uint, seed database.VillageSeed) *models.Village {
	t.Helper()
	v, err := database.CreateVillage(db, owner, seed)
	if err != nil {
		t.Fatalf("failed to create village: %v", err)
	}
	return v
}
