package database

import (
	"fmt"

	"github.com/mroshb/rallypoint/internal/models"
	"github.com/mroshb/rallypoint/internal/units"
	"github.com/mroshb/rallypoint/pkg/logger"
	"gorm.io/gorm"
)

// VillageSeed describes one village to create with its buildings, fields and garrison.
type VillageSeed struct {
	Name      string
	X, Y      int
	IsCapital bool
	Kind      string
	WallType  string
	WallLevel int
	Rally     int
	Buildings map[string]int
	Fields    map[string]int // resource -> level for every slot
	Garrison  units.Counts
}

var defaultBuildings = map[string]int{
	"MAIN_BUILDING": 10,
	"RALLY_POINT":   10,
	"WAREHOUSE":     8,
	"GRANARY":       8,
	"BARRACKS":      5,
	"PALACE":        3,
}

var fieldSlots = map[string]int{"wood": 4, "clay": 4, "iron": 4, "crop": 6}

// CreateVillage inserts a village for ownerID with its assets in one transaction.
func CreateVillage(db *gorm.DB, ownerID uint, seed VillageSeed) (*models.Village, error) {
	village := &models.Village{
		Name:            seed.Name,
		OwnerID:         ownerID,
		X:               seed.X,
		Y:               seed.Y,
		IsCapital:       seed.IsCapital,
		Kind:            seed.Kind,
		WallType:        seed.WallType,
		WallLevel:       seed.WallLevel,
		RallyPointLevel: seed.Rally,
	}
	if village.Kind == "" {
		village.Kind = models.VillageKindStandard
	}
	if village.WallType == "" {
		village.WallType = "city_wall"
	}

	buildings := seed.Buildings
	if buildings == nil {
		buildings = defaultBuildings
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(village).Error; err != nil {
			return fmt.Errorf("failed to create village %s: %w", seed.Name, err)
		}

		slot := 1
		for _, typ := range sortedKeys(buildings) {
			b := models.Building{VillageID: village.ID, Type: typ, Slot: slot, Level: buildings[typ]}
			if err := tx.Create(&b).Error; err != nil {
				return fmt.Errorf("failed to create building %s: %w", typ, err)
			}
			slot++
		}

		for _, res := range sortedKeys(fieldSlots) {
			level := seed.Fields[res]
			for s := 1; s <= fieldSlots[res]; s++ {
				f := models.ResourceField{VillageID: village.ID, Resource: res, Slot: s, Level: level}
				if err := tx.Create(&f).Error; err != nil {
					return fmt.Errorf("failed to create field %s:%d: %w", res, s, err)
				}
			}
		}

		stack := models.UnitStack{OwnerID: ownerID, HomeVillageID: village.ID, StationedVillageID: village.ID}
		stack.SetCounts(seed.Garrison)
		if err := tx.Create(&stack).Error; err != nil {
			return fmt.Errorf("failed to create garrison: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return village, nil
}

// SeedDemoWorld creates two neighbouring accounts for local play. It does nothing
// when accounts already exist.
func SeedDemoWorld(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Account{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		logger.Info("Accounts exist, skipping demo seed", "accounts", count)
		return nil
	}

	logger.Info("Seeding demo world...")
	attacker := &models.Account{Name: "northwind", Points: 12000}
	defender := &models.Account{Name: "southreach", Points: 3000}
	if err := db.Create(attacker).Error; err != nil {
		return err
	}
	if err := db.Create(defender).Error; err != nil {
		return err
	}

	if _, err := CreateVillage(db, attacker.ID, VillageSeed{
		Name: "Northwind Keep", X: 10, Y: 10, IsCapital: true, Rally: 20, WallLevel: 10,
		Fields:   map[string]int{"wood": 8, "clay": 8, "iron": 8, "crop": 8},
		Garrison: units.Counts{"axeman": 3000, "light_cavalry": 800, "ram": 150, "catapult": 120, "scout": 50, "spearman": 500},
	}); err != nil {
		return err
	}
	if _, err := CreateVillage(db, defender.ID, VillageSeed{
		Name: "Southreach", X: 22, Y: 31, IsCapital: true, Rally: 5, WallLevel: 12,
		Fields:   map[string]int{"wood": 6, "clay": 6, "iron": 5, "crop": 7},
		Garrison: units.Counts{"spearman": 900, "swordsman": 400, "scout": 20},
	}); err != nil {
		return err
	}

	logger.Info("Demo world seeded", "attacker_id", attacker.ID, "defender_id", defender.ID)
	return nil
}
