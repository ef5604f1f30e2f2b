package models

import (
	"time"

	"github.com/mroshb/rallypoint/internal/units"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Account struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	Points    int64     `gorm:"default:0;not null"` // Morale size
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Village is soft-deleted when destroyed so in-flight movements can detect it.
type Village struct {
	ID              uint           `gorm:"primaryKey"`
	Name            string         `gorm:"type:varchar(255);not null"`
	OwnerID         uint           `gorm:"index"` // 0 for barbarian villages
	X               int            `gorm:"not null;index:idx_village_coords"`
	Y               int            `gorm:"not null;index:idx_village_coords"`
	IsCapital       bool           `gorm:"default:false;not null"`
	Kind            string         `gorm:"type:varchar(20);default:'standard';not null"`
	WallType        string         `gorm:"type:varchar(20);default:'city_wall';not null"`
	WallLevel       int            `gorm:"default:0;not null"`
	RallyPointLevel int            `gorm:"default:1;not null"`
	RamTechLevel    int            `gorm:"default:0;not null"`
	Points          int64          `gorm:"default:0;not null"`
	CreatedAt       time.Time      `gorm:"autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime"`
	DeletedAt       gorm.DeletedAt `gorm:"index"`
}

type Building struct {
	ID        uint   `gorm:"primaryKey"`
	VillageID uint   `gorm:"not null;uniqueIndex:idx_building_slot"`
	Type      string `gorm:"type:varchar(50);not null"`
	Slot      int    `gorm:"not null;uniqueIndex:idx_building_slot"`
	Level     int    `gorm:"default:0;not null"`
}

type ResourceField struct {
	ID        uint   `gorm:"primaryKey"`
	VillageID uint   `gorm:"not null;uniqueIndex:idx_field_slot"`
	Resource  string `gorm:"type:varchar(20);not null;uniqueIndex:idx_field_slot"` // wood, clay, iron, crop
	Slot      int    `gorm:"not null;uniqueIndex:idx_field_slot"`
	Level     int    `gorm:"default:0;not null"`
}

// UnitStack is a group of troops from HomeVillageID currently stationed at
// StationedVillageID. The home garrison is the stack where both are equal.
type UnitStack struct {
	ID                 uint           `gorm:"primaryKey"`
	OwnerID            uint           `gorm:"not null;index"`
	HomeVillageID      uint           `gorm:"not null;uniqueIndex:idx_stack_home_station"`
	StationedVillageID uint           `gorm:"not null;uniqueIndex:idx_stack_home_station;index"`
	Units              datatypes.JSON `gorm:"not null"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime"`
}

const (
	VillageKindStandard    = "standard"
	VillageKindWorldWonder = "world_wonder"
)

func (s *UnitStack) Counts() (units.Counts, error) {
	var c units.Counts
	if err := decodeJSON(s.Units, &c); err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

func (s *UnitStack) SetCounts(c units.Counts) {
	s.Units = encodeJSON(c.Clone())
}

// IsGarrison reports whether the stack is at home.
func (s *UnitStack) IsGarrison() bool {
	return s.HomeVillageID == s.StationedVillageID
}

func (Account) TableName() string {
	return "accounts"
}

func (Village) TableName() string {
	return "villages"
}

func (Building) TableName() string {
	return "buildings"
}

func (ResourceField) TableName() string {
	return "resource_fields"
}

func (UnitStack) TableName() string {
	return "unit_stacks"
}
