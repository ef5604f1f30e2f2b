package combat

type VillageKind string

const (
	VillageStandard    VillageKind = "standard"
	VillageWorldWonder VillageKind = "world_wonder"
)

type Building struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Level int    `json:"level"`
}

type ResourceField struct {
	ID       string `json:"id"`
	Resource string `json:"resource"`
	Slot     int    `json:"slot"`
	Level    int    `json:"level"`
}

// SiegeSnapshot is a point-in-time read of a village's siegeable assets.
type SiegeSnapshot struct {
	VillageID uint            `json:"villageId"`
	Buildings []Building      `json:"buildings"`
	Fields    []ResourceField `json:"fields"`
	IsCapital bool            `json:"isCapital"`
	Kind      VillageKind     `json:"kind"`
}

// BuildingLevel returns the highest level among buildings of the given type.
func (s SiegeSnapshot) BuildingLevel(buildingType string) int {
	level := 0
	for _, b := range s.Buildings {
		if b.Type == buildingType && b.Level > level {
			level = b.Level
		}
	}
	return level
}
