package repositories

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mroshb/rallypoint/internal/combat"
	"github.com/mroshb/rallypoint/internal/models"
	"github.com/mroshb/rallypoint/internal/units"
	"github.com/mroshb/rallypoint/pkg/errors"
	"gorm.io/gorm"
)

// VillageRepository reads siege snapshots and adjusts garrisons, walls and
// building levels.
type VillageRepository struct {
	db *gorm.DB
}

func NewVillageRepository(db *gorm.DB) *VillageRepository {
	return &VillageRepository{db: db}
}

func (r *VillageRepository) WithTx(tx *gorm.DB) *VillageRepository {
	return &VillageRepository{db: tx}
}

func (r *VillageRepository) GetVillageByID(id uint) (*models.Village, error) {
	var village models.Village
	if err := r.db.First(&village, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.Newf(errors.ErrCodeNotFound, "village %d not found", id)
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to get village")
	}
	return &village, nil
}

// GetVillageUnscoped also returns destroyed villages.
func (r *VillageRepository) GetVillageUnscoped(id uint) (*models.Village, error) {
	var village models.Village
	if err := r.db.Unscoped().First(&village, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.Newf(errors.ErrCodeNotFound, "village %d not found", id)
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to get village")
	}
	return &village, nil
}

// GetVillageAt returns the live village on a tile, or nil for an empty tile.
func (r *VillageRepository) GetVillageAt(x, y int) (*models.Village, error) {
	var village models.Village
	if err := r.db.Where("x = ? AND y = ?", x, y).First(&village).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to get village by coordinates")
	}
	return &village, nil
}

func (r *VillageRepository) GetAccount(id uint) (*models.Account, error) {
	var account models.Account
	if err := r.db.First(&account, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.Newf(errors.ErrCodeNotFound, "account %d not found", id)
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to get account")
	}
	return &account, nil
}

// EnsureOwner fails with FORBIDDEN unless accountID controls the village.
func (r *VillageRepository) EnsureOwner(villageID, accountID uint) (*models.Village, error) {
	village, err := r.GetVillageByID(villageID)
	if err != nil {
		return nil, err
	}
	if village.OwnerID != accountID {
		return nil, errors.Newf(errors.ErrCodeForbidden, "account %d does not control village %d", accountID, villageID)
	}
	return village, nil
}

// DeleteVillage destroys a village. Movements already heading there see it as vanished.
func (r *VillageRepository) DeleteVillage(id uint) error {
	result := r.db.Delete(&models.Village{}, id)
	if result.Error != nil {
		return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to delete village")
	}
	if result.RowsAffected == 0 {
		return errors.Newf(errors.ErrCodeNotFound, "village %d not found", id)
	}
	return nil
}

// Snapshot reads the siegeable assets of a village.
func (r *VillageRepository) Snapshot(village *models.Village) (combat.SiegeSnapshot, error) {
	var buildings []models.Building
	if err := r.db.Where("village_id = ?", village.ID).Order("slot ASC").Find(&buildings).Error; err != nil {
		return combat.SiegeSnapshot{}, errors.Wrap(err, errors.ErrCodeInternalError, "failed to load buildings")
	}
	var fields []models.ResourceField
	if err := r.db.Where("village_id = ?", village.ID).Order("resource ASC, slot ASC").Find(&fields).Error; err != nil {
		return combat.SiegeSnapshot{}, errors.Wrap(err, errors.ErrCodeInternalError, "failed to load resource fields")
	}

	snap := combat.SiegeSnapshot{
		VillageID: village.ID,
		IsCapital: village.IsCapital,
		Kind:      combat.VillageKind(village.Kind),
		Buildings: make([]combat.Building, 0, len(buildings)),
		Fields:    make([]combat.ResourceField, 0, len(fields)),
	}
	for id, b := range buildingIDs(buildings) {
		snap.Buildings = append(snap.Buildings, combat.Building{ID: id, Type: strings.ToUpper(b.Type), Level: b.Level})
	}
	sort.Slice(snap.Buildings, func(i, j int) bool { return snap.Buildings[i].ID < snap.Buildings[j].ID })
	for _, f := range fields {
		snap.Fields = append(snap.Fields, combat.ResourceField{
			ID:       fieldID(f),
			Resource: strings.ToLower(f.Resource),
			Slot:     f.Slot,
			Level:    f.Level,
		})
	}
	return snap, nil
}

// buildingIDs names single-instance buildings by type and repeated ones by type and slot.
func buildingIDs(buildings []models.Building) map[string]models.Building {
	perType := make(map[string]int)
	for _, b := range buildings {
		perType[strings.ToUpper(b.Type)]++
	}
	ids := make(map[string]models.Building, len(buildings))
	for _, b := range buildings {
		typ := strings.ToUpper(b.Type)
		if perType[typ] == 1 {
			ids[typ] = b
			continue
		}
		ids[fmt.Sprintf("%s#%d", typ, b.Slot)] = b
	}
	return ids
}

func fieldID(f models.ResourceField) string {
	return fmt.Sprintf("FIELD_%s_%d", strings.ToUpper(f.Resource), f.Slot)
}

// ApplyCatapultDamage writes the after levels of a siege back to buildings and fields.
func (r *VillageRepository) ApplyCatapultDamage(villageID uint, damage []combat.TargetDamage) error {
	if len(damage) == 0 {
		return nil
	}

	var buildings []models.Building
	if err := r.db.Where("village_id = ?", villageID).Find(&buildings).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to load buildings")
	}
	var fields []models.ResourceField
	if err := r.db.Where("village_id = ?", villageID).Find(&fields).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to load resource fields")
	}
	byBuildingID := buildingIDs(buildings)
	byFieldID := make(map[string]models.ResourceField, len(fields))
	for _, f := range fields {
		byFieldID[fieldID(f)] = f
	}

	for _, d := range damage {
		switch d.TargetKind {
		case combat.TargetBuilding:
			b, ok := byBuildingID[d.TargetID]
			if !ok {
				return errors.Newf(errors.ErrCodeNotFound, "building %s not found in village %d", d.TargetID, villageID)
			}
			if err := r.db.Model(&models.Building{}).Where("id = ?", b.ID).Update("level", d.AfterLevel).Error; err != nil {
				return errors.Wrap(err, errors.ErrCodeInternalError, "failed to update building level")
			}
		case combat.TargetField:
			f, ok := byFieldID[d.TargetID]
			if !ok {
				return errors.Newf(errors.ErrCodeNotFound, "field %s not found in village %d", d.TargetID, villageID)
			}
			if err := r.db.Model(&models.ResourceField{}).Where("id = ?", f.ID).Update("level", d.AfterLevel).Error; err != nil {
				return errors.Wrap(err, errors.ErrCodeInternalError, "failed to update field level")
			}
		}
	}
	return nil
}

func (r *VillageRepository) SetWallLevel(villageID uint, level int) error {
	if level < 0 {
		level = 0
	}
	return r.db.Model(&models.Village{}).Where("id = ?", villageID).Update("wall_level", level).Error
}

// LockGarrison loads the home stack of a village for update.
func (r *VillageRepository) LockGarrison(villageID uint) (*models.UnitStack, error) {
	var stack models.UnitStack
	err := forUpdate(r.db).
		Where("home_village_id = ? AND stationed_village_id = ?", villageID, villageID).
		First(&stack).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.Newf(errors.ErrCodeNotFound, "village %d has no garrison", villageID)
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to lock garrison")
	}
	return &stack, nil
}

// ReserveUnits removes requested units from the home garrison, or fails with
// INSUFFICIENT_UNITS leaving it untouched.
func (r *VillageRepository) ReserveUnits(villageID uint, requested units.Counts) error {
	stack, err := r.LockGarrison(villageID)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeNotFound) {
			return errors.Newf(errors.ErrCodeInsufficientUnits, "village %d has no troops", villageID)
		}
		return err
	}
	have, err := stack.Counts()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "corrupt garrison")
	}
	if !have.Covers(requested) {
		e := errors.Newf(errors.ErrCodeInsufficientUnits, "village %d does not have the requested units", villageID)
		for _, id := range requested.IDs() {
			if requested[id] > have[id] {
				e.WithDetail(id, map[string]int{"requested": requested[id], "available": have[id]})
			}
		}
		return e
	}
	return r.saveStack(stack, have.Sub(requested))
}

// MergeUnits adds units to the stack of homeVillageID stationed at stationedVillageID.
func (r *VillageRepository) MergeUnits(ownerID, homeVillageID, stationedVillageID uint, add units.Counts) error {
	if add.Total() == 0 {
		return nil
	}
	var stack models.UnitStack
	err := forUpdate(r.db).
		Where("home_village_id = ? AND stationed_village_id = ?", homeVillageID, stationedVillageID).
		First(&stack).Error
	if err == gorm.ErrRecordNotFound {
		stack = models.UnitStack{OwnerID: ownerID, HomeVillageID: homeVillageID, StationedVillageID: stationedVillageID}
		stack.SetCounts(add)
		if err := r.db.Create(&stack).Error; err != nil {
			return errors.Wrap(err, errors.ErrCodeInternalError, "failed to create unit stack")
		}
		return nil
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to load unit stack")
	}
	have, err := stack.Counts()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "corrupt unit stack")
	}
	return r.saveStack(&stack, have.Add(add))
}

// StationedStacks locks every stack present at a village, the garrison first.
func (r *VillageRepository) StationedStacks(villageID uint) ([]models.UnitStack, error) {
	var stacks []models.UnitStack
	err := forUpdate(r.db).
		Where("stationed_village_id = ?", villageID).
		Order("CASE WHEN home_village_id = stationed_village_id THEN 0 ELSE 1 END, id ASC").
		Find(&stacks).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to load stationed troops")
	}
	return stacks, nil
}

// SetStackCounts overwrites a stack. Emptied foreign stacks are removed.
func (r *VillageRepository) SetStackCounts(stack *models.UnitStack, counts units.Counts) error {
	return r.saveStack(stack, counts)
}

func (r *VillageRepository) saveStack(stack *models.UnitStack, counts units.Counts) error {
	if counts.Total() == 0 && !stack.IsGarrison() {
		if err := r.db.Delete(&models.UnitStack{}, stack.ID).Error; err != nil {
			return errors.Wrap(err, errors.ErrCodeInternalError, "failed to remove empty unit stack")
		}
		return nil
	}
	stack.SetCounts(counts)
	if err := r.db.Model(&models.UnitStack{}).Where("id = ?", stack.ID).Update("units", stack.Units).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to save unit stack")
	}
	return nil
}

// Garrison returns the home troops of a village without locking.
func (r *VillageRepository) Garrison(villageID uint) (units.Counts, error) {
	var stack models.UnitStack
	err := r.db.Where("home_village_id = ? AND stationed_village_id = ?", villageID, villageID).First(&stack).Error
	if err == gorm.ErrRecordNotFound {
		return units.Counts{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to load garrison")
	}
	return stack.Counts()
}

// StationedAt returns the troops from homeVillageID stationed at villageID.
func (r *VillageRepository) StationedAt(homeVillageID, villageID uint) (units.Counts, error) {
	var stack models.UnitStack
	err := r.db.Where("home_village_id = ? AND stationed_village_id = ?", homeVillageID, villageID).First(&stack).Error
	if err == gorm.ErrRecordNotFound {
		return units.Counts{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to load stationed troops")
	}
	return stack.Counts()
}
