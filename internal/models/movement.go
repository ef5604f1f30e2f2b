package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mroshb/rallypoint/internal/units"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Movement struct {
	ID              string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	IdempotencyKey  string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"idempotencyKey"`
	PayloadHash     string         `gorm:"type:varchar(64);not null" json:"-"`
	Kind            string         `gorm:"type:varchar(20);not null;index" json:"mission"`
	Status          string         `gorm:"type:varchar(20);not null;index" json:"status"`
	AccountID       uint           `gorm:"not null;index" json:"sourceAccountId"`
	SourceVillageID uint           `gorm:"not null;index" json:"sourceVillageId"`
	TargetType      string         `gorm:"type:varchar(10);not null" json:"targetType"`
	TargetVillageID *uint          `gorm:"index" json:"targetVillageId,omitempty"`
	FromX           int            `json:"fromX"`
	FromY           int            `json:"fromY"`
	ToX             int            `json:"toX"`
	ToY             int            `json:"toY"`
	Units           datatypes.JSON `gorm:"not null" json:"units"`
	CatapultTargets datatypes.JSON `json:"catapultTargets,omitempty"`
	DepartAt        time.Time      `gorm:"not null;index" json:"departAt"`
	ArriveAt        time.Time      `gorm:"not null;index" json:"arriveAt"`
	ParentID        *string        `gorm:"type:varchar(36);index" json:"parentId,omitempty"`
	WaveGroupID     *string        `gorm:"type:varchar(36);index" json:"waveGroupId,omitempty"`
	WaveIndex       *int           `json:"waveIndex,omitempty"`
	Warnings        datatypes.JSON `json:"warnings,omitempty"`
	ReportID        *string        `gorm:"type:varchar(36)" json:"reportId,omitempty"`
	ResolvedAt      *time.Time     `json:"resolvedAt,omitempty"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// Direction filters for movement queries
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

func (m *Movement) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return m.validateTimes()
}

func (m *Movement) BeforeSave(tx *gorm.DB) error {
	return m.validateTimes()
}

func (m *Movement) validateTimes() error {
	if m.ArriveAt.Before(m.DepartAt) {
		return fmt.Errorf("movement %s arrives before it departs", m.ID)
	}
	return nil
}

func (m *Movement) UnitCounts() (units.Counts, error) {
	var c units.Counts
	if err := decodeJSON(m.Units, &c); err != nil {
		return nil, fmt.Errorf("decode units of movement %s: %w", m.ID, err)
	}
	return c.Clone(), nil
}

func (m *Movement) SetUnits(c units.Counts) {
	m.Units = encodeJSON(c.Clone())
}

func (m *Movement) CatapultTargetList() []string {
	var targets []string
	if err := decodeJSON(m.CatapultTargets, &targets); err != nil {
		return nil
	}
	return targets
}

func (m *Movement) SetCatapultTargets(targets []string) {
	if len(targets) == 0 {
		m.CatapultTargets = nil
		return
	}
	m.CatapultTargets = encodeJSON(targets)
}

func (m *Movement) WarningList() []string {
	var warnings []string
	if err := decodeJSON(m.Warnings, &warnings); err != nil {
		return nil
	}
	return warnings
}

func (m *Movement) AddWarning(w string) {
	warnings := m.WarningList()
	for _, existing := range warnings {
		if existing == w {
			return
		}
	}
	m.Warnings = encodeJSON(append(warnings, w))
}

func (Movement) TableName() string {
	return "movements"
}

type WaveGroup struct {
	ID              string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	IdempotencyKey  string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"idempotencyKey"`
	PayloadHash     string         `gorm:"type:varchar(64);not null" json:"-"`
	AccountID       uint           `gorm:"not null;index" json:"sourceAccountId"`
	SourceVillageID uint           `gorm:"not null;index" json:"sourceVillageId"`
	Tag             string         `gorm:"type:varchar(100)" json:"tag"`
	ArriveAt        time.Time      `gorm:"not null" json:"arriveAt"`
	JitterMs        int64          `gorm:"not null" json:"jitterMs"`
	AllowPartial    bool           `gorm:"default:false;not null" json:"allowPartial"`
	MemberCount     int            `gorm:"not null" json:"memberCount"`
	AcceptedCount   int            `gorm:"not null" json:"acceptedCount"`
	Rejections      datatypes.JSON `json:"rejectedMembers,omitempty"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"createdAt"`
}

func (w *WaveGroup) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return nil
}

// MemberKey is the idempotency key of the index-th wave member.
func (w *WaveGroup) MemberKey(index int) string {
	return fmt.Sprintf("%s:%d", w.IdempotencyKey, index)
}

func (w *WaveGroup) SetRejections(v interface{}) {
	w.Rejections = encodeJSON(v)
}

func (w *WaveGroup) DecodeRejections(v interface{}) error {
	return decodeJSON(w.Rejections, v)
}

func (WaveGroup) TableName() string {
	return "wave_groups"
}

// CombatReport stores the full resolver output for an arrival.
type CombatReport struct {
	ID                string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	MovementID        string         `gorm:"type:varchar(36);uniqueIndex;not null" json:"movementId"`
	Mission           string         `gorm:"type:varchar(20);not null" json:"mission"`
	AttackerAccountID uint           `gorm:"not null;index" json:"attackerAccountId"`
	AttackerVillageID uint           `gorm:"not null" json:"attackerVillageId"`
	DefenderAccountID *uint          `gorm:"index" json:"defenderAccountId,omitempty"`
	DefenderVillageID *uint          `gorm:"index" json:"defenderVillageId,omitempty"`
	AttackerWon       bool           `json:"attackerWon"`
	Seed              string         `gorm:"type:varchar(100);not null" json:"seed"`
	Result            datatypes.JSON `gorm:"not null" json:"result"`
	OccurredAt        time.Time      `gorm:"not null;index" json:"occurredAt"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"createdAt"`
}

func (r *CombatReport) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

func (r *CombatReport) SetResult(v interface{}) {
	r.Result = encodeJSON(v)
}

func (r *CombatReport) DecodeResult(v interface{}) error {
	return decodeJSON(r.Result, v)
}

func (CombatReport) TableName() string {
	return "combat_reports"
}
