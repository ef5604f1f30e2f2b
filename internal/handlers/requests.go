package handlers

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mroshb/rallypoint/internal/movement"
	"github.com/mroshb/rallypoint/internal/security"
	"github.com/mroshb/rallypoint/internal/services"
	"github.com/mroshb/rallypoint/internal/units"
)

// CustomValidator wraps go-playground/validator to implement echo.Validator.
type CustomValidator struct {
	validator *validator.Validate
}

func NewValidator() *CustomValidator {
	v := validator.New()
	_ = v.RegisterValidation("mission", func(fl validator.FieldLevel) bool {
		_, err := movement.ParseKind(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("status", func(fl validator.FieldLevel) bool {
		_, err := movement.ParseStatus(fl.Field().String())
		return err == nil
	})
	return &CustomValidator{validator: v}
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

type SendMissionRequest struct {
	SourceVillageID uint                `json:"sourceVillageId" validate:"required"`
	Mission         string              `json:"mission" validate:"required,mission"`
	Target          movement.TargetSpec `json:"target"`
	Units           map[string]int      `json:"units" validate:"required,min=1,dive,keys,required,endkeys,gte=0"`
	CatapultTargets []string            `json:"catapultTargets" validate:"max=2,dive,required,max=64"`
	ArriveAt        *time.Time          `json:"arriveAt"`
	DepartAt        *time.Time          `json:"departAt" validate:"excluded_with=ArriveAt"`
	IdempotencyKey  string              `json:"idempotencyKey" validate:"required,max=255"`
}

func (r SendMissionRequest) toService(accountID uint) (services.SendMissionRequest, error) {
	target, err := r.Target.Target()
	if err != nil {
		return services.SendMissionRequest{}, err
	}
	kind, err := movement.ParseKind(r.Mission)
	if err != nil {
		return services.SendMissionRequest{}, err
	}
	return services.SendMissionRequest{
		SourceVillageID: r.SourceVillageID,
		AccountID:       accountID,
		Mission:         kind,
		Target:          target,
		Units:           units.Counts(r.Units),
		CatapultTargets: r.CatapultTargets,
		ArriveAt:        r.ArriveAt,
		DepartAt:        r.DepartAt,
		IdempotencyKey:  r.IdempotencyKey,
	}, nil
}

type WaveMemberRequest struct {
	Mission         string              `json:"mission" validate:"required,mission"`
	Target          movement.TargetSpec `json:"target"`
	Units           map[string]int      `json:"units" validate:"required,min=1,dive,keys,required,endkeys,gte=0"`
	CatapultTargets []string            `json:"catapultTargets" validate:"max=2,dive,required,max=64"`
	DepartAt        *time.Time          `json:"departAt"`
}

type SendWaveRequest struct {
	SourceVillageID uint                `json:"sourceVillageId" validate:"required"`
	ArriveAt        time.Time           `json:"arriveAt" validate:"required"`
	Tag             string              `json:"tag" validate:"max=100"`
	JitterMs        *int64              `json:"jitterMs" validate:"omitempty,gte=0"`
	AllowPartial    bool                `json:"allowPartial"`
	Members         []WaveMemberRequest `json:"members" validate:"required,min=1,dive"`
	IdempotencyKey  string              `json:"idempotencyKey" validate:"required,max=255"`
}

func (r SendWaveRequest) toService(accountID uint) (services.SendWaveRequest, error) {
	out := services.SendWaveRequest{
		SourceVillageID: r.SourceVillageID,
		AccountID:       accountID,
		ArriveAt:        r.ArriveAt,
		Tag:             security.SanitizeTag(r.Tag),
		JitterMs:        r.JitterMs,
		AllowPartial:    r.AllowPartial,
		IdempotencyKey:  r.IdempotencyKey,
	}
	for _, m := range r.Members {
		target, err := m.Target.Target()
		if err != nil {
			return out, err
		}
		kind, err := movement.ParseKind(m.Mission)
		if err != nil {
			return out, err
		}
		out.Members = append(out.Members, services.WaveMember{
			Mission:         kind,
			Target:          target,
			Units:           units.Counts(m.Units),
			CatapultTargets: m.CatapultTargets,
			DepartAt:        m.DepartAt,
		})
	}
	return out, nil
}

type RecallRequest struct {
	FromVillageID  uint           `json:"fromVillageId" validate:"required"`
	ToVillageID    uint           `json:"toVillageId" validate:"required"`
	Units          map[string]int `json:"units" validate:"omitempty,dive,keys,required,endkeys,gte=0"`
	IdempotencyKey string         `json:"idempotencyKey" validate:"required,max=255"`
}

type ListMovementsQuery struct {
	Direction string `query:"direction" validate:"omitempty,oneof=incoming outgoing"`
	Status    string `query:"status" validate:"omitempty,status"`
	Mission   string `query:"mission" validate:"omitempty,mission"`
	Limit     int    `query:"limit" validate:"gte=0,lte=500"`
}

type MissionResponse struct {
	Movement interface{} `json:"movement"`
	Warnings []string    `json:"warnings"`
}
