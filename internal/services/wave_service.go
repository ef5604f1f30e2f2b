package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mroshb/rallypoint/internal/events"
	"github.com/mroshb/rallypoint/internal/models"
	"github.com/mroshb/rallypoint/internal/movement"
	"github.com/mroshb/rallypoint/internal/units"
	"github.com/mroshb/rallypoint/pkg/errors"
	"github.com/mroshb/rallypoint/pkg/logger"
)

const maxTagLength = 100

type WaveMember struct {
	Mission         movement.Kind
	Target          movement.Target
	Units           units.Counts
	CatapultTargets []string
	// DepartAt overrides the back-computed departure.
	DepartAt *time.Time
}

type SendWaveRequest struct {
	SourceVillageID uint
	AccountID       uint
	ArriveAt        time.Time
	Tag             string
	// JitterMs defaults to the configured tolerance when nil.
	JitterMs       *int64
	Members        []WaveMember
	AllowPartial   bool
	IdempotencyKey string
}

type MemberRejection struct {
	Index  int    `json:"index"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type SendWaveResult struct {
	Group           *models.WaveGroup `json:"group"`
	Movements       []models.Movement `json:"movements"`
	RejectedMembers []MemberRejection `json:"rejectedMembers"`
	Replayed        bool              `json:"-"`
}

// WaveService lands several movements inside one arrival window.
type WaveService struct {
	ms *MovementService
}

func NewWaveService(ms *MovementService) *WaveService {
	return &WaveService{ms: ms}
}

type memberFingerprint struct {
	Mission         movement.Kind     `json:"mission"`
	Target          targetFingerprint `json:"target"`
	Units           units.Counts      `json:"units"`
	CatapultTargets []string          `json:"catapultTargets,omitempty"`
	DepartAtMs      *int64            `json:"departAtMs,omitempty"`
}

type waveFingerprint struct {
	SourceVillageID uint                `json:"sourceVillageId"`
	AccountID       uint                `json:"accountId"`
	ArriveAtMs      int64               `json:"arriveAtMs"`
	Tag             string              `json:"tag"`
	JitterMs        int64               `json:"jitterMs"`
	AllowPartial    bool                `json:"allowPartial"`
	Members         []memberFingerprint `json:"members"`
}

// acceptedMember is a member whose timing fits the window.
type acceptedMember struct {
	index    int
	req      SendMissionRequest
	plan     *missionPlan
	departAt time.Time
	arriveAt time.Time
}

// SendWaveGroup validates every member against the shared arrival. By default one
// rejected member fails the whole wave; AllowPartial keeps the members that fit.
func (w *WaveService) SendWaveGroup(ctx context.Context, req SendWaveRequest) (*SendWaveResult, error) {
	s := w.ms
	rules := s.Rules.Current()

	jitter := s.opts.WaveDefaultJitter.Milliseconds()
	if req.JitterMs != nil {
		jitter = *req.JitterMs
	}
	if err := w.validate(req, jitter); err != nil {
		return nil, err
	}
	req.Tag = strings.TrimSpace(req.Tag)
	req.ArriveAt = req.ArriveAt.UTC()

	fp := waveFingerprint{
		SourceVillageID: req.SourceVillageID,
		AccountID:       req.AccountID,
		ArriveAtMs:      req.ArriveAt.UnixMilli(),
		Tag:             req.Tag,
		JitterMs:        jitter,
		AllowPartial:    req.AllowPartial,
	}
	for i, m := range req.Members {
		if err := validateMission(memberRequest(req, m, "member"), rules.Catalog); err != nil {
			return nil, errors.Wrap(err, errors.CodeOf(err), fmt.Sprintf("member %d is invalid", i))
		}
		fp.Members = append(fp.Members, memberFingerprint{
			Mission:         m.Mission,
			Target:          targetFingerprintOf(m.Target),
			Units:           m.Units.Clone(),
			CatapultTargets: m.CatapultTargets,
			DepartAtMs:      unixMilli(m.DepartAt),
		})
	}
	hash, err := fingerprint(fp)
	if err != nil {
		return nil, err
	}

	var result *SendWaveResult
	err = s.inTx(ctx, func(r txRepos) error {
		existing, err := r.waves.GetByIdempotencyKey(req.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			result, err = replayWave(r, existing, hash)
			return err
		}

		if _, err := r.villages.EnsureOwner(req.SourceVillageID, req.AccountID); err != nil {
			return err
		}

		group := &models.WaveGroup{
			IdempotencyKey:  req.IdempotencyKey,
			PayloadHash:     hash,
			AccountID:       req.AccountID,
			SourceVillageID: req.SourceVillageID,
			Tag:             req.Tag,
			ArriveAt:        req.ArriveAt,
			JitterMs:        jitter,
			AllowPartial:    req.AllowPartial,
			MemberCount:     len(req.Members),
		}

		var accepted []acceptedMember
		var rejected []MemberRejection
		for i, m := range req.Members {
			am, rej, err := w.planMember(r, group, i, m, req)
			if err != nil {
				return err
			}
			if rej != nil {
				rejected = append(rejected, *rej)
				continue
			}
			accepted = append(accepted, *am)
		}
		if err := rejectWave(req, rejected, len(accepted)); err != nil {
			return err
		}

		if err := r.waves.Create(group); err != nil {
			return err
		}

		var created []models.Movement
		for _, am := range accepted {
			mv := am.plan.newMovement(am.req, hash, am.departAt, am.arriveAt)
			groupID, index := group.ID, am.index
			mv.WaveGroupID = &groupID
			mv.WaveIndex = &index
			for _, warning := range catapultWarnings(am.req, am.plan.source, rules.Combat.Catapult) {
				mv.AddWarning(warning)
			}

			err := s.insertMovement(ctx, r, mv, am.req.Units)
			if errors.HasCode(err, errors.ErrCodeInsufficientUnits) {
				rejected = append(rejected, MemberRejection{Index: am.index, Code: errors.CodeOf(err), Reason: err.Error()})
				continue
			}
			if err != nil {
				return err
			}
			created = append(created, *mv)
		}
		if err := rejectWave(req, rejected, len(created)); err != nil {
			return err
		}

		group.AcceptedCount = len(created)
		group.SetRejections(nonNilRejections(rejected))
		if err := r.waves.SaveOutcome(group); err != nil {
			return err
		}
		result = &SendWaveResult{Group: group, Movements: created, RejectedMembers: nonNilRejections(rejected)}
		return nil
	})
	if errors.HasCode(err, errors.ErrCodeAlreadyExists) {
		existing, lookupErr := s.readRepos(ctx).waves.GetByIdempotencyKey(req.IdempotencyKey)
		if lookupErr != nil || existing == nil {
			return nil, err
		}
		return replayWave(s.readRepos(ctx), existing, hash)
	}
	if err != nil {
		return nil, err
	}

	if !result.Replayed {
		logger.Info("Wave group created",
			"wave_id", result.Group.ID,
			"village_id", req.SourceVillageID,
			"accepted", result.Group.AcceptedCount,
			"rejected", len(result.RejectedMembers),
		)
		for i := range result.Movements {
			s.publish(ctx, events.TypeCreated, &result.Movements[i], nil)
		}
	}
	return result, nil
}

func (w *WaveService) validate(req SendWaveRequest, jitter int64) error {
	if req.IdempotencyKey == "" {
		return errors.New(errors.ErrCodeValidation, "idempotency key is required")
	}
	if len(req.Members) == 0 {
		return errors.New(errors.ErrCodeValidation, "a wave needs at least one member")
	}
	if limit := w.ms.opts.WaveMaxMembers; limit > 0 && len(req.Members) > limit {
		return errors.Newf(errors.ErrCodeValidation, "a wave has at most %d members", limit)
	}
	if jitter < 0 {
		return errors.New(errors.ErrCodeValidation, "jitterMs must not be negative")
	}
	if req.ArriveAt.IsZero() {
		return errors.New(errors.ErrCodeValidation, "arriveAt is required")
	}
	if len(strings.TrimSpace(req.Tag)) > maxTagLength {
		return errors.Newf(errors.ErrCodeValidation, "tag is longer than %d characters", maxTagLength)
	}
	return nil
}

func memberRequest(req SendWaveRequest, m WaveMember, key string) SendMissionRequest {
	return SendMissionRequest{
		SourceVillageID: req.SourceVillageID,
		AccountID:       req.AccountID,
		Mission:         m.Mission,
		Target:          m.Target,
		Units:           m.Units,
		CatapultTargets: m.CatapultTargets,
		IdempotencyKey:  key,
	}
}

// planMember times one member. Reachability problems come back as a rejection,
// anything else as an error.
func (w *WaveService) planMember(r txRepos, group *models.WaveGroup, index int, m WaveMember, req SendWaveRequest) (*acceptedMember, *MemberRejection, error) {
	s := w.ms
	rules := s.Rules.Current()
	reject := func(err error) (*acceptedMember, *MemberRejection, error) {
		switch errors.CodeOf(err) {
		case errors.ErrCodeUnreachableArrival, errors.ErrCodeNotFound, errors.ErrCodeValidation, errors.ErrCodeInsufficientUnits:
			return nil, &MemberRejection{Index: index, Code: errors.CodeOf(err), Reason: err.Error()}, nil
		}
		return nil, nil, err
	}

	mreq := memberRequest(req, m, group.MemberKey(index))
	plan, err := s.planMission(r, req.AccountID, req.SourceVillageID, m.Mission, m.Units, m.Target, rules)
	if err != nil {
		return reject(err)
	}

	window := rules.Precision.Window(plan.distance, plan.source.RallyPointLevel)
	departAt := req.ArriveAt.Add(-plan.travel)
	if m.DepartAt != nil {
		departAt = m.DepartAt.UTC()
	}
	actual := movement.QuantizeArrival(departAt.Add(plan.travel), window)
	departAt = actual.Add(-plan.travel)

	offset := actual.Sub(req.ArriveAt)
	if offset < 0 {
		offset = -offset
	}
	if offset > time.Duration(group.JitterMs)*time.Millisecond {
		return reject(errors.Newf(errors.ErrCodeUnreachableArrival,
			"member %d lands at %s, %dms from the wave arrival; tolerance is %dms at %dms precision",
			index, actual.Format("15:04:05.000"), offset.Milliseconds(), group.JitterMs, window.Milliseconds()))
	}
	if departAt.Before(s.Clock.Now()) {
		return reject(errors.Newf(errors.ErrCodeUnreachableArrival,
			"member %d needs %s of travel and cannot arrive by %s",
			index, plan.travel, req.ArriveAt.Format(time.RFC3339)))
	}
	return &acceptedMember{index: index, req: mreq, plan: plan, departAt: departAt, arriveAt: actual}, nil, nil
}

// rejectWave fails the submission when it must be all-or-nothing or nothing fits.
func rejectWave(req SendWaveRequest, rejected []MemberRejection, accepted int) error {
	if len(rejected) == 0 || (req.AllowPartial && accepted > 0) {
		return nil
	}
	first := rejected[0]
	msg := fmt.Sprintf("wave rejected: %d of %d members cannot be sent", len(rejected), len(req.Members))
	return errors.New(first.Code, msg).WithDetail("rejectedMembers", rejected)
}

func replayWave(r txRepos, group *models.WaveGroup, hash string) (*SendWaveResult, error) {
	if group.PayloadHash != hash {
		return nil, errors.Newf(errors.ErrCodeIdempotencyConflict,
			"idempotency key %q was already used for a different wave", group.IdempotencyKey)
	}
	moves, err := r.movements.ListByWaveGroup(group.ID)
	if err != nil {
		return nil, err
	}
	var rejected []MemberRejection
	if err := group.DecodeRejections(&rejected); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "corrupt wave group")
	}
	return &SendWaveResult{Group: group, Movements: moves, RejectedMembers: nonNilRejections(rejected), Replayed: true}, nil
}

func nonNilRejections(r []MemberRejection) []MemberRejection {
	if r == nil {
		return []MemberRejection{}
	}
	return r
}
