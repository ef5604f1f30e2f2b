package events

import (
	"time"
)

// Topic carries every movement lifecycle event.
const Topic = "rallypoint.movements"

type Type string

const (
	TypeCreated   Type = "movement.created"
	TypeDeparted  Type = "movement.departed"
	TypeResolved  Type = "movement.resolved"
	TypeRecalled  Type = "movement.recalled"
	TypeCancelled Type = "movement.cancelled"
	TypeReturned  Type = "movement.returned"
)

// MovementEvent is published after the transaction that caused it commits.
type MovementEvent struct {
	Type            Type      `json:"type"`
	MovementID      string    `json:"movementId"`
	Mission         string    `json:"mission"`
	Status          string    `json:"status"`
	AccountID       uint      `json:"accountId"`
	SourceVillageID uint      `json:"sourceVillageId"`
	TargetVillageID *uint     `json:"targetVillageId,omitempty"`
	WaveGroupID     *string   `json:"waveGroupId,omitempty"`
	ReportID        *string   `json:"reportId,omitempty"`
	AttackerWon     *bool     `json:"attackerWon,omitempty"`
	Warnings        []string  `json:"warnings,omitempty"`
	ArriveAt        time.Time `json:"arriveAt"`
	OccurredAt      time.Time `json:"occurredAt"`
}
