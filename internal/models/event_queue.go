package models

import (
	"time"

	"gorm.io/datatypes"
)

type EventQueueItem struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Type        string         `gorm:"type:varchar(50);not null;index" json:"type"`
	ScheduledAt time.Time      `gorm:"not null;index:idx_queue_due,priority:2" json:"scheduledAt"`
	Payload     datatypes.JSON `gorm:"not null" json:"payload"`
	Status      string         `gorm:"type:varchar(20);not null;index:idx_queue_due,priority:1" json:"status"`
	Priority    int            `gorm:"default:0;not null" json:"priority"`
	LockedBy    *string        `gorm:"type:varchar(100)" json:"lockedBy,omitempty"`
	LockedAt    *time.Time     `gorm:"index" json:"lockedAt,omitempty"`
	Attempts    int            `gorm:"default:0;not null" json:"attempts"`
	MaxAttempts int            `gorm:"default:5;not null" json:"maxAttempts"`
	DedupeKey   *string        `gorm:"type:varchar(255);uniqueIndex" json:"dedupeKey,omitempty"`
	LastError   string         `gorm:"type:text" json:"lastError,omitempty"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// Queue item status constants
const (
	QueueStatusPending    = "PENDING"
	QueueStatusProcessing = "PROCESSING"
	QueueStatusCompleted  = "COMPLETED"
	QueueStatusFailed     = "FAILED"
)

func (EventQueueItem) TableName() string {
	return "event_queue"
}
