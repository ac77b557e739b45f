package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("attendance_not_found")

// Attendance is the narrow view of a participant registration the
// payment engine needs. Registration forms live elsewhere.
type Attendance struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	EventID        snowflake.ID `json:"event_id" gorm:"not null;index"`
	ParticipantRef string       `json:"participant_ref" gorm:"type:text;not null"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null"`
}

func (Attendance) TableName() string { return "attendances" }

// Repository is the read-only attendance directory.
type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Attendance, error)
}
