package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("event_not_found")

// Event is the narrow view of an event the payment engine needs:
// identity, ownership and payout routing. Event CRUD lives elsewhere.
type Event struct {
	ID                   snowflake.ID `json:"id" gorm:"primaryKey"`
	OrganizerID          snowflake.ID `json:"organizer_id" gorm:"not null;index"`
	Title                string       `json:"title" gorm:"type:text;not null"`
	DestinationAccountID string       `json:"destination_account_id" gorm:"type:text;not null"`
	TransferGroup        string       `json:"transfer_group" gorm:"type:text;not null"`
	SettlementMode       string       `json:"settlement_mode" gorm:"type:text;not null"`
	CreatedAt            time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt            time.Time    `json:"updated_at" gorm:"not null"`
}

func (Event) TableName() string { return "events" }

// Repository is the read-only event directory.
type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Event, error)
}
