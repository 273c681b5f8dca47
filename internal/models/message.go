// internal/models/message.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const MaxMessageLength = 1000

// Message is a chat line in a room. SenderUsername is copied at write time
// and is not kept in sync with later username changes.
type Message struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	RoomID         string     `gorm:"type:varchar(120);not null;index:idx_message_room_ts,priority:1" json:"room_id"`
	SenderID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"sender_id"`
	SenderUsername string     `gorm:"type:varchar(60);not null" json:"sender_username"`
	MessageText    string     `gorm:"type:text;not null" json:"message_text"`
	Timestamp      time.Time  `gorm:"not null;index:idx_message_room_ts,priority:2" json:"timestamp"`
	IsRead         bool       `gorm:"default:false" json:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
