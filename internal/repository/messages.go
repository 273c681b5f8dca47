package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/models"
)

func (r *Repository) CreateMessage(ctx context.Context, m *models.Message) error {
	m.Timestamp = m.Timestamp.UTC()
	return translate(r.db.WithContext(ctx).Create(m).Error, "message")
}

// ListRoomMessages returns the first limit messages of a room, oldest first.
func (r *Repository) ListRoomMessages(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	var out []models.Message
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("timestamp ASC").
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, translate(err, "message")
}

// MarkRoomRead flags every unread message in the room that readerID did not
// send. It returns the number of messages changed.
func (r *Repository) MarkRoomRead(ctx context.Context, roomID string, readerID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("room_id = ? AND sender_id <> ? AND is_read = ?", roomID, readerID, false).
		Updates(map[string]any{"is_read": true, "read_at": at.UTC()})
	return res.RowsAffected, translate(res.Error, "message")
}
