// Package chat persists room messages and relays them to the room's live
// connections.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/apperr"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/auth"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/models"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/realtime"
)

// HistoryLimit caps History. The oldest messages of the room are returned.
const HistoryLimit = 100

type Store interface {
	CreateMessage(ctx context.Context, m *models.Message) error
	ListRoomMessages(ctx context.Context, roomID string, limit int) ([]models.Message, error)
	MarkRoomRead(ctx context.Context, roomID string, readerID uuid.UUID, at time.Time) (int64, error)
}

// Rooms tracks which connections belong to which room.
type Rooms interface {
	Join(client *realtime.Client, room string)
	Leave(client *realtime.Client, room string)
}

// Broadcaster delivers a frame to the current members of a room.
type Broadcaster interface {
	Publish(ctx context.Context, room string, payload []byte, exceptClientID string) error
}

type Service struct {
	store Store
	rooms Rooms
	bus   Broadcaster
	log   *zap.Logger
	now   func() time.Time

	// one lock per busy room keeps broadcast order equal to persist order
	mu    sync.Mutex
	locks map[string]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func New(store Store, rooms Rooms, bus Broadcaster, log *zap.Logger) *Service {
	return &Service{
		store: store,
		rooms: rooms,
		bus:   bus,
		log:   log,
		now:   time.Now,
		locks: make(map[string]*roomLock),
	}
}

type SendInput struct {
	RoomID         string     `json:"roomId"`
	SenderID       string     `json:"senderId"`
	SenderUsername string     `json:"senderUsername"`
	MessageText    string     `json:"messageText"`
	Timestamp      *Timestamp `json:"timestamp"`
}

// Timestamp reads either RFC 3339 text or epoch milliseconds.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" || raw == `""` {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var text string
		if err := json.Unmarshal(b, &text); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	}

	var ms json.Number
	if err := json.Unmarshal(b, &ms); err != nil {
		return err
	}
	n, err := ms.Float64()
	if err != nil {
		return err
	}
	t.Time = time.UnixMilli(int64(n)).UTC()
	return nil
}

// Ack answers a sendMessage event.
type Ack struct {
	Success bool            `json:"success"`
	Message *models.Message `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    apperr.Kind     `json:"code,omitempty"`
}

func failed(err error) Ack {
	return Ack{Success: false, Error: apperr.MessageOf(err), Code: apperr.KindOf(err)}
}

type UserJoined struct {
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
	RoomID   string    `json:"roomId"`
	Message  string    `json:"message"`
}

func (s *Service) Join(ctx context.Context, client *realtime.Client, roomID string) error {
	room := strings.TrimSpace(roomID)
	if room == "" {
		return apperr.InvalidInput("room id is required")
	}
	s.rooms.Join(client, room)

	payload, err := realtime.Encode(realtime.EventUserJoined, UserJoined{
		UserID:   client.UserID,
		Username: client.Username,
		RoomID:   room,
		Message:  fmt.Sprintf("%s has joined the room", client.Username),
	}, nil)
	if err != nil {
		return apperr.Internal("encode frame", err)
	}
	if err := s.bus.Publish(ctx, room, payload, client.ID); err != nil {
		s.log.Warn("announce join", zap.String("room", room), zap.Error(err))
	}
	return nil
}

func (s *Service) Leave(client *realtime.Client, roomID string) error {
	room := strings.TrimSpace(roomID)
	if room == "" {
		return apperr.InvalidInput("room id is required")
	}
	s.rooms.Leave(client, room)
	return nil
}

// Send persists the message, relays it to the room and reports the outcome.
// A message that fails to persist is never relayed.
func (s *Service) Send(ctx context.Context, client *realtime.Client, in SendInput) Ack {
	room := strings.TrimSpace(in.RoomID)
	text := strings.TrimSpace(in.MessageText)
	switch {
	case room == "":
		return failed(apperr.InvalidInput("room id is required"))
	case text == "":
		return failed(apperr.InvalidInput("message text is required"))
	case utf8.RuneCountInString(text) > models.MaxMessageLength:
		return failed(apperr.Newf(apperr.KindInvalidInput, "message must be at most %d characters", models.MaxMessageLength))
	}
	if in.SenderID != "" && in.SenderID != client.UserID.String() {
		return failed(apperr.Forbidden("sender does not match the connection"))
	}

	ts := s.now()
	if in.Timestamp != nil && !in.Timestamp.IsZero() {
		ts = in.Timestamp.Time
	}

	unlock := s.lockRoom(room)
	defer unlock()

	msg := models.Message{
		RoomID:         room,
		SenderID:       client.UserID,
		SenderUsername: client.Username,
		MessageText:    text,
		Timestamp:      ts,
	}
	if err := s.store.CreateMessage(ctx, &msg); err != nil {
		s.log.Error("persist message", zap.String("room", room), zap.Error(err))
		return failed(err)
	}

	payload, err := realtime.Encode(realtime.EventReceiveMessage, msg, nil)
	if err != nil {
		return failed(apperr.Internal("encode frame", err))
	}
	if err := s.bus.Publish(ctx, room, payload, ""); err != nil {
		// stored already; readers catch up through History
		s.log.Warn("broadcast message", zap.String("room", room), zap.String("message_id", msg.ID.String()), zap.Error(err))
	}

	return Ack{Success: true, Message: &msg}
}

func (s *Service) History(ctx context.Context, claim auth.Claim, roomID string) ([]models.Message, error) {
	room := strings.TrimSpace(roomID)
	if room == "" {
		return nil, apperr.InvalidInput("room id is required")
	}
	return s.store.ListRoomMessages(ctx, room, HistoryLimit)
}

// MarkRead flags the room's messages from other senders as read by claim.
func (s *Service) MarkRead(ctx context.Context, claim auth.Claim, roomID string) (int64, error) {
	room := strings.TrimSpace(roomID)
	if room == "" {
		return 0, apperr.InvalidInput("room id is required")
	}
	return s.store.MarkRoomRead(ctx, room, claim.ID, s.now())
}

// lockRoom serializes sends to one room. The entry is dropped once no
// sender holds or waits for it.
func (s *Service) lockRoom(room string) (unlock func()) {
	s.mu.Lock()
	l, ok := s.locks[room]
	if !ok {
		l = &roomLock{}
		s.locks[room] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, room)
		}
		s.mu.Unlock()
	}
}
