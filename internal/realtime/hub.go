// internal/realtime/hub.go
package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrHubClosed = errors.New("hub closed")

// SendBuffer is the per-client outbound queue length.
const SendBuffer = 64

type Client struct {
	ID       string
	UserID   uuid.UUID
	Username string
	Conn     *WebSocketConn
	Send     chan []byte
}

func NewClient(userID uuid.UUID, username string, conn *WebSocketConn) *Client {
	return &Client{
		ID:       uuid.New().String(),
		UserID:   userID,
		Username: username,
		Conn:     conn,
		Send:     make(chan []byte, SendBuffer),
	}
}

// Deliver queues a frame for this client only, dropping it if the queue is
// full. It must not be called after the client was unregistered.
func (c *Client) Deliver(payload []byte) bool {
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

// DeliverWithin waits up to d for room in the client's queue. Same rules as
// Deliver.
func (c *Client) DeliverWithin(payload []byte, d time.Duration) bool {
	select {
	case c.Send <- payload:
		return true
	default:
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case c.Send <- payload:
		return true
	case <-timer.C:
		return false
	}
}

type membership struct {
	client *Client
	room   string
	done   chan struct{}
}

type roomFrame struct {
	room    string
	payload []byte
	except  string
	done    chan struct{}
}

// Hub owns clients and room membership. All of its state is touched only by
// the Run goroutine.
type Hub struct {
	clients map[string]*Client
	rooms   map[string][]*Client // join order
	joined  map[string]map[string]struct{}

	register   chan *Client
	unregister chan *Client
	join       chan membership
	leave      chan membership
	broadcast  chan roomFrame
	quit       chan struct{}

	log *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string][]*Client),
		joined:     make(map[string]map[string]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan membership),
		leave:      make(chan membership),
		broadcast:  make(chan roomFrame, 256),
		quit:       make(chan struct{}),
		log:        log,
	}
}

func (h *Hub) RegisterClient(client *Client) {
	select {
	case h.register <- client:
	case <-h.quit:
	}
}

// UnregisterClient drops the client from every room and closes its Send
// channel.
func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// Join returns once the client is a member of room.
func (h *Hub) Join(client *Client, room string) {
	h.apply(h.join, client, room)
}

// Leave returns once the client no longer receives frames for room.
func (h *Hub) Leave(client *Client, room string) {
	h.apply(h.leave, client, room)
}

func (h *Hub) apply(ch chan membership, client *Client, room string) {
	m := membership{client: client, room: room, done: make(chan struct{})}
	select {
	case ch <- m:
	case <-h.quit:
		return
	}
	select {
	case <-m.done:
	case <-h.quit:
	}
}

// Publish hands payload to every member of room except the client with id
// exceptClientID and returns once the frame sits in their send queues, so a
// reply the caller queues afterwards arrives after it. Frames published to
// one room are delivered in the order they were published.
func (h *Hub) Publish(ctx context.Context, room string, payload []byte, exceptClientID string) error {
	select {
	case <-h.quit:
		return ErrHubClosed
	default:
	}

	f := roomFrame{room: room, payload: payload, except: exceptClientID, done: make(chan struct{})}
	select {
	case h.broadcast <- f:
	case <-h.quit:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-f.done:
		return nil
	case <-h.quit:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.quit)

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client.ID] = client
			h.log.Debug("client registered", zap.String("client_id", client.ID), zap.String("user_id", client.UserID.String()))

		case client := <-h.unregister:
			if _, ok := h.clients[client.ID]; !ok {
				continue
			}
			for room := range h.joined[client.ID] {
				h.removeFromRoom(client, room)
			}
			delete(h.joined, client.ID)
			delete(h.clients, client.ID)
			close(client.Send)
			h.log.Debug("client unregistered", zap.String("client_id", client.ID))

		case m := <-h.join:
			if _, ok := h.clients[m.client.ID]; ok {
				h.addToRoom(m.client, m.room)
			}
			close(m.done)

		case m := <-h.leave:
			if _, ok := h.joined[m.client.ID][m.room]; ok {
				h.removeFromRoom(m.client, m.room)
				delete(h.joined[m.client.ID], m.room)
			}
			close(m.done)

		case f := <-h.broadcast:
			for _, client := range h.rooms[f.room] {
				if client.ID == f.except {
					continue
				}
				if !client.Deliver(f.payload) {
					// slow reader, skip instead of blocking the hub
					h.log.Warn("client send buffer full, frame dropped",
						zap.String("client_id", client.ID),
						zap.String("room", f.room),
					)
				}
			}
			close(f.done)
		}
	}
}

func (h *Hub) addToRoom(client *Client, room string) {
	rooms := h.joined[client.ID]
	if rooms == nil {
		rooms = make(map[string]struct{})
		h.joined[client.ID] = rooms
	}
	if _, ok := rooms[room]; ok {
		return
	}
	rooms[room] = struct{}{}
	h.rooms[room] = append(h.rooms[room], client)
}

func (h *Hub) removeFromRoom(client *Client, room string) {
	members := h.rooms[room]
	for i, c := range members {
		if c.ID == client.ID {
			members = append(members[:i], members[i+1:]...)
			break
		}
	}
	if len(members) == 0 {
		delete(h.rooms, room)
		return
	}
	h.rooms[room] = members
}
