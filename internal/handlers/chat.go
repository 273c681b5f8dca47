package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/apperr"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/auth"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/middleware"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/realtime"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/services/chat"
)

// DefaultAckWait bounds how long an ack waits for room in a full queue.
const DefaultAckWait = 5 * time.Second

var errAckDropped = errors.New("ack could not be queued")

type ChatHandler struct {
	Chat    *chat.Service
	Hub     *realtime.Hub
	Log     *zap.Logger
	AckWait time.Duration
}

func (h *ChatHandler) History(c *fiber.Ctx) error {
	claim, err := middleware.ClaimFrom(c)
	if err != nil {
		return err
	}
	msgs, err := h.Chat.History(c.UserContext(), claim, c.Params("roomId"))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, "", msgs)
}

func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	claim, err := middleware.ClaimFrom(c)
	if err != nil {
		return err
	}
	n, err := h.Chat.MarkRead(c.UserContext(), claim, c.Params("roomId"))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, "messages marked as read", fiber.Map{"updated": n})
}

// Upgrade refuses non-websocket requests before the handshake.
func (h *ChatHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}

// WebSocketHandler serves one authenticated chat connection. The claim was
// put in Locals by RequireAuthQuery before the upgrade.
func (h *ChatHandler) WebSocketHandler(c *websocket.Conn) {
	claim, isClaim := c.Locals(middleware.ClaimKey).(auth.Claim)
	if !isClaim {
		c.Close()
		return
	}

	conn := realtime.NewWebSocketConn(c)
	client := realtime.NewClient(claim.ID, claim.Username, conn)
	h.Hub.RegisterClient(client)
	h.Log.Debug("websocket connected", zap.String("user_id", claim.ID.String()), zap.String("client_id", client.ID))

	stop := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		conn.WritePump(client.Send, stop)
		close(writerDone)
	}()

	defer func() {
		h.Hub.UnregisterClient(client)
		close(stop)
		<-writerDone
		h.Log.Debug("websocket disconnected", zap.String("client_id", client.ID))
	}()

	ctx := context.Background()
	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.Log.Debug("websocket read", zap.String("client_id", client.ID), zap.Error(err))
			}
			return
		}

		var f realtime.Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			h.notify(client, realtime.EventError, errorData(apperr.InvalidInput("malformed frame")), nil)
			continue
		}
		if err := h.dispatch(ctx, client, f); err != nil {
			// a peer that cannot take its acks is cut off
			h.Log.Warn("closing websocket", zap.String("client_id", client.ID), zap.Error(err))
			return
		}
	}
}

func (h *ChatHandler) dispatch(ctx context.Context, client *realtime.Client, f realtime.Frame) error {
	switch f.Event {
	case realtime.EventJoinRoom:
		room, err := roomIDFrom(f.Data)
		if err == nil {
			err = h.Chat.Join(ctx, client, room)
		}
		return h.settle(client, f.Ack, err)

	case realtime.EventLeaveRoom:
		room, err := roomIDFrom(f.Data)
		if err == nil {
			err = h.Chat.Leave(client, room)
		}
		return h.settle(client, f.Ack, err)

	case realtime.EventSendMessage:
		var in chat.SendInput
		if err := json.Unmarshal(f.Data, &in); err != nil {
			return h.ack(client, chat.Ack{
				Error: "malformed message",
				Code:  apperr.KindInvalidInput,
			}, f.Ack)
		}
		return h.ack(client, h.Chat.Send(ctx, client, in), f.Ack)

	default:
		h.notify(client, realtime.EventError, errorData(apperr.Newf(apperr.KindInvalidInput, "unknown event %q", f.Event)), f.Ack)
		return nil
	}
}

// settle acknowledges a membership event when the caller asked for an ack,
// and reports failures either way.
func (h *ChatHandler) settle(client *realtime.Client, ack *int, err error) error {
	switch {
	case ack != nil && err != nil:
		return h.ack(client, chat.Ack{Error: apperr.MessageOf(err), Code: apperr.KindOf(err)}, ack)
	case ack != nil:
		return h.ack(client, chat.Ack{Success: true}, ack)
	case err != nil:
		h.notify(client, realtime.EventError, errorData(err), nil)
	}
	return nil
}

// ack waits for queue room instead of dropping the frame.
func (h *ChatHandler) ack(client *realtime.Client, data chat.Ack, ack *int) error {
	payload, err := realtime.Encode(realtime.EventAck, data, ack)
	if err != nil {
		h.Log.Error("encode frame", zap.String("event", realtime.EventAck), zap.Error(err))
		return nil
	}
	wait := h.AckWait
	if wait <= 0 {
		wait = DefaultAckWait
	}
	if !client.DeliverWithin(payload, wait) {
		return errAckDropped
	}
	return nil
}

func (h *ChatHandler) notify(client *realtime.Client, event string, data any, ack *int) {
	payload, err := realtime.Encode(event, data, ack)
	if err != nil {
		h.Log.Error("encode frame", zap.String("event", event), zap.Error(err))
		return
	}
	if !client.Deliver(payload) {
		h.Log.Warn("client send buffer full, frame dropped", zap.String("client_id", client.ID), zap.String("event", event))
	}
}
