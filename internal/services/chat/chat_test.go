package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/apperr"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/db/dbtest"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/models"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/realtime"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/repository"
)

type fixture struct {
	svc  *Service
	hub  *realtime.Hub
	a, b *realtime.Client
	repo *repository.Repository
}

func setup(t *testing.T) fixture {
	t.Helper()
	gdb := dbtest.Open(t)
	repo := repository.New(gdb)
	ua, _ := dbtest.CreateUser(t, gdb, "ana", models.RoleClient)
	ub, _ := dbtest.CreateUser(t, gdb, "bob", models.RoleFreelancer)

	hub := realtime.NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	a := realtime.NewClient(ua.ID, ua.Username, nil)
	b := realtime.NewClient(ub.ID, ub.Username, nil)
	hub.RegisterClient(a)
	hub.RegisterClient(b)

	return fixture{svc: New(repo, hub, hub, zap.NewNop()), hub: hub, a: a, b: b, repo: repo}
}

func nextFrame(t *testing.T, c *realtime.Client) realtime.Frame {
	t.Helper()
	select {
	case raw := <-c.Send:
		var f realtime.Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return f
	case <-time.After(time.Second):
		t.Fatalf("%s: expected a frame", c.Username)
	}
	return realtime.Frame{}
}

func noFrame(t *testing.T, c *realtime.Client) {
	t.Helper()
	select {
	case raw := <-c.Send:
		t.Fatalf("%s: expected no frame, got %s", c.Username, raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRoomScenario(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	if err := f.svc.Join(ctx, f.a, "proj-42"); err != nil {
		t.Fatalf("join a: %v", err)
	}
	if err := f.svc.Join(ctx, f.b, "proj-42"); err != nil {
		t.Fatalf("join b: %v", err)
	}

	joined := nextFrame(t, f.a)
	if joined.Event != realtime.EventUserJoined {
		t.Fatalf("expected userJoined, got %s", joined.Event)
	}
	var uj UserJoined
	json.Unmarshal(joined.Data, &uj)
	if uj.UserID != f.b.UserID || uj.RoomID != "proj-42" {
		t.Fatalf("unexpected join payload %+v", uj)
	}
	noFrame(t, f.b)

	before := time.Now().Add(-time.Millisecond)
	ack := f.svc.Send(ctx, f.a, SendInput{RoomID: "proj-42", MessageText: "hello"})
	if !ack.Success || ack.Message == nil {
		t.Fatalf("expected success ack, got %+v", ack)
	}
	if ack.Message.ID == uuid.Nil {
		t.Fatal("expected persisted message id in ack")
	}

	for _, c := range []*realtime.Client{f.a, f.b} {
		fr := nextFrame(t, c)
		if fr.Event != realtime.EventReceiveMessage {
			t.Fatalf("%s: expected receiveMessage, got %s", c.Username, fr.Event)
		}
		var m models.Message
		json.Unmarshal(fr.Data, &m)
		if m.ID != ack.Message.ID || m.MessageText != "hello" || m.SenderUsername != "ana" {
			t.Fatalf("%s: unexpected message %+v", c.Username, m)
		}
	}

	history, err := f.svc.History(ctx, f.claimOf(f.b), "proj-42")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].MessageText != "hello" {
		t.Fatalf("expected one hello, got %+v", history)
	}
	if history[0].Timestamp.Before(before) {
		t.Fatalf("expected timestamp after send time, got %s", history[0].Timestamp)
	}
}

func TestSendValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.svc.Join(ctx, f.a, "r")

	cases := []struct {
		in   SendInput
		kind apperr.Kind
	}{
		{SendInput{RoomID: " ", MessageText: "hi"}, apperr.KindInvalidInput},
		{SendInput{RoomID: "r", MessageText: "  "}, apperr.KindInvalidInput},
		{SendInput{RoomID: "r", MessageText: strings.Repeat("x", models.MaxMessageLength+1)}, apperr.KindInvalidInput},
		{SendInput{RoomID: "r", MessageText: "hi", SenderID: f.b.UserID.String()}, apperr.KindForbidden},
	}
	for i, tc := range cases {
		ack := f.svc.Send(ctx, f.a, tc.in)
		if ack.Success || ack.Code != tc.kind || ack.Error == "" {
			t.Fatalf("case %d: expected %s failure, got %+v", i, tc.kind, ack)
		}
	}
	noFrame(t, f.a)

	history, _ := f.svc.History(ctx, f.claimOf(f.a), "r")
	if len(history) != 0 {
		t.Fatalf("expected nothing stored, got %d", len(history))
	}
}

func TestSendKeepsSuppliedTimestamp(t *testing.T) {
	f := setup(t)
	ts := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	ack := f.svc.Send(context.Background(), f.a, SendInput{
		RoomID:      "r",
		SenderID:    f.a.UserID.String(),
		MessageText: "timed",
		Timestamp:   &Timestamp{Time: ts},
	})
	if !ack.Success {
		t.Fatalf("expected success, got %+v", ack)
	}
	if !ack.Message.Timestamp.Equal(ts) {
		t.Fatalf("expected %s, got %s", ts, ack.Message.Timestamp)
	}
}

func TestTimestampFormats(t *testing.T) {
	want := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	cases := []struct {
		raw  string
		want time.Time
		ok   bool
	}{
		{`{"timestamp":"2026-02-03T04:05:06Z"}`, want, true},
		{`{"timestamp":` + strconv.FormatInt(want.UnixMilli(), 10) + `}`, want, true},
		{`{"timestamp":null}`, time.Time{}, true},
		{`{"timestamp":"yesterday"}`, time.Time{}, false},
	}
	for _, tc := range cases {
		var in SendInput
		err := json.Unmarshal([]byte(tc.raw), &in)
		if (err == nil) != tc.ok {
			t.Fatalf("%s: expected ok=%v, got %v", tc.raw, tc.ok, err)
		}
		if !tc.ok {
			continue
		}
		var got time.Time
		if in.Timestamp != nil {
			got = in.Timestamp.Time
		}
		if !got.Equal(tc.want) {
			t.Fatalf("%s: expected %s, got %s", tc.raw, tc.want, got)
		}
	}
}

func TestSendQueuesBroadcastBeforeReturning(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.svc.Join(ctx, f.a, "r")

	for i := 0; i < 50; i++ {
		ack := f.svc.Send(ctx, f.a, SendInput{RoomID: "r", MessageText: "hi"})
		if !ack.Success {
			t.Fatalf("send: %+v", ack)
		}
		// the caller's ack goes on the queue after this frame
		if n := len(f.a.Send); n != 1 {
			t.Fatalf("send %d: expected the sender's own frame queued, got %d", i, n)
		}
		if fr := nextFrame(t, f.a); fr.Event != realtime.EventReceiveMessage {
			t.Fatalf("expected receiveMessage, got %s", fr.Event)
		}
	}
	if n := len(f.svc.locks); n != 0 {
		t.Fatalf("expected idle room locks released, got %d", n)
	}
}

func TestSendOrderMatchesHistory(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.svc.Join(ctx, f.b, "r")

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(i int) {
			f.svc.Send(ctx, f.a, SendInput{RoomID: "r", MessageText: string(rune('a' + i))})
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	var relayed []uuid.UUID
	for i := 0; i < 10; i++ {
		var m models.Message
		json.Unmarshal(nextFrame(t, f.b).Data, &m)
		relayed = append(relayed, m.ID)
	}

	var stored []models.Message
	if err := f.repo.DB().Where("room_id = ?", "r").Order("created_at ASC").Find(&stored).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	for i := range stored {
		if stored[i].ID != relayed[i] {
			t.Fatalf("position %d: stored %s, relayed %s", i, stored[i].ID, relayed[i])
		}
	}
	if n := len(f.svc.locks); n != 0 {
		t.Fatalf("expected room locks released after concurrent sends, got %d", n)
	}
}

type failingStore struct{ Store }

func (failingStore) CreateMessage(context.Context, *models.Message) error {
	return apperr.Internal("database error", errors.New("disk full"))
}

func TestSendPersistFailureIsNotBroadcast(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	svc := New(failingStore{}, f.hub, f.hub, zap.NewNop())
	svc.Join(ctx, f.a, "r")
	svc.Join(ctx, f.b, "r")
	nextFrame(t, f.a) // b joined

	ack := svc.Send(ctx, f.a, SendInput{RoomID: "r", MessageText: "lost"})
	if ack.Success || ack.Code != apperr.KindInternal {
		t.Fatalf("expected internal failure, got %+v", ack)
	}
	if ack.Error != "database error" {
		t.Fatalf("expected safe message, got %q", ack.Error)
	}
	noFrame(t, f.a)
	noFrame(t, f.b)
}

func TestLeaveStopsFrames(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.svc.Join(ctx, f.a, "r")
	f.svc.Join(ctx, f.b, "r")
	nextFrame(t, f.a)

	if err := f.svc.Leave(f.b, "r"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	f.svc.Send(ctx, f.a, SendInput{RoomID: "r", MessageText: "bye"})
	nextFrame(t, f.a)
	noFrame(t, f.b)

	if err := f.svc.Join(ctx, f.a, ""); !apperr.Is(err, apperr.KindInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestMarkRead(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.svc.Send(ctx, f.a, SendInput{RoomID: "r", MessageText: "one"})
	f.svc.Send(ctx, f.a, SendInput{RoomID: "r", MessageText: "two"})

	n, err := f.svc.MarkRead(ctx, f.claimOf(f.b), "r")
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 marked, got %d", n)
	}
	history, _ := f.svc.History(ctx, f.claimOf(f.b), "r")
	for _, m := range history {
		if !m.IsRead || m.ReadAt == nil {
			t.Fatalf("expected read receipt, got %+v", m)
		}
	}
}
