package mongo

import (
	"testing"
	"time"

	"github.com/cwrk-planet/board-service/internal/domain"
)

func TestDocKeepsRoomIDAndFillsStrokeDefaults(t *testing.T) {
	created := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	d := toDoc(domain.RoomRecord{
		ID:        "room1",
		Name:      "Board",
		CreatedAt: created,
		Messages:  []domain.ChatMessage{{ID: "m1", Text: "hi", Type: domain.KindSystem}},
	})
	if d.RoomID != "room1" || !d.ID.IsZero() {
		t.Fatalf("unexpected ids: %+v", d)
	}
	if d.Messages == nil || d.CanvasState == nil {
		t.Fatal("empty lists should be stored as arrays, not null")
	}

	d.CanvasState = append(d.CanvasState, strokeDoc{Points: []pointDoc{{X: 1, Y: 2}}})
	d.Messages = append(d.Messages, messageDoc{ID: "m2", Type: "legacy"})

	rec := d.record()
	if rec.ID != "room1" || !rec.CreatedAt.Equal(created) {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if s := rec.CanvasState[0]; s.Color != domain.DefaultStrokeColor || s.Width != domain.DefaultStrokeWidth {
		t.Fatalf("stroke defaults not applied: %+v", s)
	}
	if rec.Messages[0].Type != domain.KindSystem || rec.Messages[1].Type != domain.KindUser {
		t.Fatalf("unexpected kinds: %+v", rec.Messages)
	}
	if rec.Messages[0].RoomID != "room1" {
		t.Fatal("room id not propagated to messages")
	}
}
