package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"conversation-transcription-service/internal/config"
	"conversation-transcription-service/internal/events"
	"conversation-transcription-service/internal/models"
	"conversation-transcription-service/internal/observability/metrics"
	"conversation-transcription-service/internal/service/recognition"
	"conversation-transcription-service/internal/store"
)

func newTestSession(t *testing.T) (*websocket.Conn, *store.MemoryStore) {
	t.Helper()
	ctx := context.Background()

	st := store.NewMemoryStore()
	st.SaveParticipant(ctx, models.Participant{ID: "p1", Name: "Alice"})
	st.SaveParticipant(ctx, models.Participant{ID: "p2", Name: "Bob"})

	cfg := config.Load()
	cfg.Recognition.Provider = "remote"
	cfg.Editor.AutosaveDelay = 20 * time.Millisecond

	h := NewHandler(cfg, st, events.New(nil), zerolog.Nop(), metrics.DefaultMetrics)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, st
}

func sendFrame(t *testing.T, conn *websocket.Conn, frameType string, data any) {
	t.Helper()
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			t.Fatalf("marshal %s: %v", frameType, err)
		}
		raw = b
	}
	if err := conn.WriteJSON(Frame{Type: frameType, Data: raw}); err != nil {
		t.Fatalf("write %s: %v", frameType, err)
	}
}

// waitFrame reads frames until pred accepts one, failing at the deadline.
func waitFrame(t *testing.T, conn *websocket.Conn, pred func(Frame) bool) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read: %v", err)
		}
		if pred(frame) {
			return frame
		}
	}
}

func decodeData[T any](t *testing.T, frame Frame) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(frame.Data, &out); err != nil {
		t.Fatalf("decode %s frame: %v", frame.Type, err)
	}
	return out
}

type updateData struct {
	State           string `json:"state"`
	Content         string `json:"content"`
	Warning         string `json:"warning"`
	ActiveSpeakerID string `json:"activeSpeakerId"`
}

func waitUpdate(t *testing.T, conn *websocket.Conn, pred func(updateData) bool) updateData {
	t.Helper()
	var got updateData
	waitFrame(t, conn, func(f Frame) bool {
		if f.Type != TypeUpdate {
			return false
		}
		got = decodeData[updateData](t, f)
		return pred(got)
	})
	return got
}

func TestSessionSendsInitialSnapshot(t *testing.T) {
	conn, _ := newTestSession(t)

	u := waitUpdate(t, conn, func(updateData) bool { return true })
	if u.State != "idle" {
		t.Errorf("initial state = %q, want idle", u.State)
	}
}

func TestRecordingOverWebSocket(t *testing.T) {
	conn, st := newTestSession(t)
	waitUpdate(t, conn, func(updateData) bool { return true })

	// Start recording as Alice: the server asks the browser to start its
	// French recognizer.
	sendFrame(t, conn, TypeStart, SpeakerRequest{SpeakerID: "p1"})
	frame := waitFrame(t, conn, func(f Frame) bool { return f.Type == TypeControl })
	ctl := decodeData[ControlMessage](t, frame)
	if ctl.Lang != "fr-FR" || ctl.Action != "start" {
		t.Fatalf("control = %+v, want fr-FR start", ctl)
	}

	sendFrame(t, conn, TypeSpeechStart, SpeechEvent{Lang: "fr-FR"})
	waitUpdate(t, conn, func(u updateData) bool { return u.State == "recording" })

	sendFrame(t, conn, TypeSpeechResult, SpeechEvent{
		Lang: "fr-FR",
		Results: []recognition.Result{{
			IsFinal:      true,
			Alternatives: []recognition.Alternative{{Transcript: "bonjour tout le monde", Confidence: 0.9}},
		}},
	})
	waitUpdate(t, conn, func(u updateData) bool {
		return u.Content == "Alice: bonjour tout le monde"
	})

	sendFrame(t, conn, TypeStop, nil)
	waitUpdate(t, conn, func(u updateData) bool { return u.State == "idle" })

	// The stop saved the conversation and set the resumption pointer.
	deadline := time.Now().Add(time.Second)
	for {
		id, _ := st.GetCurrentConversationID(context.Background())
		if id != "" {
			conv, err := st.GetConversation(context.Background(), id)
			if err == nil && conv.Content == "Alice: bonjour tout le monde" {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("conversation never persisted")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestManualEditAndNewlineRule(t *testing.T) {
	conn, _ := newTestSession(t)
	waitUpdate(t, conn, func(updateData) bool { return true })

	sendFrame(t, conn, TypeEdit, EditRequest{Content: "Alice:"})
	waitUpdate(t, conn, func(u updateData) bool { return u.Content == "Alice:" })

	sendFrame(t, conn, TypeInsertNewline, NewlineRequest{Content: "Alice:", Cursor: 6})
	frame := waitFrame(t, conn, func(f Frame) bool { return f.Type == TypeNewline })
	res := decodeData[NewlineResponse](t, frame)
	if !res.Applied {
		t.Error("expected newline rule to apply after a bare marker")
	}
}

func TestUnknownFrameTypeReturnsError(t *testing.T) {
	conn, _ := newTestSession(t)
	waitUpdate(t, conn, func(updateData) bool { return true })

	sendFrame(t, conn, "bogus", nil)
	frame := waitFrame(t, conn, func(f Frame) bool { return f.Type == TypeError })
	msg := decodeData[ErrorMessage](t, frame)
	if msg.Message == "" {
		t.Error("expected error message")
	}
}

func TestStartWithUnknownSpeakerWarns(t *testing.T) {
	conn, _ := newTestSession(t)
	waitUpdate(t, conn, func(updateData) bool { return true })

	sendFrame(t, conn, TypeStart, SpeakerRequest{SpeakerID: "nobody"})
	u := waitUpdate(t, conn, func(u updateData) bool { return u.Warning != "" })
	if u.State != "idle" {
		t.Errorf("state = %q, want idle", u.State)
	}
}
