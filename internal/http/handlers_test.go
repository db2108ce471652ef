package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"conversation-transcription-service/internal/app"
	"conversation-transcription-service/internal/models"
	"conversation-transcription-service/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	application := &app.Application{Logger: zerolog.Nop()}
	srv := httptest.NewServer(NewRouter(application, st, nil))
	t.Cleanup(srv.Close)
	return srv, st
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/v1/liveness", "/v1/readiness"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestCreateParticipantAssignsIDAndColor(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/participants", map[string]string{"name": "Alice"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	p := decode[models.Participant](t, resp)
	if p.ID == "" {
		t.Error("expected assigned id")
	}
	if p.Color != models.ParticipantColors[0] {
		t.Errorf("color = %q, want first palette color", p.Color)
	}

	// Second participant gets the next color.
	resp = doJSON(t, http.MethodPost, srv.URL+"/v1/participants", map[string]string{"name": "Bob"})
	p2 := decode[models.Participant](t, resp)
	if p2.Color != models.ParticipantColors[1] {
		t.Errorf("color = %q, want second palette color", p2.Color)
	}
}

func TestCreateParticipantNameConflict(t *testing.T) {
	srv, _ := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/v1/participants", map[string]string{"name": "Alice"}).Body.Close()
	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/participants", map[string]string{"name": "alice"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestCreateParticipantRequiresName(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/participants", map[string]string{"name": "   "})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSaveConversationRecomputesDerivedFields(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()
	st.SaveParticipant(ctx, models.Participant{ID: "p1", Name: "Alice"})

	body := models.Conversation{
		Content: "Alice: bonjour tout le monde",
		// Bogus client-supplied messages must be ignored.
		Messages: []models.ConversationMessage{{ParticipantID: "zzz", Content: "forged"}},
	}
	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/conversations", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	conv := decode[models.Conversation](t, resp)
	if conv.Metadata.ID == "" {
		t.Error("expected assigned conversation id")
	}
	if conv.Metadata.Name == "" || !strings.Contains(conv.Metadata.Name, "alice") {
		t.Errorf("name = %q, want generated name with participant", conv.Metadata.Name)
	}
	if len(conv.Messages) != 1 || conv.Messages[0].ParticipantID != "p1" {
		t.Errorf("messages = %+v, want recomputed attribution", conv.Messages)
	}
}

func TestGetConversationNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/conversations/missing")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestSearchConversations(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()
	st.SaveConversation(ctx, &models.Conversation{
		Metadata: models.ConversationMetadata{ID: "c1", Name: "budget review", Date: "2026-08-30"},
		Content:  "Alice: numbers",
	})
	st.SaveConversation(ctx, &models.Conversation{
		Metadata: models.ConversationMetadata{ID: "c2", Name: "standup", Date: "2026-08-29"},
	})

	resp, err := http.Get(srv.URL + "/v1/conversations/?q=budget")
	if err != nil {
		t.Fatal(err)
	}
	list := decode[[]models.ConversationMetadata](t, resp)
	if len(list) != 1 || list[0].ID != "c1" {
		t.Errorf("list = %+v, want only c1", list)
	}
}

func TestArchiveAndRestore(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()
	st.SaveConversation(ctx, &models.Conversation{
		Metadata: models.ConversationMetadata{ID: "c1", Name: "old", Date: "2026-08-01", Status: models.StatusActive},
	})

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/conversations/c1/archive", nil)
	md := decode[models.ConversationMetadata](t, resp)
	if md.Status != models.StatusArchived {
		t.Errorf("status = %q, want archived", md.Status)
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/v1/conversations/c1/restore", nil)
	md = decode[models.ConversationMetadata](t, resp)
	if md.Status != models.StatusActive {
		t.Errorf("status = %q, want active", md.Status)
	}
}

func TestCurrentConversationPointer(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()
	st.SaveConversation(ctx, &models.Conversation{
		Metadata: models.ConversationMetadata{ID: "c1", Name: "a", Date: "2026-08-30"},
	})

	// Pointing at a missing conversation is rejected.
	resp := doJSON(t, http.MethodPut, srv.URL+"/v1/conversations/current", map[string]string{"conversationId": "nope"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPut, srv.URL+"/v1/conversations/current", map[string]string{"conversationId": "c1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/v1/conversations/current")
	if err != nil {
		t.Fatal(err)
	}
	got := decode[map[string]string](t, resp)
	if got["conversationId"] != "c1" {
		t.Errorf("current = %q, want c1", got["conversationId"])
	}
}

func TestDeleteParticipant(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()
	st.SaveParticipant(ctx, models.Participant{ID: "p1", Name: "Alice"})

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/participants/p1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if _, err := st.GetParticipant(ctx, "p1"); err != store.ErrNotFound {
		t.Errorf("expected participant removed, err = %v", err)
	}
}
