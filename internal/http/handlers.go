package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"conversation-transcription-service/internal/models"
	"conversation-transcription-service/internal/service/transcript"
	"conversation-transcription-service/internal/store"
)

type handlers struct {
	store store.Store
	log   zerolog.Logger
}

func (h *handlers) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			h.log.Error().Err(err).Msg("response encode failed")
		}
	}
}

func (h *handlers) respondError(w http.ResponseWriter, status int, msg string) {
	h.respond(w, status, map[string]string{"error": msg})
}

func (h *handlers) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrNameTaken):
		h.respondError(w, http.StatusConflict, "participant name already taken")
	default:
		h.log.Error().Err(err).Msg("store operation failed")
		h.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *handlers) listConversations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	var (
		list []models.ConversationMetadata
		err  error
	)
	if q != "" {
		list, err = h.store.SearchConversations(r.Context(), q)
	} else {
		list, err = h.store.GetAllConversations(r.Context())
	}
	if err != nil {
		h.storeError(w, err)
		return
	}
	if list == nil {
		list = []models.ConversationMetadata{}
	}
	h.respond(w, http.StatusOK, list)
}

func (h *handlers) getConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.store.GetConversation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, conv)
}

// saveConversation persists a conversation. Messages are recomputed from
// the content, never trusted from the request.
func (h *handlers) saveConversation(w http.ResponseWriter, r *http.Request) {
	var conv models.Conversation
	if err := json.NewDecoder(r.Body).Decode(&conv); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid conversation payload")
		return
	}
	if conv.Metadata.ID == "" {
		conv.Metadata.ID = uuid.New().String()
	}
	if conv.Metadata.Date == "" {
		conv.Metadata.Date = time.Now().Format("2006-01-02")
	}
	if conv.Metadata.Status == "" {
		conv.Metadata.Status = models.StatusActive
	}

	roster, err := h.store.GetAllParticipants(r.Context())
	if err != nil {
		h.storeError(w, err)
		return
	}
	conv.Messages = transcript.ParseContent(conv.Content, roster)
	if conv.Metadata.Name == "" {
		var names []string
		seen := map[string]bool{}
		for _, msg := range conv.Messages {
			if !seen[msg.ParticipantName] {
				seen[msg.ParticipantName] = true
				names = append(names, msg.ParticipantName)
			}
		}
		conv.Metadata.Name = transcript.GenerateName(conv.Metadata.Type, names)
	}

	if err := h.store.SaveConversation(r.Context(), &conv); err != nil {
		h.storeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, conv)
}

func (h *handlers) deleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteConversation(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.storeError(w, err)
		return
	}
	h.respond(w, http.StatusNoContent, nil)
}

func (h *handlers) archiveConversation(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, models.StatusArchived)
}

func (h *handlers) restoreConversation(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, models.StatusActive)
}

func (h *handlers) setStatus(w http.ResponseWriter, r *http.Request, status string) {
	id := chi.URLParam(r, "id")
	conv, err := h.store.GetConversation(r.Context(), id)
	if err != nil {
		h.storeError(w, err)
		return
	}
	conv.Metadata.Status = status
	if err := h.store.SaveConversation(r.Context(), conv); err != nil {
		h.storeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, conv.Metadata)
}

func (h *handlers) getCurrentConversation(w http.ResponseWriter, r *http.Request) {
	id, err := h.store.GetCurrentConversationID(r.Context())
	if err != nil {
		h.storeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"conversationId": id})
}

func (h *handlers) setCurrentConversation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ConversationID string `json:"conversationId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if body.ConversationID != "" {
		if _, err := h.store.GetConversation(r.Context(), body.ConversationID); err != nil {
			h.storeError(w, err)
			return
		}
	}
	if err := h.store.SetCurrentConversationID(r.Context(), body.ConversationID); err != nil {
		h.storeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"conversationId": body.ConversationID})
}

func (h *handlers) listParticipants(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.GetAllParticipants(r.Context())
	if err != nil {
		h.storeError(w, err)
		return
	}
	if list == nil {
		list = []models.Participant{}
	}
	h.respond(w, http.StatusOK, list)
}

func (h *handlers) createParticipant(w http.ResponseWriter, r *http.Request) {
	var p models.Participant
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid participant payload")
		return
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		h.respondError(w, http.StatusBadRequest, "participant name is required")
		return
	}
	p.ID = uuid.New().String()
	if p.Color == "" {
		roster, err := h.store.GetAllParticipants(r.Context())
		if err != nil {
			h.storeError(w, err)
			return
		}
		p.Color = models.ColorForParticipant(len(roster))
	}
	if err := h.store.SaveParticipant(r.Context(), p); err != nil {
		h.storeError(w, err)
		return
	}
	h.respond(w, http.StatusCreated, p)
}

func (h *handlers) updateParticipant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := h.store.GetParticipant(r.Context(), id)
	if err != nil {
		h.storeError(w, err)
		return
	}

	var p models.Participant
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid participant payload")
		return
	}
	p.ID = id
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		p.Name = existing.Name
	}
	if p.Color == "" {
		p.Color = existing.Color
	}
	if err := h.store.SaveParticipant(r.Context(), p); err != nil {
		h.storeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, p)
}

func (h *handlers) deleteParticipant(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteParticipant(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.storeError(w, err)
		return
	}
	h.respond(w, http.StatusNoContent, nil)
}
