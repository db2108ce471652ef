// Package http exposes the REST and WebSocket API of the service.
package http

import (
	"net/http"

	"conversation-transcription-service/internal/app"
	"conversation-transcription-service/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the HTTP router for the service. editorWS handles
// the live editor WebSocket endpoint.
func NewRouter(application *app.Application, st store.Store, editorWS http.Handler) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	h := &handlers{store: st, log: application.Logger.With().Str("component", "http").Logger()}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", h.listConversations)
			r.Post("/", h.saveConversation)
			r.Get("/current", h.getCurrentConversation)
			r.Put("/current", h.setCurrentConversation)
			r.Get("/{id}", h.getConversation)
			r.Delete("/{id}", h.deleteConversation)
			r.Post("/{id}/archive", h.archiveConversation)
			r.Post("/{id}/restore", h.restoreConversation)
		})
		r.Route("/participants", func(r chi.Router) {
			r.Get("/", h.listParticipants)
			r.Post("/", h.createParticipant)
			r.Put("/{id}", h.updateParticipant)
			r.Delete("/{id}", h.deleteParticipant)
		})
		if editorWS != nil {
			r.Handle("/editor/ws", editorWS)
		}
	})

	return r
}
