// Package logging provides context-tagged loggers on top of the global
// zerolog logger the application configures at startup.
package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// WithConversation returns a logger carrying conversation context.
func WithConversation(conversationID string) zerolog.Logger {
	return log.With().
		Str("conversationId", conversationID).
		Logger()
}

// WithSession returns a logger carrying editor session context.
func WithSession(sessionID string) zerolog.Logger {
	return log.With().
		Str("sessionId", sessionID).
		Logger()
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}
