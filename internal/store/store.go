// Package store persists conversations and participants behind a single
// Store interface with in-memory and Redis implementations.
package store

import (
	"context"
	"errors"

	"conversation-transcription-service/internal/models"
)

var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrNameTaken is returned when a participant name collides with
	// another participant's name, compared case-insensitively. Names double
	// as document markers, so duplicates would make attribution ambiguous.
	ErrNameTaken = errors.New("store: participant name already taken")
)

// Store is the persistence contract for the service.
//
// Participant writes notify subscribers so editor sessions pick up roster
// changes without polling.
type Store interface {
	// SaveConversation creates or overwrites a conversation by its id.
	SaveConversation(ctx context.Context, conv *models.Conversation) error
	// GetConversation loads a full conversation, ErrNotFound if absent.
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	// GetAllConversations lists metadata for every conversation, newest
	// date first.
	GetAllConversations(ctx context.Context) ([]models.ConversationMetadata, error)
	// SearchConversations filters the listing by a case-insensitive
	// substring over name, participants, tags, folder and content.
	SearchConversations(ctx context.Context, query string) ([]models.ConversationMetadata, error)
	// DeleteConversation removes a conversation. Deleting an absent id is
	// not an error.
	DeleteConversation(ctx context.Context, id string) error

	// SaveParticipant creates or updates a participant, enforcing
	// case-insensitive name uniqueness.
	SaveParticipant(ctx context.Context, p models.Participant) error
	// GetParticipant loads one participant, ErrNotFound if absent.
	GetParticipant(ctx context.Context, id string) (models.Participant, error)
	// GetAllParticipants lists the roster sorted by name.
	GetAllParticipants(ctx context.Context) ([]models.Participant, error)
	// DeleteParticipant removes a participant from the roster. Lines
	// already written under the name keep their marker.
	DeleteParticipant(ctx context.Context, id string) error

	// GetCurrentConversationID returns the resumption pointer, empty when
	// unset.
	GetCurrentConversationID(ctx context.Context) (string, error)
	// SetCurrentConversationID updates the resumption pointer. Empty
	// clears it.
	SetCurrentConversationID(ctx context.Context, id string) error

	// SubscribeParticipants registers fn to run after every participant
	// write or delete. The returned cancel unregisters it.
	SubscribeParticipants(fn func()) (cancel func())

	// Close releases underlying resources.
	Close() error
}
