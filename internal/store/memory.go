package store

import (
	"context"
	"strings"
	"sync"

	"conversation-transcription-service/internal/models"
)

// MemoryStore is an in-process Store for tests and single-node runs.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	participants  map[string]models.Participant
	currentID     string

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*models.Conversation),
		participants:  make(map[string]models.Participant),
		subs:          make(map[int]func()),
	}
}

func (s *MemoryStore) SaveConversation(_ context.Context, conv *models.Conversation) error {
	cp := *conv
	s.mu.Lock()
	s.conversations[conv.Metadata.ID] = &cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *conv
	return &cp, nil
}

func (s *MemoryStore) GetAllConversations(_ context.Context) ([]models.ConversationMetadata, error) {
	s.mu.RLock()
	list := make([]models.ConversationMetadata, 0, len(s.conversations))
	for _, conv := range s.conversations {
		list = append(list, conv.Metadata)
	}
	s.mu.RUnlock()
	sortMetadata(list)
	return list, nil
}

func (s *MemoryStore) SearchConversations(_ context.Context, query string) ([]models.ConversationMetadata, error) {
	s.mu.RLock()
	var list []models.ConversationMetadata
	for _, conv := range s.conversations {
		if conversationMatches(conv, s.participantNamesLocked(conv.Metadata.Participants), query) {
			list = append(list, conv.Metadata)
		}
	}
	s.mu.RUnlock()
	sortMetadata(list)
	return list, nil
}

func (s *MemoryStore) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.conversations, id)
	if s.currentID == id {
		s.currentID = ""
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SaveParticipant(_ context.Context, p models.Participant) error {
	s.mu.Lock()
	for id, existing := range s.participants {
		if id != p.ID && strings.EqualFold(existing.Name, p.Name) {
			s.mu.Unlock()
			return ErrNameTaken
		}
	}
	s.participants[p.ID] = p
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *MemoryStore) GetParticipant(_ context.Context, id string) (models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	if !ok {
		return models.Participant{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) GetAllParticipants(_ context.Context) ([]models.Participant, error) {
	s.mu.RLock()
	list := make([]models.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		list = append(list, p)
	}
	s.mu.RUnlock()
	sortParticipants(list)
	return list, nil
}

func (s *MemoryStore) DeleteParticipant(_ context.Context, id string) error {
	s.mu.Lock()
	_, ok := s.participants[id]
	delete(s.participants, id)
	s.mu.Unlock()
	if ok {
		s.notify()
	}
	return nil
}

func (s *MemoryStore) GetCurrentConversationID(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentID, nil
}

func (s *MemoryStore) SetCurrentConversationID(_ context.Context, id string) error {
	s.mu.Lock()
	s.currentID = id
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SubscribeParticipants(fn func()) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *MemoryStore) Close() error { return nil }

// participantNamesLocked resolves ids to names. Caller holds at least a
// read lock.
func (s *MemoryStore) participantNamesLocked(ids []string) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.participants[id]; ok {
			names = append(names, p.Name)
		}
	}
	return names
}

func (s *MemoryStore) notify() {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
