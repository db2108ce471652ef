package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/go-redis/redis"
	"github.com/rs/zerolog"

	"conversation-transcription-service/internal/models"
)

const (
	keyPrefix          = "transcribe:"
	keyConversations   = keyPrefix + "conversations"
	keyParticipants    = keyPrefix + "participants"
	keyCurrent         = keyPrefix + "current"
	participantChannel = keyPrefix + "participants:changed"
)

func conversationKey(id string) string { return fmt.Sprintf("%sconversation:%s", keyPrefix, id) }
func participantKey(id string) string  { return fmt.Sprintf("%sparticipant:%s", keyPrefix, id) }

// RedisStore persists conversations and participants in Redis. Participant
// changes fan out over a pub/sub channel so every instance sees roster
// updates, not just the one that wrote.
type RedisStore struct {
	rc  *redis.Client
	log zerolog.Logger

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int
	pubsub  *redis.PubSub
}

// NewRedisStore connects to Redis and starts the participant-change
// listener. Fails fast when the server is unreachable.
func NewRedisStore(addr, password string, db int, log zerolog.Logger) (*RedisStore, error) {
	rc := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rc.Ping().Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	s := &RedisStore{
		rc:   rc,
		log:  log.With().Str("component", "redis_store").Logger(),
		subs: make(map[int]func()),
	}
	s.pubsub = rc.Subscribe(participantChannel)
	go s.listen()
	return s, nil
}

func (s *RedisStore) listen() {
	for range s.pubsub.Channel() {
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
}

func (s *RedisStore) SaveConversation(_ context.Context, conv *models.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	if err := s.rc.Set(conversationKey(conv.Metadata.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	if err := s.rc.SAdd(keyConversations, conv.Metadata.ID).Err(); err != nil {
		return fmt.Errorf("index conversation: %w", err)
	}
	return nil
}

func (s *RedisStore) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	raw, err := s.rc.Get(conversationKey(id)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	var conv models.Conversation
	if err := json.Unmarshal([]byte(raw), &conv); err != nil {
		return nil, fmt.Errorf("unmarshal conversation %s: %w", id, err)
	}
	return &conv, nil
}

func (s *RedisStore) GetAllConversations(ctx context.Context) ([]models.ConversationMetadata, error) {
	convs, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	list := make([]models.ConversationMetadata, 0, len(convs))
	for _, conv := range convs {
		list = append(list, conv.Metadata)
	}
	sortMetadata(list)
	return list, nil
}

func (s *RedisStore) SearchConversations(ctx context.Context, query string) ([]models.ConversationMetadata, error) {
	convs, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	roster, err := s.GetAllParticipants(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(roster))
	for _, p := range roster {
		names[p.ID] = p.Name
	}

	var list []models.ConversationMetadata
	for _, conv := range convs {
		resolved := make([]string, 0, len(conv.Metadata.Participants))
		for _, id := range conv.Metadata.Participants {
			if name, ok := names[id]; ok {
				resolved = append(resolved, name)
			}
		}
		if conversationMatches(conv, resolved, query) {
			list = append(list, conv.Metadata)
		}
	}
	sortMetadata(list)
	return list, nil
}

func (s *RedisStore) DeleteConversation(ctx context.Context, id string) error {
	if err := s.rc.Del(conversationKey(id)).Err(); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if err := s.rc.SRem(keyConversations, id).Err(); err != nil {
		return fmt.Errorf("unindex conversation: %w", err)
	}
	current, err := s.GetCurrentConversationID(ctx)
	if err == nil && current == id {
		return s.SetCurrentConversationID(ctx, "")
	}
	return nil
}

func (s *RedisStore) SaveParticipant(ctx context.Context, p models.Participant) error {
	existing, err := s.GetAllParticipants(ctx)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.ID != p.ID && strings.EqualFold(other.Name, p.Name) {
			return ErrNameTaken
		}
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal participant: %w", err)
	}
	if err := s.rc.Set(participantKey(p.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("save participant: %w", err)
	}
	if err := s.rc.SAdd(keyParticipants, p.ID).Err(); err != nil {
		return fmt.Errorf("index participant: %w", err)
	}
	s.publishParticipantChange()
	return nil
}

func (s *RedisStore) GetParticipant(_ context.Context, id string) (models.Participant, error) {
	raw, err := s.rc.Get(participantKey(id)).Result()
	if err == redis.Nil {
		return models.Participant{}, ErrNotFound
	}
	if err != nil {
		return models.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	var p models.Participant
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return models.Participant{}, fmt.Errorf("unmarshal participant %s: %w", id, err)
	}
	return p, nil
}

func (s *RedisStore) GetAllParticipants(_ context.Context) ([]models.Participant, error) {
	ids, err := s.rc.SMembers(keyParticipants).Result()
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	list := make([]models.Participant, 0, len(ids))
	for _, id := range ids {
		raw, err := s.rc.Get(participantKey(id)).Result()
		if err == redis.Nil {
			// Index entry without a value, drop it.
			s.rc.SRem(keyParticipants, id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load participant %s: %w", id, err)
		}
		var p models.Participant
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			s.log.Warn().Err(err).Str("participant_id", id).Msg("skipping corrupt participant entry")
			continue
		}
		list = append(list, p)
	}
	sortParticipants(list)
	return list, nil
}

func (s *RedisStore) DeleteParticipant(_ context.Context, id string) error {
	if err := s.rc.Del(participantKey(id)).Err(); err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	if err := s.rc.SRem(keyParticipants, id).Err(); err != nil {
		return fmt.Errorf("unindex participant: %w", err)
	}
	s.publishParticipantChange()
	return nil
}

func (s *RedisStore) GetCurrentConversationID(_ context.Context) (string, error) {
	id, err := s.rc.Get(keyCurrent).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get current conversation: %w", err)
	}
	return id, nil
}

func (s *RedisStore) SetCurrentConversationID(_ context.Context, id string) error {
	if id == "" {
		if err := s.rc.Del(keyCurrent).Err(); err != nil {
			return fmt.Errorf("clear current conversation: %w", err)
		}
		return nil
	}
	if err := s.rc.Set(keyCurrent, id, 0).Err(); err != nil {
		return fmt.Errorf("set current conversation: %w", err)
	}
	return nil
}

func (s *RedisStore) SubscribeParticipants(fn func()) func() {
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

func (s *RedisStore) Close() error {
	if s.pubsub != nil {
		s.pubsub.Close()
	}
	return s.rc.Close()
}

func (s *RedisStore) publishParticipantChange() {
	if err := s.rc.Publish(participantChannel, "changed").Err(); err != nil {
		s.log.Warn().Err(err).Msg("participant change publish failed")
	}
}

// loadAll fetches every indexed conversation, skipping entries that fail
// to decode so one corrupt record cannot hide the rest.
func (s *RedisStore) loadAll(_ context.Context) ([]*models.Conversation, error) {
	ids, err := s.rc.SMembers(keyConversations).Result()
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	convs := make([]*models.Conversation, 0, len(ids))
	for _, id := range ids {
		raw, err := s.rc.Get(conversationKey(id)).Result()
		if err == redis.Nil {
			s.rc.SRem(keyConversations, id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load conversation %s: %w", id, err)
		}
		var conv models.Conversation
		if err := json.Unmarshal([]byte(raw), &conv); err != nil {
			s.log.Warn().Err(err).Str("conversation_id", id).Msg("skipping corrupt conversation entry")
			continue
		}
		convs = append(convs, &conv)
	}
	return convs, nil
}
