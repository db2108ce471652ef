// Package schema validates outbound event payloads before they reach the
// broker. A malformed event is dropped at the door rather than published
// for consumers to choke on.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMissingEventType = errors.New("event has no eventType")
	ErrUnknownEventType = errors.New("unknown eventType")
	ErrMissingField     = errors.New("missing required field")
)

// Validator checks event payloads against per-type required fields.
type Validator struct {
	required map[string][]string
}

// New returns a validator covering the event types this service publishes.
func New() *Validator {
	return &Validator{
		required: map[string][]string{
			"conversation.transcript.view": {"conversationId", "timestamp"},
			"conversation.segment.final":   {"conversationId", "speakerId", "text", "timestamp"},
		},
	}
}

// Validate checks that payload is a JSON object of a known event type with
// all its required fields populated.
func (v *Validator) Validate(payload []byte) error {
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("event is not a JSON object: %w", err)
	}

	eventType, _ := doc["eventType"].(string)
	if eventType == "" {
		return ErrMissingEventType
	}
	fields, ok := v.required[eventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}

	for _, field := range fields {
		if isZero(doc[field]) {
			return fmt.Errorf("%w: %s.%s", ErrMissingField, eventType, field)
		}
	}
	return nil
}

func isZero(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case float64:
		return x == 0
	default:
		return false
	}
}
