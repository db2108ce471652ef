package schema

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{
			name:    "valid view event",
			payload: `{"eventType":"conversation.transcript.view","conversationId":"c1","timestamp":1}`,
		},
		{
			name:    "valid segment event",
			payload: `{"eventType":"conversation.segment.final","conversationId":"c1","speakerId":"p1","text":"bonjour","timestamp":1}`,
		},
		{
			name:    "missing event type",
			payload: `{"conversationId":"c1"}`,
			wantErr: ErrMissingEventType,
		},
		{
			name:    "unknown event type",
			payload: `{"eventType":"conversation.deleted"}`,
			wantErr: ErrUnknownEventType,
		},
		{
			name:    "segment without text",
			payload: `{"eventType":"conversation.segment.final","conversationId":"c1","speakerId":"p1","text":"","timestamp":1}`,
			wantErr: ErrMissingField,
		},
		{
			name:    "view without timestamp",
			payload: `{"eventType":"conversation.transcript.view","conversationId":"c1"}`,
			wantErr: ErrMissingField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate([]byte(tt.payload))
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRejectsNonObject(t *testing.T) {
	if err := New().Validate([]byte(`"just a string"`)); err == nil {
		t.Fatal("expected error for non-object payload")
	}
}
