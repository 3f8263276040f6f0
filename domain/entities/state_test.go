package entities

import (
	"testing"
	"time"
)

func TestAssistantStateTransitions(t *testing.T) {
	tests := []struct {
		from AssistantState
		to   AssistantState
		want bool
	}{
		{StateIdle, StateListening, true},
		{StateIdle, StateThinking, false},
		{StateIdle, StateSpeaking, false},
		{StateListening, StateThinking, true},
		{StateListening, StateIdle, true},
		{StateListening, StateSpeaking, false},
		{StateThinking, StateSpeaking, true},
		{StateThinking, StateIdle, false},
		{StateSpeaking, StateIdle, true},
		{StateSpeaking, StateListening, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAssistantStateValid(t *testing.T) {
	if !StateSpeaking.Valid() {
		t.Error("speaking should be a valid state")
	}
	if AssistantState("dreaming").Valid() {
		t.Error("dreaming should not be a valid state")
	}
}

func TestSettingsValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{name: "defaults", mutate: func(s *Settings) {}, wantErr: false},
		{name: "shortest timeout", mutate: func(s *Settings) { s.SilenceTimeout = time.Second }, wantErr: false},
		{name: "longest timeout", mutate: func(s *Settings) { s.SilenceTimeout = 10 * time.Second }, wantErr: false},
		{name: "timeout too short", mutate: func(s *Settings) { s.SilenceTimeout = 500 * time.Millisecond }, wantErr: true},
		{name: "timeout too long", mutate: func(s *Settings) { s.SilenceTimeout = 11 * time.Second }, wantErr: true},
		{name: "muted", mutate: func(s *Settings) { s.Volume = 0 }, wantErr: false},
		{name: "negative volume", mutate: func(s *Settings) { s.Volume = -0.1 }, wantErr: true},
		{name: "volume above one", mutate: func(s *Settings) { s.Volume = 1.5 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			if err := s.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
