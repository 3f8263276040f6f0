package usecase

import (
	"context"

	"github.com/satriahrh/kmfl/server/domain/entities"
	"github.com/satriahrh/kmfl/server/internal/responder"
)

// Speaker plays an utterance and returns once playback finished or failed
type Speaker interface {
	Speak(ctx context.Context, utterance entities.Utterance) error
}

// EventSink receives everything the presentation layer renders
type EventSink interface {
	StatusChanged(state entities.AssistantState, message string)
	LogAppended(entry entities.LogEntry)
	LogCleared()
	SoundRequested(sound entities.SoundEffect, volume float64)
}

// LevelSampler publishes periodic microphone levels in the range 0..1
type LevelSampler interface {
	Levels() <-chan float64
	Suspend()
	Resume()
}

// Responder turns a transcript into a reply
type Responder interface {
	Respond(text string) responder.Reply
}
