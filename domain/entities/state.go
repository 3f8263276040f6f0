package entities

// AssistantState is the phase of the conversation controller
type AssistantState string

const (
	StateIdle      AssistantState = "idle"
	StateListening AssistantState = "listening"
	StateThinking  AssistantState = "thinking"
	StateSpeaking  AssistantState = "speaking"
)

var transitions = map[AssistantState][]AssistantState{
	StateIdle:      {StateListening},
	StateListening: {StateThinking, StateIdle},
	StateThinking:  {StateSpeaking},
	StateSpeaking:  {StateIdle},
}

// CanTransition reports whether moving from s to next is a legal step
func (s AssistantState) CanTransition(next AssistantState) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is one of the known states
func (s AssistantState) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// SoundEffect names a short cue the client plays
type SoundEffect string

const (
	SoundWake SoundEffect = "wake"
	SoundEnd  SoundEffect = "end"
)
