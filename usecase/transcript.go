package usecase

import (
	"strings"

	"github.com/satriahrh/kmfl/server/domain/repositories"
)

// transcriptBuffer accumulates one listening turn. Only the controller
// loop touches it.
type transcriptBuffer struct {
	finals      []string
	lastInterim string
}

func (b *transcriptBuffer) Add(event repositories.TranscriptEvent) {
	text := strings.TrimSpace(event.Text)
	if text == "" {
		return
	}
	if event.IsFinal {
		b.finals = append(b.finals, text)
		b.lastInterim = ""
		return
	}
	b.lastInterim = text
}

// Text joins the final fragments, falling back to the last interim one
func (b *transcriptBuffer) Text() string {
	joined := strings.TrimSpace(strings.Join(b.finals, " "))
	if joined == "" {
		return b.lastInterim
	}
	return joined
}

func (b *transcriptBuffer) Reset() {
	b.finals = nil
	b.lastInterim = ""
}
