package usecase

import (
	"testing"

	"github.com/satriahrh/kmfl/server/domain/repositories"
)

func TestTranscriptBuffer(t *testing.T) {
	tests := []struct {
		name   string
		events []repositories.TranscriptEvent
		want   string
	}{
		{
			name: "empty",
			want: "",
		},
		{
			name: "finals are joined",
			events: []repositories.TranscriptEvent{
				{Text: "kitne", IsFinal: true},
				{Text: " baje hain ", IsFinal: true},
			},
			want: "kitne baje hain",
		},
		{
			name: "interim used when no final arrived",
			events: []repositories.TranscriptEvent{
				{Text: "nam"},
				{Text: "namaste"},
			},
			want: "namaste",
		},
		{
			name: "finals win over trailing interim",
			events: []repositories.TranscriptEvent{
				{Text: "hello", IsFinal: true},
				{Text: "how"},
			},
			want: "hello",
		},
		{
			name: "blank fragments ignored",
			events: []repositories.TranscriptEvent{
				{Text: "   ", IsFinal: true},
				{Text: ""},
			},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b transcriptBuffer
			for _, e := range tt.events {
				b.Add(e)
			}
			if got := b.Text(); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}

			b.Reset()
			if got := b.Text(); got != "" {
				t.Errorf("Expected empty text after reset, got %q", got)
			}
		})
	}
}
