package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/satriahrh/kmfl/server/domain/repositories"
)

// GoogleSpeechToText implements SpeechToText for Google Cloud
type GoogleSpeechToText struct {
	client *speech.Client
	logger *zap.Logger
}

// NewGoogleSpeechToText creates a recognizer sharing one client across streams
func NewGoogleSpeechToText(ctx context.Context, logger *zap.Logger) (*GoogleSpeechToText, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &GoogleSpeechToText{client: client, logger: logger}, nil
}

// Close releases the underlying client
func (g *GoogleSpeechToText) Close() error {
	return g.client.Close()
}

func (g *GoogleSpeechToText) InitTranscribeStreaming(ctx context.Context, config repositories.AudioConfig) (repositories.SpeechToTextStreaming, error) {
	encoding, err := getAudioEncoding(config.Encoding)
	if err != nil {
		return nil, err
	}

	stream, err := g.client.StreamingRecognize(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming recognize: %w", classifyRecvError(ctx, err))
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: streamingConfig(config, encoding),
		},
	}); err != nil {
		stream.CloseSend()
		return nil, fmt.Errorf("failed to send streaming config: %w", err)
	}

	s := &GoogleSpeechToTextStream{
		stream: stream,
		ctx:    ctx,
		events: make(chan repositories.TranscriptEvent, 16),
		logger: g.logger.With(zap.String("language", config.Language)),
	}
	go s.receiveResults()

	return s, nil
}

func streamingConfig(config repositories.AudioConfig, encoding speechpb.RecognitionConfig_AudioEncoding) *speechpb.StreamingRecognitionConfig {
	return &speechpb.StreamingRecognitionConfig{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   encoding,
			SampleRateHertz:            int32(config.SampleRate),
			LanguageCode:               config.Language,
			EnableAutomaticPunctuation: config.Continuous,
		},
		InterimResults:  config.InterimResults,
		SingleUtterance: !config.Continuous,
	}
}

// GoogleSpeechToTextStream is one live StreamingRecognize call
type GoogleSpeechToTextStream struct {
	stream speechpb.Speech_StreamingRecognizeClient
	ctx    context.Context
	events chan repositories.TranscriptEvent
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

func (g *GoogleSpeechToTextStream) Stream(data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return errors.New("stream already ended")
	}
	if len(data) == 0 {
		return nil
	}

	if err := g.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: data,
		},
	}); err != nil {
		return fmt.Errorf("failed to send audio data: %w", err)
	}
	return nil
}

func (g *GoogleSpeechToTextStream) Events() <-chan repositories.TranscriptEvent {
	return g.events
}

func (g *GoogleSpeechToTextStream) End() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true

	if err := g.stream.CloseSend(); err != nil {
		return fmt.Errorf("failed to close send stream: %w", err)
	}
	return nil
}

func (g *GoogleSpeechToTextStream) receiveResults() {
	defer close(g.events)

	for {
		resp, err := g.stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			err = classifyRecvError(g.ctx, err)
			if errors.Is(err, repositories.ErrRecognitionAborted) {
				g.logger.Debug("Recognition stream cancelled")
			} else {
				g.logger.Warn("Recognition stream failed", zap.Error(err))
			}
			g.emit(repositories.TranscriptEvent{Err: err})
			return
		}

		for _, event := range toEvents(resp) {
			if !g.emit(event) {
				return
			}
		}
	}
}

func (g *GoogleSpeechToTextStream) emit(event repositories.TranscriptEvent) bool {
	select {
	case g.events <- event:
		return true
	case <-g.ctx.Done():
		return false
	}
}

// toEvents keeps the best alternative of every result in a response
func toEvents(resp *speechpb.StreamingRecognizeResponse) []repositories.TranscriptEvent {
	if resp.GetError() != nil {
		return []repositories.TranscriptEvent{{
			Err: fmt.Errorf("recognition error: %s", resp.GetError().GetMessage()),
		}}
	}

	var events []repositories.TranscriptEvent
	for _, result := range resp.GetResults() {
		alternatives := result.GetAlternatives()
		if len(alternatives) == 0 {
			continue
		}
		text := strings.TrimSpace(alternatives[0].GetTranscript())
		if text == "" {
			continue
		}
		events = append(events, repositories.TranscriptEvent{
			Text:    text,
			IsFinal: result.GetIsFinal(),
		})
	}
	return events
}

func classifyRecvError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", repositories.ErrRecognitionAborted, err)
	}
	switch status.Code(err) {
	case codes.Canceled:
		return fmt.Errorf("%w: %w", repositories.ErrRecognitionAborted, err)
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %w", repositories.ErrRecognitionUnavailable, err)
	default:
		return fmt.Errorf("failed to receive response: %w", err)
	}
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch strings.ToUpper(encoding) {
	case "WAV", "LINEAR16", "PCM16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
