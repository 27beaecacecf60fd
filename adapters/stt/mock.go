package stt

import (
	"context"

	"go.uber.org/zap"

	"github.com/satriahrh/discute/domain"
	"github.com/satriahrh/discute/domain/repositories"
)

// MockSpeechToText returns canned transcriptions without calling a service
type MockSpeechToText struct {
	logger *zap.Logger
	// Text overrides the size-based transcription when set
	Text string
	Err  error
}

var _ repositories.SpeechToText = (*MockSpeechToText)(nil)

// NewMockSpeechToText creates a new mock speech-to-text service
func NewMockSpeechToText(logger *zap.Logger) *MockSpeechToText {
	return &MockSpeechToText{logger: logger}
}

// TranscribeAudio implements repositories.SpeechToText
func (s *MockSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	s.logger.Info("Processing mock speech-to-text",
		zap.Int("audioSize", len(audioData)),
		zap.String("encoding", config.Encoding))

	if len(audioData) == 0 {
		return "", domain.ErrNoAudio
	}
	if s.Err != nil {
		return "", s.Err
	}
	if s.Text != "" {
		return s.Text, nil
	}

	switch {
	case len(audioData) > 10000:
		return "Hello, I would like to talk about my day at work.", nil
	case len(audioData) > 1000:
		return "Hello, how are you?", nil
	default:
		return "Hi", nil
	}
}
