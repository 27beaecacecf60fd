package tts

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/discute/domain/repositories"
)

// MockTextToSpeech returns a short silent WAV for any text
type MockTextToSpeech struct {
	mu     sync.Mutex
	logger *zap.Logger
	Err    error
	Calls  []string
}

var (
	_ repositories.TextToSpeech = (*MockTextToSpeech)(nil)
	_ repositories.VoiceLister  = (*MockTextToSpeech)(nil)
)

// NewMockTextToSpeech creates a new mock text-to-speech service
func NewMockTextToSpeech(logger *zap.Logger) *MockTextToSpeech {
	return &MockTextToSpeech{logger: logger}
}

// Synthesize implements repositories.TextToSpeech
func (m *MockTextToSpeech) Synthesize(ctx context.Context, text, voiceID string) (repositories.Speech, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, text)
	if m.Err != nil {
		return repositories.Speech{}, m.Err
	}
	if strings.TrimSpace(text) == "" {
		return repositories.Speech{}, fmt.Errorf("text cannot be empty")
	}

	m.logger.Info("Mock speech synthesized", zap.Int("textLength", len(text)), zap.String("voiceID", voiceID))
	return repositories.Speech{Audio: silentWAV(8000, 800), MIMEType: "audio/wav"}, nil
}

// ListVoices implements repositories.VoiceLister
func (m *MockTextToSpeech) ListVoices(ctx context.Context) ([]repositories.Voice, error) {
	return []repositories.Voice{{ID: "mock", Name: "Mock Voice", Category: "premade"}}, nil
}

// silentWAV builds a mono 16-bit PCM WAV of the given sample count
func silentWAV(sampleRate, samples int) []byte {
	dataLen := samples * 2
	buf := make([]byte, 44+dataLen)
	le32 := func(off int, v uint32) {
		buf[off], buf[off+1], buf[off+2], buf[off+3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	}
	le16 := func(off int, v uint16) {
		buf[off], buf[off+1] = byte(v), byte(v>>8)
	}
	copy(buf[0:], "RIFF")
	le32(4, uint32(36+dataLen))
	copy(buf[8:], "WAVEfmt ")
	le32(16, 16)
	le16(20, 1)
	le16(22, 1)
	le32(24, uint32(sampleRate))
	le32(28, uint32(sampleRate*2))
	le16(32, 2)
	le16(34, 16)
	copy(buf[36:], "data")
	le32(40, uint32(dataLen))
	return buf
}
