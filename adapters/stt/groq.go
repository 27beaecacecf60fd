package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/satriahrh/discute/domain"
	"github.com/satriahrh/discute/domain/repositories"
)

const (
	groqService           = "groq-whisper"
	defaultGroqBaseURL    = "https://api.groq.com/openai/v1"
	defaultWhisperModel   = "whisper-large-v3-turbo"
	defaultLanguage       = "en"
	defaultTimeoutSeconds = 60
)

// WhisperConfig configures the Whisper transcription client
type WhisperConfig struct {
	// APIKey is the fallback key used when a request carries none
	APIKey         string
	BaseURL        string
	Model          string
	Language       string
	TimeoutSeconds int
}

// ValidateWhisperConfig validates the configuration and fills in defaults
func ValidateWhisperConfig(config *WhisperConfig, logger *zap.Logger) error {
	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultGroqBaseURL
		logger.Info("Using default Whisper base URL", zap.String("baseURL", config.BaseURL))
	}
	if config.Model == "" {
		config.Model = defaultWhisperModel
		logger.Info("Using default Whisper model", zap.String("model", config.Model))
	}
	if config.Language == "" {
		config.Language = defaultLanguage
		logger.Info("Using default language", zap.String("language", config.Language))
	}
	if config.TimeoutSeconds == 0 {
		config.TimeoutSeconds = defaultTimeoutSeconds
		logger.Info("Using default timeoutSeconds", zap.Int("timeoutSeconds", config.TimeoutSeconds))
	}
	return nil
}

// WhisperSpeechToText transcribes audio through an OpenAI-compatible
// transcription endpoint, Groq by default
type WhisperSpeechToText struct {
	config WhisperConfig
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*WhisperSpeechToText)(nil)

// NewWhisperSpeechToText creates a new Whisper transcription adapter
func NewWhisperSpeechToText(config WhisperConfig, logger *zap.Logger) (*WhisperSpeechToText, error) {
	if err := ValidateWhisperConfig(&config, logger); err != nil {
		return nil, err
	}
	return &WhisperSpeechToText{config: config, logger: logger}, nil
}

func (w *WhisperSpeechToText) client(apiKey string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = w.config.BaseURL
	return openai.NewClientWithConfig(cfg)
}

// TranscribeAudio sends the recorded turn as a single file upload
func (w *WhisperSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	if len(audioData) == 0 {
		return "", domain.ErrNoAudio
	}

	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = w.config.APIKey
	}
	if apiKey == "" {
		return "", domain.NewServiceError(groqService, domain.ServiceKindAuth, domain.ErrMissingAPIKey)
	}

	language := config.Language
	if language == "" {
		language = w.config.Language
	}
	// ISO-639-1 only, "en-US" becomes "en"
	if i := strings.IndexAny(language, "-_"); i > 0 {
		language = language[:i]
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(w.config.TimeoutSeconds)*time.Second)
	defer cancel()

	resp, err := w.client(apiKey).CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.config.Model,
		FilePath: "turn." + fileExtension(config.Encoding),
		Reader:   bytes.NewReader(audioData),
		Language: language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		w.logger.Error("Whisper transcription failed", zap.Error(err))
		return "", classifyGoOpenAIError(groqService, err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", domain.NewServiceError(groqService, domain.ServiceKindInvalidResponse, errors.New("no speech detected in audio"))
	}

	w.logger.Info("Transcription completed",
		zap.String("model", w.config.Model),
		zap.Int("audioSize", len(audioData)),
		zap.Int("textLength", len(text)))
	return text, nil
}

func fileExtension(encoding string) string {
	switch strings.ToUpper(encoding) {
	case "FLAC":
		return "flac"
	case "MP3":
		return "mp3"
	case "OGG_OPUS":
		return "ogg"
	case "WEBM_OPUS", "WEBM":
		return "webm"
	default:
		return "wav"
	}
}

func classifyGoOpenAIError(service string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return domain.NewServiceError(service, domain.KindFromStatus(apiErr.HTTPStatusCode), err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return domain.NewServiceError(service, domain.KindFromStatus(reqErr.HTTPStatusCode), err)
	}
	return domain.NewServiceError(service, domain.ServiceKindNetwork, err)
}
