package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/satriahrh/discute/domain"
	"github.com/satriahrh/discute/domain/repositories"
)

const (
	openAIService      = "openai-tts"
	defaultOpenAIModel = openai.TTSModel1
	defaultOpenAIVoice = openai.VoiceAlloy
)

// OpenAIConfig configures the OpenAI speech endpoint adapter
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
	Speed   float64
}

// OpenAITTS implements TextToSpeech with the OpenAI audio/speech endpoint
type OpenAITTS struct {
	client *openai.Client
	model  openai.SpeechModel
	voice  openai.SpeechVoice
	speed  float64
	logger *zap.Logger
}

var (
	_ repositories.TextToSpeech = (*OpenAITTS)(nil)
	_ repositories.VoiceLister  = (*OpenAITTS)(nil)
)

// NewOpenAITTS creates a new OpenAI TTS instance
func NewOpenAITTS(config OpenAIConfig, logger *zap.Logger) (*OpenAITTS, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if config.Speed != 0 && (config.Speed < 0.25 || config.Speed > 4.0) {
		return nil, fmt.Errorf("speed must be between 0.25 and 4.0, got %f", config.Speed)
	}

	cfg := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}

	model := openai.SpeechModel(config.Model)
	if model == "" {
		model = defaultOpenAIModel
		logger.Info("Using default model ID", zap.String("modelID", string(model)))
	}
	voice := openai.SpeechVoice(config.Voice)
	if voice == "" {
		voice = defaultOpenAIVoice
		logger.Info("Using default voice ID", zap.String("voiceID", string(voice)))
	}

	return &OpenAITTS{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		voice:  voice,
		speed:  config.Speed,
		logger: logger,
	}, nil
}

// Synthesize converts text to MP3 speech
func (o *OpenAITTS) Synthesize(ctx context.Context, text, voiceID string) (repositories.Speech, error) {
	if strings.TrimSpace(text) == "" {
		return repositories.Speech{}, fmt.Errorf("text cannot be empty")
	}
	voice := o.voice
	if voiceID != "" {
		voice = openai.SpeechVoice(voiceID)
	}

	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          o.model,
		Input:          text,
		Voice:          voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          o.speed,
	})
	if err != nil {
		o.logger.Error("OpenAI speech request failed", zap.Error(err))
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return repositories.Speech{}, domain.NewServiceError(openAIService, domain.KindFromStatus(apiErr.HTTPStatusCode), err)
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return repositories.Speech{}, domain.NewServiceError(openAIService, domain.KindFromStatus(reqErr.HTTPStatusCode), err)
		}
		return repositories.Speech{}, domain.NewServiceError(openAIService, domain.ServiceKindNetwork, err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return repositories.Speech{}, domain.NewServiceError(openAIService, domain.ServiceKindNetwork, err)
	}
	if len(audio) == 0 {
		return repositories.Speech{}, domain.NewServiceError(openAIService, domain.ServiceKindInvalidResponse, errors.New("empty audio response"))
	}

	o.logger.Info("Synthesized speech", zap.String("voice", string(voice)), zap.Int("bytes", len(audio)))
	return repositories.Speech{Audio: audio, MIMEType: "audio/mpeg"}, nil
}

// ListVoices returns the fixed set of OpenAI voices
func (o *OpenAITTS) ListVoices(ctx context.Context) ([]repositories.Voice, error) {
	names := []openai.SpeechVoice{
		openai.VoiceAlloy, openai.VoiceAsh, openai.VoiceCoral, openai.VoiceEcho,
		openai.VoiceFable, openai.VoiceOnyx, openai.VoiceNova, openai.VoiceShimmer,
	}
	voices := make([]repositories.Voice, 0, len(names))
	for _, n := range names {
		voices = append(voices, repositories.Voice{ID: string(n), Name: string(n), Category: "premade"})
	}
	return voices, nil
}
