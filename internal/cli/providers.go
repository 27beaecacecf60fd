package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/discute/adapters/llm"
	"github.com/satriahrh/discute/adapters/memory"
	"github.com/satriahrh/discute/adapters/redis"
	"github.com/satriahrh/discute/adapters/stt"
	"github.com/satriahrh/discute/adapters/tts"
	"github.com/satriahrh/discute/domain/repositories"
	"github.com/satriahrh/discute/internal/config"
)

// closers collects resources to release on shutdown, last opened first
type closers []io.Closer

func (c closers) Close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i].Close()
	}
}

func newLanguageModel(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (repositories.LargeLanguageModel, error) {
	switch cfg.Provider {
	case "groq":
		return llm.NewGroqLLM(llm.GroqConfig{
			APIKey:         cfg.GroqAPIKey,
			BaseURL:        cfg.GroqBaseURL,
			Model:          cfg.GroqModel,
			Temperature:    cfg.Temperature,
			MaxTokens:      cfg.MaxTokens,
			TimeoutSeconds: cfg.TimeoutSeconds,
		}, logger)
	case "gemini":
		return llm.NewGeminiLLM(ctx, llm.GeminiConfig{
			APIKey:          cfg.GeminiAPIKey,
			Model:           cfg.GeminiModel,
			Temperature:     float32(min(cfg.Temperature, 1)),
			MaxOutputTokens: int(cfg.MaxTokens),
			TimeoutSeconds:  cfg.TimeoutSeconds,
		}, logger)
	case "mock":
		logger.Warn("Using mock LLM, replies are canned")
		return llm.NewMockLLM("That sounds great! Tell me more."), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// newSpeechToText returns the recognizer and, for gRPC clients, its closer
func newSpeechToText(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.SpeechToText, io.Closer, error) {
	switch cfg.STT.Provider {
	case "groq":
		whisper, err := stt.NewWhisperSpeechToText(stt.WhisperConfig{
			APIKey:         cfg.LLM.GroqAPIKey,
			BaseURL:        cfg.LLM.GroqBaseURL,
			Model:          cfg.STT.WhisperModel,
			Language:       whisperLanguage(cfg.Sessions.Language),
			TimeoutSeconds: cfg.STT.TimeoutSeconds,
		}, logger)
		return whisper, nil, err
	case "google":
		google, err := stt.NewGoogleSpeechToText(ctx, stt.GoogleConfig{
			CredentialsFile: cfg.STT.GoogleCredentials,
			Model:           cfg.STT.GoogleModel,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return google, google, nil
	case "mock":
		logger.Warn("Using mock speech-to-text, transcriptions are canned")
		return stt.NewMockSpeechToText(logger), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown stt provider %q", cfg.STT.Provider)
	}
}

// whisperLanguage turns a BCP-47 tag such as en-US into Whisper's ISO-639-1 code
func whisperLanguage(tag string) string {
	lang, _, _ := strings.Cut(tag, "-")
	return strings.ToLower(lang)
}

func newTextToSpeech(cfg config.TTSConfig, logger *zap.Logger) (repositories.TextToSpeech, error) {
	switch cfg.Provider {
	case "elevenlabs":
		return tts.NewElevenLabsTTS(tts.ElevenLabsConfig{
			APIKey:       cfg.ElevenLabsAPIKey,
			VoiceID:      cfg.VoiceID,
			ModelID:      cfg.ModelID,
			OutputFormat: cfg.OutputFormat,
			Timeout:      cfg.Timeout,
		}, logger)
	case "openai":
		return tts.NewOpenAITTS(tts.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Voice:  cfg.OpenAIVoice,
		}, logger)
	case "mock":
		logger.Warn("Using mock text-to-speech, replies are silent")
		return tts.NewMockTextToSpeech(logger), nil
	default:
		return nil, fmt.Errorf("unknown tts provider %q", cfg.Provider)
	}
}

// newSessionStores returns the session and audio stores of the configured backend
func newSessionStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.SessionRepository, repositories.AudioStore, io.Closer, error) {
	switch cfg.Sessions.Backend {
	case "memory":
		return memory.NewSessionRepository(), memory.NewAudioStore(), nil, nil
	case "redis":
		client, err := redis.NewClient(ctx, redis.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Sessions.MaxIdle,
		}, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return redis.NewSessionRepository(client, logger), redis.NewAudioStore(client), client, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown session backend %q", cfg.Sessions.Backend)
	}
}
