package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/discute/domain"
	"github.com/satriahrh/discute/domain/repositories"
)

const (
	geminiService          = "gemini"
	defaultGeminiModel     = "gemini-2.0-flash"
	defaultGeminiTopP      = 0.95
	defaultGeminiMaxTokens = 1024
)

// GeminiConfig configures the Gemini alternative LLM backend
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	TopP            float32
	MaxOutputTokens int
	TimeoutSeconds  int
}

// ValidateGeminiConfig validates the GeminiConfig and fills in defaults
func ValidateGeminiConfig(config *GeminiConfig, logger *zap.Logger) error {
	if config.APIKey == "" {
		return fmt.Errorf("Google AI API key is required")
	}
	if config.Temperature < 0 || config.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", config.Temperature)
	}
	if config.TopP < 0 || config.TopP > 1 {
		return fmt.Errorf("topP must be between 0 and 1, got %f", config.TopP)
	}
	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}

	if config.Model == "" {
		config.Model = defaultGeminiModel
		logger.Info("Using default model", zap.String("model", config.Model))
	}
	if config.Temperature == 0 {
		config.Temperature = float32(defaultGroqTemperature)
		logger.Info("Using default temperature", zap.Float32("temperature", config.Temperature))
	}
	if config.TopP == 0 {
		config.TopP = defaultGeminiTopP
		logger.Info("Using default topP", zap.Float32("topP", config.TopP))
	}
	if config.MaxOutputTokens == 0 {
		config.MaxOutputTokens = defaultGeminiMaxTokens
		logger.Info("Using default maxOutputTokens", zap.Int("maxOutputTokens", config.MaxOutputTokens))
	}
	if config.TimeoutSeconds == 0 {
		config.TimeoutSeconds = defaultTimeoutSeconds
		logger.Info("Using default timeoutSeconds", zap.Int("timeoutSeconds", config.TimeoutSeconds))
	}
	return nil
}

// GeminiLLM implements the LargeLanguageModel interface using Google's Gemini API
type GeminiLLM struct {
	client *genai.Client
	config GeminiConfig
	logger *zap.Logger
}

var _ repositories.LargeLanguageModel = (*GeminiLLM)(nil)

// NewGeminiLLM creates a new Gemini LLM instance
func NewGeminiLLM(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiLLM, error) {
	if err := ValidateGeminiConfig(&config, logger); err != nil {
		return nil, err
	}

	client, err := newGeminiClient(ctx, config.APIKey)
	if err != nil {
		return nil, err
	}

	return &GeminiLLM{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

func newGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// Complete generates a reply for the rendered prompt
func (g *GeminiLLM) Complete(ctx context.Context, req repositories.CompletionRequest) (string, error) {
	client := g.client
	if req.APIKey != "" && req.APIKey != g.config.APIKey {
		c, err := newGeminiClient(ctx, req.APIKey)
		if err != nil {
			return "", domain.NewServiceError(geminiService, domain.ServiceKindAuth, err)
		}
		client = c
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(g.config.TimeoutSeconds)*time.Second)
	defer cancel()

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.config.Temperature),
		TopP:            genai.Ptr(g.config.TopP),
		MaxOutputTokens: int32(g.config.MaxOutputTokens),
	}

	response, err := client.Models.GenerateContent(ctx, g.config.Model, contents, config)
	if err != nil {
		err = classifyGeminiError(err)
		g.logger.Error("Gemini completion failed", zap.Error(err))
		return "", err
	}

	text := strings.TrimSpace(response.Text())
	if text == "" {
		return "", domain.NewServiceError(geminiService, domain.ServiceKindInvalidResponse, errors.New("no content generated"))
	}

	g.logger.Info("Gemini completion received",
		zap.String("model", g.config.Model),
		zap.Int("responseLength", len(text)))

	return text, nil
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return domain.NewServiceError(geminiService, domain.KindFromStatus(apiErr.Code), err)
	}
	return domain.NewServiceError(geminiService, domain.ServiceKindNetwork, err)
}
