package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"github.com/satriahrh/discute/domain"
	"github.com/satriahrh/discute/domain/repositories"
)

const (
	groqService            = "groq-chat"
	defaultGroqBaseURL     = "https://api.groq.com/openai/v1"
	defaultGroqModel       = "openai/gpt-oss-20b"
	defaultGroqTemperature = 0.7
	defaultGroqMaxTokens   = 1024
	defaultTimeoutSeconds  = 30
)

// GroqConfig configures the Groq chat completion client
type GroqConfig struct {
	// APIKey is the fallback key used when a request carries none
	APIKey         string
	BaseURL        string
	Model          string
	Temperature    float64
	MaxTokens      int64
	TimeoutSeconds int
}

// ValidateGroqConfig validates the configuration and fills in defaults
func ValidateGroqConfig(config *GroqConfig, logger *zap.Logger) error {
	if config.Temperature < 0 || config.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", config.Temperature)
	}
	if config.MaxTokens < 0 {
		return fmt.Errorf("max tokens must be positive, got %d", config.MaxTokens)
	}
	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}

	if config.BaseURL == "" {
		config.BaseURL = defaultGroqBaseURL
		logger.Info("Using default Groq base URL", zap.String("baseURL", config.BaseURL))
	}
	if config.Model == "" {
		config.Model = defaultGroqModel
		logger.Info("Using default Groq model", zap.String("model", config.Model))
	}
	if config.Temperature == 0 {
		config.Temperature = defaultGroqTemperature
		logger.Info("Using default temperature", zap.Float64("temperature", config.Temperature))
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = defaultGroqMaxTokens
		logger.Info("Using default maxTokens", zap.Int64("maxTokens", config.MaxTokens))
	}
	if config.TimeoutSeconds == 0 {
		config.TimeoutSeconds = defaultTimeoutSeconds
		logger.Info("Using default timeoutSeconds", zap.Int("timeoutSeconds", config.TimeoutSeconds))
	}
	return nil
}

// GroqLLM implements the LargeLanguageModel interface on Groq's
// OpenAI-compatible chat completions endpoint
type GroqLLM struct {
	client openai.Client
	config GroqConfig
	logger *zap.Logger
}

var _ repositories.LargeLanguageModel = (*GroqLLM)(nil)

// NewGroqLLM creates a new Groq LLM client
func NewGroqLLM(config GroqConfig, logger *zap.Logger) (*GroqLLM, error) {
	if err := ValidateGroqConfig(&config, logger); err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithBaseURL(config.BaseURL),
		option.WithMaxRetries(0),
	}
	if config.APIKey != "" {
		opts = append(opts, option.WithAPIKey(config.APIKey))
	}

	return &GroqLLM{
		client: openai.NewClient(opts...),
		config: config,
		logger: logger,
	}, nil
}

// Complete sends the rendered prompt as a single user message and returns the reply
func (g *GroqLLM) Complete(ctx context.Context, req repositories.CompletionRequest) (string, error) {
	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = g.config.APIKey
	}
	if apiKey == "" {
		return "", domain.NewServiceError(groqService, domain.ServiceKindAuth, domain.ErrMissingAPIKey)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(g.config.TimeoutSeconds)*time.Second)
	defer cancel()

	start := time.Now()
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: g.config.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		Temperature:         openai.Float(g.config.Temperature),
		MaxCompletionTokens: openai.Int(g.config.MaxTokens),
	}, option.WithAPIKey(apiKey))
	if err != nil {
		g.logger.Error("Groq chat completion failed", zap.Error(err))
		return "", classifyOpenAIError(groqService, err)
	}

	if len(resp.Choices) == 0 {
		return "", domain.NewServiceError(groqService, domain.ServiceKindInvalidResponse, errors.New("no choices in response"))
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", domain.NewServiceError(groqService, domain.ServiceKindInvalidResponse, errors.New("empty completion"))
	}

	g.logger.Info("Groq completion received",
		zap.String("model", g.config.Model),
		zap.Int("promptLength", len(req.Prompt)),
		zap.Int("responseLength", len(text)),
		zap.Duration("latency", time.Since(start)))

	return text, nil
}

func classifyOpenAIError(service string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return domain.NewServiceError(service, domain.KindFromStatus(apiErr.StatusCode), err)
	}
	return domain.NewServiceError(service, domain.ServiceKindNetwork, err)
}
