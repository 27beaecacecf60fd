package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/discute/domain"
	"github.com/satriahrh/discute/domain/entities"
	"github.com/satriahrh/discute/domain/repositories"
)

// ChatService turns a session and its program into LLM requests
type ChatService struct {
	llm     repositories.LargeLanguageModel
	prompts *PromptManager
	logger  *zap.Logger
}

// NewChatService creates a new chat service
func NewChatService(llm repositories.LargeLanguageModel, prompts *PromptManager, logger *zap.Logger) *ChatService {
	return &ChatService{llm: llm, prompts: prompts, logger: logger}
}

// Respond renders the program with the conversation so far and returns the
// assistant's next line
func (s *ChatService) Respond(ctx context.Context, session *entities.Session, program *entities.Program, apiKey string) (string, error) {
	prompt, err := s.prompts.RenderPrompt(program, PromptVars{
		Context:     session.Context,
		ChatHistory: session.ChatHistory(),
	}, true)
	if err != nil {
		return "", err
	}

	s.logger.Debug("Requesting chat response",
		zap.String("sessionID", session.ID),
		zap.String("program", program.Name),
		zap.Int("turns", len(session.Turns)))

	return s.llm.Complete(ctx, repositories.CompletionRequest{Prompt: prompt, APIKey: apiKey})
}

// Review asks the level's coach to correct the conversation
func (s *ChatService) Review(ctx context.Context, session *entities.Session, apiKey string) (string, error) {
	if len(session.Turns) == 0 {
		return "", domain.ErrEmptyConversation
	}

	prompt, err := s.prompts.CoachPrompt(ctx, session.LevelCode, PromptVars{
		Context:      session.Context,
		Conversation: session.ChatHistory(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to build coach prompt: %w", err)
	}

	s.logger.Debug("Requesting conversation review",
		zap.String("sessionID", session.ID),
		zap.String("coach", CoachProgramName(session.LevelCode)))

	return s.llm.Complete(ctx, repositories.CompletionRequest{Prompt: prompt, APIKey: apiKey})
}
