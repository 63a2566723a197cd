package rag

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"github.com/xaenox/rag-backend/internal/models"
	"go.uber.org/zap"
)

// OpenAIGenerator implements Generator with OpenAI chat completions.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *zap.Logger
}

func NewOpenAIGenerator(apiKey, model string, maxTokens int, temperature float64, logger *zap.Logger) *OpenAIGenerator {
	return &OpenAIGenerator{
		client:      openai.NewClient(apiKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      logger,
	}
}

func (g *OpenAIGenerator) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	request := openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		MaxTokens:   g.maxTokens,
		Temperature: float32(g.temperature),
	}
	for _, message := range messages {
		request.Messages = append(request.Messages, openai.ChatCompletionMessage{
			Role:    openAIRole(message.Role),
			Content: message.Content,
		})
	}

	resp, err := g.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		g.logger.Warn("Chat completion returned no choices", zap.String("model", g.model))
		return "", nil
	}

	return resp.Choices[0].Message.Content, nil
}

func openAIRole(role models.MessageRole) string {
	switch role {
	case models.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case models.RoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}
