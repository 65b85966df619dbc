package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/docquery/ai"
	"github.com/poiesic/docquery/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ChatModel implements ai.ChatModel using OpenAI-compatible chat APIs.
type ChatModel struct {
	client llms.Model
	logger *slog.Logger
}

// newChatModel is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newChatModel(config *ai.Config) (*ChatModel, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Use "none" as token for local OpenAI-compatible services that don't require authentication
	token := config.Token
	if token == "" {
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(config.Host),
		openai.WithToken(token),
		openai.WithModel(config.ChatModel),
	)
	if err != nil {
		return nil, err
	}

	return &ChatModel{
		client: client,
		logger: slog.Default().With("component", "openai-chat"),
	}, nil
}

// NewChatModel creates a new chat model using the provided configuration.
//
// Returns ai.ChatModel interface to enforce abstraction.
func NewChatModel(config *ai.Config) (ai.ChatModel, error) {
	return newChatModel(config)
}

// Complete generates the full answer for the conversation.
func (c *ChatModel) Complete(ctx context.Context, messages []ai.Message) (string, error) {
	response, err := c.client.GenerateContent(ctx, toContent(messages))
	if err != nil {
		c.logger.Error("chat completion failed", "err", err)
		return "", fmt.Errorf("%w: %v", core.ErrChatService, err)
	}

	if len(response.Choices) < 1 {
		return "", fmt.Errorf("%w: no choices returned", core.ErrChatService)
	}

	return response.Choices[0].Content, nil
}

// Stream generates the answer incrementally, forwarding each fragment to fn.
func (c *ChatModel) Stream(ctx context.Context, messages []ai.Message, fn ai.StreamFunc) error {
	_, err := c.client.GenerateContent(ctx, toContent(messages),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			return fn(ctx, chunk)
		}))
	if err != nil {
		c.logger.Error("streaming chat completion failed", "err", err)
		return fmt.Errorf("%w: %v", core.ErrChatService, err)
	}
	return nil
}

// toContent converts docquery messages to the langchaingo representation.
func toContent(messages []ai.Message) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		var role llms.ChatMessageType
		switch m.Role {
		case ai.RoleSystem:
			role = llms.ChatMessageTypeSystem
		case ai.RoleAssistant:
			role = llms.ChatMessageTypeAI
		default:
			role = llms.ChatMessageTypeHuman
		}
		content = append(content, llms.MessageContent{
			Role:  role,
			Parts: []llms.ContentPart{llms.TextPart(m.Content)},
		})
	}
	return content
}
