// Package genai generates assistant replies using the OpenAI API. It covers
// the chat messages that carry no tour intent; everything tour-shaped is
// handled by the tour engine before this package is consulted.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// SystemPrompt frames every generated reply. The onboarding question for
// first-time users is appended by the caller, not baked in here.
const SystemPrompt = "You are DONNA, a concise and friendly assistant for small business owners. " +
	"Answer in a few short sentences. If the user seems lost, suggest taking a product tour."

// ClientInterface defines the reply generation boundary so handlers can be
// tested with a mock.
type ClientInterface interface {
	GenerateReply(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// Client wraps the OpenAI chat completion API.
type Client struct {
	client openai.Client
	model  openai.ChatModel
}

// NewClient initializes a client from the OPENAI_API_KEY environment variable.
func NewClient() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	slog.Debug("Creating GenAI client")
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  openai.ChatModelGPT4oMini,
	}, nil
}

// GenerateReply produces one assistant reply for a user message.
func (c *Client) GenerateReply(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	if systemPrompt == "" {
		systemPrompt = SystemPrompt
	}
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userMessage),
		},
	})
	if err != nil {
		slog.Error("GenAI GenerateReply error", "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	reply := completion.Choices[0].Message.Content
	slog.Debug("GenAI GenerateReply succeeded", "replyLength", len(reply))
	return reply, nil
}
