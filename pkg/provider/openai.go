package provider

import (
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
)

// OpenAIProvider implements Provider for OpenAI
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// OpenStream starts a streaming chat completion call
func (p *OpenAIProvider) OpenStream(ctx context.Context, req Request) (Stream, error) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, p.buildParams(req))
	return &openaiStream{stream: stream}, nil
}

// Complete makes a one-shot call and returns the full reply text
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	response, err := p.client.Chat.Completions.New(ctx, p.buildParams(req))
	if err != nil {
		return "", err
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices returned")
	}
	return response.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) buildParams(req Request) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)

	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}

	for _, turn := range req.History {
		switch turn.Role {
		case RoleUser:
			messages = append(messages, openai.UserMessage(turn.Content))
		case RoleModel:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		}
	}

	// The in-flight prompt is passed separately from the history
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}

	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	return params
}

// openaiStream adapts the SDK chunk stream to the Stream interface
type openaiStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
}

// Recv returns the next text fragment, skipping empty deltas
func (s *openaiStream) Recv() (string, error) {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}

	if err := s.stream.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// Close releases the underlying SSE connection
func (s *openaiStream) Close() error {
	return s.stream.Close()
}
