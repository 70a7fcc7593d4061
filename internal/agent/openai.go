package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/imobflow/imobflow/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultOpenAIModel     = "gpt-4o-mini"
	DefaultOpenRouterModel = "openai/gpt-4o-mini"
	OpenRouterBaseURL      = "https://openrouter.ai/api/v1"
)

// OpenAIProvider talks to OpenAI or any OpenAI-compatible gateway.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider builds a provider from tenant settings. OpenRouter is
// reached through its OpenAI-compatible endpoint.
func NewOpenAIProvider(cfg models.AIConfig, timeout time.Duration) (*OpenAIProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("ai api key is required")
	}

	model := strings.TrimSpace(cfg.Model)
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	switch cfg.Provider {
	case "openrouter":
		if baseURL == "" {
			baseURL = OpenRouterBaseURL
		}
		if model == "" {
			model = DefaultOpenRouterModel
		}
	case "", "openai":
		if model == "" {
			model = DefaultOpenAIModel
		}
	default:
		return nil, fmt.Errorf("unsupported ai provider %q", cfg.Provider)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(2),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}

	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch {
		case m.Tool != nil:
			// tool results are stored as assistant entries; label them so the
			// model can tell them apart from its own replies
			messages = append(messages, openai.AssistantMessage(fmt.Sprintf("[resultado da ferramenta %s] %s", m.Tool.Name, m.Content)))
		case m.Role == models.MessageRoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		case m.Role == models.MessageRoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		default:
			messages = append(messages, openai.AssistantMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: messages,
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  openai.FunctionParameters(t.Parameters),
			},
		})
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyCompletion
	}

	msg := resp.Choices[0].Message
	completion := &Completion{}
	for _, call := range msg.ToolCalls {
		completion.ToolCalls = append(completion.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: decodeArguments(call.Function.Arguments),
		})
	}
	if len(completion.ToolCalls) == 0 {
		completion.Text = strings.TrimSpace(msg.Content)
	}
	return completion, nil
}

// decodeArguments parses the model's JSON arguments. Malformed JSON is
// passed through under "_raw" so the tool reports a useful error.
func decodeArguments(raw string) map[string]any {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{"_raw": raw}
	}
	return args
}
