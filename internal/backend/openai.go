// Package backend implements the summarization model boundary on top of the
// OpenAI chat completions API.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"recapbot/internal/summarize"

	"github.com/sashabaranov/go-openai"
)

const channelSystemPrompt = `You summarize workplace chat conversations. You receive a JSON list of messages with authors and timestamps.

Produce a JSON object with these fields, all optional:
{
  "summary_by_everything": "one cohesive prose summary of the whole conversation",
  "summary_by_topics": {"topic name": "what was discussed", ...},
  "summary_by_bullets": ["key point", ...],
  "summary_by_summary": "one short paragraph"
}

Rules:
- Attribute decisions and questions to people by name
- Skip greetings and small talk
- Output JSON only, no other text`

const threadSystemPrompt = `You summarize workplace chat threads. You receive a JSON list of messages with authors and timestamps.

Produce a JSON object:
{
  "conversations": [{"thread_ts": "root timestamp", "summary": "what the thread covered and concluded"}]
}

Rules:
- One entry per thread
- Skip greetings and small talk
- Output JSON only, no other text`

// OpenAI calls the chat completions API and parses the shaped summary
// response. It satisfies summarize.Backend.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(apiKey, model string) *OpenAI {
	return &OpenAI{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (o *OpenAI) SummarizeChannel(ctx context.Context, records []summarize.ModelRecord, channelName string) (*summarize.BackendResponse, error) {
	userPrompt, err := buildUserPrompt(records, channelName)
	if err != nil {
		return nil, err
	}
	return o.complete(ctx, channelSystemPrompt, userPrompt)
}

func (o *OpenAI) SummarizeMessages(ctx context.Context, records []summarize.ModelRecord) (*summarize.BackendResponse, error) {
	userPrompt, err := buildUserPrompt(records, "")
	if err != nil {
		return nil, err
	}
	return o.complete(ctx, threadSystemPrompt, userPrompt)
}

func (o *OpenAI) complete(ctx context.Context, systemPrompt, userPrompt string) (*summarize.BackendResponse, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		if isModerationError(err) {
			return nil, fmt.Errorf("backend rejected request: %w", summarize.ErrModerationViolation)
		}
		return nil, fmt.Errorf("backend call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("backend returned no choices")
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return nil, fmt.Errorf("backend filtered response: %w", summarize.ErrModerationViolation)
	}

	content := cleanJSONResponse(choice.Message.Content)

	var parsed summarize.BackendResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse backend response: %w, content: %s", err, content)
	}

	return &parsed, nil
}

func buildUserPrompt(records []summarize.ModelRecord, channelName string) (string, error) {
	payload, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("failed to marshal records: %w", err)
	}

	if channelName != "" {
		return fmt.Sprintf("Channel: %s\nMessages:\n%s", channelName, payload), nil
	}
	return fmt.Sprintf("Messages:\n%s", payload), nil
}

// isModerationError recognizes API-level content policy rejections.
func isModerationError(err error) bool {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if code, ok := apiErr.Code.(string); ok && code == "content_filter" {
		return true
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "content management policy")
}

// cleanJSONResponse strips markdown code fences models wrap around JSON.
func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
