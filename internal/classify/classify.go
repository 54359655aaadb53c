// Package classify wraps the OpenAI chat completion API as the intent
// classification service consumed by the flow resolver.
package classify

import (
	"context"
	"fmt"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"
)

// PromptSpec configures the classification call. It is loaded from a YAML
// file so the instruction text and sampling style can be tuned without a
// rebuild.
type PromptSpec struct {
	System string `yaml:"system"`
	Style  struct {
		Temperature float32 `yaml:"temperature"`
		MaxTokens   int     `yaml:"max_tokens"`
	} `yaml:"style"`
}

// LoadPromptSpec reads a prompt spec from path. An empty path yields the
// zero spec; callers fall back to their built-in instruction text.
func LoadPromptSpec(path string) (PromptSpec, error) {
	var spec PromptSpec
	if path == "" {
		return spec, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return spec, fmt.Errorf("read prompt spec: %w", err)
	}
	if err := yaml.Unmarshal(b, &spec); err != nil {
		return spec, fmt.Errorf("parse prompt spec: %w", err)
	}
	return spec, nil
}

// Client performs classification calls against OpenAI.
type Client struct {
	client  *openai.Client
	model   string
	spec    PromptSpec
	timeout time.Duration
}

func New(apiKey, model string, spec PromptSpec, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		client:  openai.NewClient(apiKey),
		model:   model,
		spec:    spec,
		timeout: timeout,
	}
}

// SystemPreamble returns the configured instruction text, empty when the
// spec did not set one.
func (c *Client) SystemPreamble() string { return c.spec.System }

// Classify sends the system prompt and utterance to the model and returns
// the raw response text. The call is bounded by the configured timeout; a
// timeout is reported as an ordinary error and is not retried.
func (c *Client) Classify(ctx context.Context, systemPrompt, utterance string) (string, error) {
	temperature := c.spec.Style.Temperature
	if temperature <= 0 {
		temperature = 0.1
	}
	maxTokens := c.spec.Style.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 50
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: utterance},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
