// Package describe asks a vision chat model for a short reflective
// description of an uploaded image.
package describe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

// APIKeyEnv is the credential key read from the describer bundle.
const APIKeyEnv = "OPENAI_API_KEY"

// DefaultSystemPrompt steers the model toward one overlooked detail.
const DefaultSystemPrompt = "Observe the photo and notice one single detail in the scene that might be overlooked. " +
	"Describe it concisely but in vivid detail. " +
	"The tone should be reflective, imaginative, and profound, while not overinterpreting the information the photo gives you. " +
	"Avoid a general summary of the scene, and instead zoom in on one thing and linger there, as if telling a story with your eyes. " +
	"Do not start the description by saying 'In this image...' or referring to the photo in any other way."

// DefaultUserPrompt accompanies the image.
const DefaultUserPrompt = "Can you describe something in this image?"

// ErrEmptyResponse is returned when the model produced no usable text.
var ErrEmptyResponse = errors.New("empty description")

// PromptConfig is the request shape sent for every image.
type PromptConfig struct {
	System      string
	User        string
	Model       string
	Temperature float32
	MaxTokens   int
}

// DefaultPromptConfig returns the prompt used when nothing is configured.
func DefaultPromptConfig() PromptConfig {
	return PromptConfig{
		System:      DefaultSystemPrompt,
		User:        DefaultUserPrompt,
		Model:       openai.GPT4o,
		Temperature: 1.0,
		MaxTokens:   150,
	}
}

func (p PromptConfig) withDefaults() PromptConfig {
	d := DefaultPromptConfig()
	if p.System == "" {
		p.System = d.System
	}
	if p.User == "" {
		p.User = d.User
	}
	if p.Model == "" {
		p.Model = d.Model
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = d.MaxTokens
	}
	return p
}

// Client describes images through the chat completions API.
type Client struct {
	api    *openai.Client
	prompt PromptConfig
}

// New creates a client. baseURL may be empty for the public endpoint.
func New(apiKey, baseURL string, prompt PromptConfig) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{
		api:    openai.NewClientWithConfig(cfg),
		prompt: prompt.withDefaults(),
	}
}

// Describe returns the trimmed first choice for the image at locator.
func (c *Client) Describe(ctx context.Context, locator string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.prompt.Model,
		Temperature: wireTemperature(c.prompt.Temperature),
		MaxTokens:   c.prompt.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.prompt.System},
			{Role: openai.ChatMessageRoleUser, Content: c.prompt.User},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: locator},
					},
				},
			},
		},
	}

	log.Debug().Str("model", req.Model).Str("locator", locator).Msg("Requesting description")

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// wireTemperature maps 0 to the smallest positive float32: the request
// omits a zero temperature and the API would apply its own default.
func wireTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}
