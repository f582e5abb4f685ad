package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrAIUnavailable is returned when the OpenAI integration is not configured.
	ErrAIUnavailable = errors.New("openai integration is not configured")
)

// GenerationConfig carries the per-call sampling knobs from caller to gateway.
type GenerationConfig struct {
	Temperature float32
	MaxTokens   int
	// JSONOnly asks the service for a JSON-mode response. This biases the
	// model toward schema-conformant output but is not a hard guarantee; the
	// JSON extractor still validates.
	JSONOnly bool
	System   string
}

// Completer is the surface the pipeline needs from the generative service:
// prompt in, raw text out. Retry and repair policies live with the callers.
type Completer interface {
	Complete(ctx context.Context, prompt string, cfg GenerationConfig) (string, error)
}

// ImageGenerator produces an encoded visual for a prompt, or "" when no
// visual could be produced.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// GatewayService wraps all calls to the external generative service. It knows
// nothing about curricula: transport and configuration only.
type GatewayService struct {
	client     *openai.Client
	model      string
	imageModel string
}

func NewGatewayService(apiKey, model, apiEndpoint, imageModel string) *GatewayService {
	if apiKey == "" {
		return &GatewayService{}
	}

	cfg := openai.DefaultConfig(apiKey)
	if apiEndpoint != "" {
		cfg.BaseURL = apiEndpoint
	}

	return &GatewayService{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		imageModel: imageModel,
	}
}

func (s *GatewayService) disabled() bool {
	return s.client == nil || s.model == ""
}

// Complete sends one prompt and returns the raw response text. Errors are
// surfaced verbatim; recovery is the caller's policy.
func (s *GatewayService) Complete(ctx context.Context, prompt string, cfg GenerationConfig) (string, error) {
	if s.disabled() {
		return "", ErrAIUnavailable
	}

	req := openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: cfg.System,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	}
	if cfg.System == "" {
		req.Messages = req.Messages[1:]
	}
	if cfg.JSONOnly {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("request completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateImage asks the image service for a visual aid and returns it as a
// PNG data URI. An error means no visual; callers leave the module image
// absent rather than failing.
func (s *GatewayService) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if s.client == nil || s.imageModel == "" {
		return "", ErrAIUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	resp, err := s.client.CreateImage(ctx, openai.ImageRequest{
		Model:          s.imageModel,
		Prompt:         sanitizeForPrompt(prompt, 900),
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return "", fmt.Errorf("request image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return "", errors.New("image service returned no data")
	}
	return "data:image/png;base64," + resp.Data[0].B64JSON, nil
}

// ExtractTextFromImage routes an uploaded image through the model's
// multimodal input and returns the recognized text.
func (s *GatewayService) ExtractTextFromImage(ctx context.Context, mimeType string, data []byte) (string, error) {
	if s.disabled() {
		return "", ErrAIUnavailable
	}

	dataURI := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: "Please extract the text from this image. If there is no text, please say so.",
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: dataURI,
						},
					},
				},
			},
		},
		Temperature: 0.2,
		MaxTokens:   4096,
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("request image text: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
