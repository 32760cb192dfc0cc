package ai

import (
	"context"
	"encoding/base64"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// VisionClient asks a multimodal model to describe an image. The
// description is indexed next to any OCR text so charts and diagrams stay
// retrievable.
type VisionClient struct {
	client *openai.Client
	model  string
	prompt string
}

func NewVisionClient(apiKey, model, prompt string) *VisionClient {
	return &VisionClient{
		client: openai.NewClient(apiKey),
		model:  model,
		prompt: prompt,
	}
}

// Describe sends the image inline as a data URL and returns the model's
// description.
func (v *VisionClient) Describe(ctx context.Context, image []byte, mimeType string) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(image)
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, encoded)

	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     v.model,
		MaxTokens: 1000,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: v.prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("vision analysis failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("vision analysis returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
