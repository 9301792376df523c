package labeler

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash"

// GeminiProvider labels images through the Gemini API.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a provider using the given API key.
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Name() string {
	return geminiModel
}

// LabelImage returns object/scene labels for the image.
func (p *GeminiProvider) LabelImage(ctx context.Context, imageData []byte) ([]Label, error) {
	var resp labelResponse
	if err := p.generate(ctx, labelImagePrompt, imageData, &resp); err != nil {
		return nil, err
	}
	return resp.Labels, nil
}

// ExtractText returns text visible in the image.
func (p *GeminiProvider) ExtractText(ctx context.Context, imageData []byte) (string, error) {
	var resp textResponse
	if err := p.generate(ctx, extractTextPrompt, imageData, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

// generate sends the prompt+image request and unmarshals the JSON reply into
// out, retrying with parse-error feedback on malformed responses.
func (p *GeminiProvider) generate(ctx context.Context, prompt string, imageData []byte, out any) error {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{InlineData: &genai.Blob{Data: imageData, MIMEType: "image/jpeg"}},
			},
		},
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	return completeJSON(func(prevContent, feedback string) (string, error) {
		if feedback != "" {
			contents = append(contents,
				&genai.Content{
					Role:  "model",
					Parts: []*genai.Part{{Text: prevContent}},
				},
				&genai.Content{
					Role:  "user",
					Parts: []*genai.Part{{Text: feedback}},
				},
			)
		}

		result, err := p.client.Models.GenerateContent(ctx, geminiModel, contents, config)
		if err != nil {
			return "", fmt.Errorf("gemini API error: %w", err)
		}

		content := result.Text()
		if content == "" {
			return "", errors.New("no response from Gemini")
		}
		return content, nil
	}, out)
}
