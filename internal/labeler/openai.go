package labeler

import (
	"context"
	_ "embed"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

//go:embed prompts/label_image.txt
var labelImagePrompt string

//go:embed prompts/extract_text.txt
var extractTextPrompt string

const chatModel = openai.ChatModelGPT4_1Mini

// OpenAIProvider labels images through the OpenAI chat completions API.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates a provider using the given API key.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{client: &client}
}

func (p *OpenAIProvider) Name() string {
	return chatModel
}

// LabelImage returns object/scene labels for the image.
func (p *OpenAIProvider) LabelImage(ctx context.Context, imageData []byte) ([]Label, error) {
	var resp labelResponse
	if err := p.complete(ctx, labelImagePrompt, imageData, &resp); err != nil {
		return nil, err
	}
	return resp.Labels, nil
}

// ExtractText returns text visible in the image.
func (p *OpenAIProvider) ExtractText(ctx context.Context, imageData []byte) (string, error) {
	var resp textResponse
	if err := p.complete(ctx, extractTextPrompt, imageData, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

// complete sends the prompt+image request and unmarshals the JSON reply into
// out, retrying with parse-error feedback on malformed responses.
func (p *OpenAIProvider) complete(ctx context.Context, systemPrompt string, imageData []byte, out any) error {
	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(imageData)

	messages := []openai.ChatCompletionMessageParamUnion{
		{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(systemPrompt),
				},
			},
		},
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
						openai.TextContentPart("Analyze this photo."),
						openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
							URL:    imageURL,
							Detail: "low",
						}),
					},
				},
			},
		},
	}

	return completeJSON(func(prevContent, feedback string) (string, error) {
		if feedback != "" {
			messages = append(messages,
				openai.ChatCompletionMessageParamUnion{
					OfAssistant: &openai.ChatCompletionAssistantMessageParam{
						Content: openai.ChatCompletionAssistantMessageParamContentUnion{
							OfString: openai.String(prevContent),
						},
					},
				},
				openai.ChatCompletionMessageParamUnion{
					OfUser: &openai.ChatCompletionUserMessageParam{
						Content: openai.ChatCompletionUserMessageParamContentUnion{
							OfString: openai.String(feedback),
						},
					},
				},
			)
		}

		resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:    chatModel,
			Messages: messages,
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			},
			MaxTokens: openai.Int(500),
		})
		if err != nil {
			return "", fmt.Errorf("OpenAI API error: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("no response from OpenAI")
		}
		return resp.Choices[0].Message.Content, nil
	}, out)
}
