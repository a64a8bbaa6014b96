package processing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiGenerator writes copy with Gemini JSON mode.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (Copy, error) {
	contents := []*genai.Content{
		{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: buildPrompt(req)}},
		},
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, copyConfig())
	if err != nil {
		return Copy{}, fmt.Errorf("gemini generate: %w", err)
	}
	if result == nil {
		return Copy{}, fmt.Errorf("no response from Gemini")
	}

	return parseCopy(result.Text())
}

// copyConfig requests JSON output shaped by a typed genai schema.
func copyConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"caption": {
					Type:        genai.TypeString,
					Description: "The post caption, ready to publish, without hashtags",
				},
				"hashtags": {
					Type:        genai.TypeArray,
					Items:       &genai.Schema{Type: genai.TypeString},
					Description: "Three to six relevant hashtags without the leading #",
				},
			},
			Required:         []string{"caption", "hashtags"},
			PropertyOrdering: []string{"caption", "hashtags"},
		},
	}
}

// parseCopy decodes a JSON copy payload, tolerating a fenced code block.
func parseCopy(raw string) (Copy, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var out Copy
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &out); err != nil {
		return Copy{}, fmt.Errorf("failed to parse Gemini JSON response: %w", err)
	}
	return normalize(out), nil
}
