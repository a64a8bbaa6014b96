package processing

import (
	"context"
	"fmt"
)

// Options selects and configures a Generator.
type Options struct {
	Provider     string // openai, gemini or none
	OpenAIAPIKey string
	OpenAIModel  string
	GeminiAPIKey string
	GeminiModel  string
}

// New returns the Generator named by opts.Provider.
func New(ctx context.Context, opts Options) (Generator, error) {
	switch opts.Provider {
	case "", "openai":
		return NewOpenAIGenerator(opts.OpenAIAPIKey, opts.OpenAIModel)
	case "gemini":
		return NewGeminiGenerator(ctx, opts.GeminiAPIKey, opts.GeminiModel)
	case "none":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown content provider %q", opts.Provider)
	}
}
