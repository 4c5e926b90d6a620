// Package registry maps catalog family tags to their wire codecs.
package registry

import (
	"fmt"

	"github.com/dban0001/llmgateway/internal/providers"
	"github.com/dban0001/llmgateway/internal/providers/anthropic"
	"github.com/dban0001/llmgateway/internal/providers/google"
	"github.com/dban0001/llmgateway/internal/providers/mistral"
	"github.com/dban0001/llmgateway/internal/providers/openai"
)

var families = map[string]providers.Family{
	"openai":    openai.New(),
	"anthropic": anthropic.New(),
	"google":    google.New(),
	"mistral":   mistral.New(),
}

// FamilyFor returns the codec for a catalog family tag.
func FamilyFor(tag string) (providers.Family, error) {
	f, ok := families[tag]
	if !ok {
		return nil, fmt.Errorf("registry: unknown response family %q", tag)
	}
	return f, nil
}
