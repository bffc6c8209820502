package pipeline

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// ModelCompleter generates answers through a Genkit-registered model.
type ModelCompleter struct {
	g         *genkit.Genkit
	model     ai.Model
	modelName string
}

// NewModelCompleter binds a resolved model into a Completer. Used when
// the model reference is already in hand, such as a registered mock.
func NewModelCompleter(g *genkit.Genkit, model ai.Model) *ModelCompleter {
	return &ModelCompleter{g: g, model: model}
}

// NewModelCompleterForName binds a model by its registry name, for
// example "googleai/gemini-2.5-flash". Resolution happens per call
// inside Genkit.
func NewModelCompleterForName(g *genkit.Genkit, modelName string) *ModelCompleter {
	return &ModelCompleter{g: g, modelName: modelName}
}

// Complete sends the rendered prompt as a single user turn and returns
// the model's text response.
func (c *ModelCompleter) Complete(ctx context.Context, promptText string) (string, error) {
	opts := []ai.GenerateOption{ai.WithPrompt(promptText)}
	if c.model != nil {
		opts = append(opts, ai.WithModel(c.model))
	} else {
		opts = append(opts, ai.WithModelName(c.modelName))
	}

	resp, err := genkit.Generate(ctx, c.g, opts...)
	if err != nil {
		return "", fmt.Errorf("model generation: %w", err)
	}
	return resp.Text(), nil
}
