package schedule

import (
	"context"

	"github.com/epartner/engine/internal/domain"
	"github.com/epartner/engine/internal/provider"
)

const docSystemPrompt = "You are a systems engineering author. Write the complete " +
	"document described in the TASK section, consistent with the project facts and " +
	"the prerequisite documents provided. Output only the document body."

// NewDocGenerator returns a Generator that asks the quality tier for the full
// document text. The runner supplies the assembled prompt context.
func NewDocGenerator(model provider.Provider) Generator {
	return GeneratorFunc(func(ctx context.Context, item *domain.WorkItem, prior string) (string, error) {
		resp, err := model.Generate(ctx, provider.Request{
			Tier:   provider.TierQuality,
			System: docSystemPrompt,
			Prompt: prior,
		})
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	})
}
