package schedule

import (
	"context"
	"errors"
	"testing"

	"github.com/epartner/engine/internal/domain"
	"github.com/epartner/engine/internal/provider"
)

func TestDocGeneratorUsesQualityTier(t *testing.T) {
	var got provider.Request
	gen := NewDocGenerator(provider.Func(func(ctx context.Context, req provider.Request) (provider.Response, error) {
		got = req
		return provider.Response{Text: "doc body"}, nil
	}))

	content, err := gen.Generate(context.Background(), &domain.WorkItem{ID: "a"}, "assembled context")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if content != "doc body" {
		t.Errorf("content = %q", content)
	}
	if got.Tier != provider.TierQuality {
		t.Errorf("tier = %v, want quality", got.Tier)
	}
	if got.Prompt != "assembled context" {
		t.Errorf("prompt = %q", got.Prompt)
	}
}

func TestDocGeneratorPropagatesError(t *testing.T) {
	gen := NewDocGenerator(provider.Func(func(ctx context.Context, req provider.Request) (provider.Response, error) {
		return provider.Response{}, errors.New("provider down")
	}))

	if _, err := gen.Generate(context.Background(), &domain.WorkItem{ID: "a"}, ""); err == nil {
		t.Fatal("expected provider error to propagate")
	}
}
