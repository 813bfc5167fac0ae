// Package roadmap renders a learning roadmap from a learner profile and
// retrieved courses with a single chat completion.
package roadmap

import (
	"context"
	"strings"

	"github.com/garyellow/edu-advisor/internal/advisor"
	"github.com/garyellow/edu-advisor/internal/genai"
	"github.com/garyellow/edu-advisor/internal/logger"
	"github.com/garyellow/edu-advisor/internal/retrieval"
)

// FallbackMessage is returned when the completion fails.
const FallbackMessage = "Sorry, I couldn't generate the roadmap right now."

// Completer issues one chat completion.
type Completer interface {
	Complete(ctx context.Context, req genai.Request) (string, error)
}

// Generator builds the roadmap prompt and asks the model for the roadmap.
type Generator struct {
	llm    Completer
	logger *logger.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(llm Completer, log *logger.Logger) *Generator {
	return &Generator{llm: llm, logger: log.WithModule("roadmap")}
}

// Generate returns the formatted roadmap, or FallbackMessage on failure.
func (g *Generator) Generate(ctx context.Context, profile advisor.Profile, candidates []retrieval.Candidate) string {
	courses := Normalize(candidates)

	out, err := g.llm.Complete(ctx, genai.Request{
		System:    advisor.SystemPrompt,
		Messages:  []genai.Message{{Role: genai.RoleUser, Content: BuildPrompt(profile, courses)}},
		Operation: "roadmap",
	})
	if err != nil {
		g.logger.WithError(err).ErrorContext(ctx, "Roadmap generation failed", "courses", len(courses))
		return FallbackMessage
	}
	if strings.TrimSpace(out) == "" {
		g.logger.WarnContext(ctx, "Roadmap generation returned empty text", "courses", len(courses))
		return FallbackMessage
	}
	return out
}
