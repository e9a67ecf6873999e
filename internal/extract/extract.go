// Package extract wraps the external classification services the interview
// engine consults each turn: open-topic extraction and skill/keyword
// extraction. Both are asynchronous, may fail, and may legitimately return
// nothing; callers own the timeout and the degraded-turn fallback.
package extract

import (
	"context"
	"fmt"
	"strings"
)

// Skill is one extracted skill/keyword mention.
type Skill struct {
	Name       string  `json:"name"`
	Evidence   string  `json:"evidence,omitempty"`
	Confidence float64 `json:"confidence"`
}

// TopicExtractor pulls candidate conversation topics out of free text.
// An empty result is a normal outcome, not an error.
type TopicExtractor interface {
	Topics(ctx context.Context, text string) ([]string, error)
}

// SkillExtractor pulls skill/keyword mentions out of free text.
type SkillExtractor interface {
	Skills(ctx context.Context, text string) ([]Skill, error)
}

// Config controls extractor construction.
type Config struct {
	Mode   string
	APIKey string
	Model  string
}

// New builds both extractors for the requested mode. "auto" prefers Gemini
// when an API key is configured and falls back to the deterministic mock.
func New(ctx context.Context, cfg Config) (TopicExtractor, SkillExtractor, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.APIKey) != "" {
			c, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
			if err != nil {
				return nil, nil, err
			}
			return c, c, nil
		}
		m := NewMockExtractor()
		return m, m, nil
	case "gemini":
		c, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	case "mock":
		m := NewMockExtractor()
		return m, m, nil
	default:
		return nil, nil, fmt.Errorf("unsupported extractor mode %q", cfg.Mode)
	}
}
