package extract

import (
	"context"
	"strings"
)

// mockVocabulary seeds the offline extractor. Matching is whole-word and
// case-insensitive; multi-word terms are matched against the joined text.
var mockVocabulary = []string{
	"kubernetes",
	"docker",
	"terraform",
	"postgres",
	"redis",
	"kafka",
	"graphql",
	"react",
	"python",
	"golang",
	"microservices",
	"observability",
	"ci/cd",
	"machine learning",
	"incident response",
	"on-call",
	"testing",
	"migration",
}

// MockExtractor is a deterministic vocabulary matcher for local development
// and tests: no network, same input always yields the same output.
type MockExtractor struct {
	vocabulary []string
}

func NewMockExtractor() *MockExtractor {
	return &MockExtractor{vocabulary: mockVocabulary}
}

func (m *MockExtractor) Topics(ctx context.Context, text string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.match(text), nil
}

func (m *MockExtractor) Skills(ctx context.Context, text string) ([]Skill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matched := m.match(text)
	out := make([]Skill, 0, len(matched))
	for _, name := range matched {
		out = append(out, Skill{Name: name, Evidence: "mentioned verbatim", Confidence: 0.8})
	}
	return out, nil
}

func (m *MockExtractor) match(text string) []string {
	haystack := " " + strings.ToLower(strings.Join(strings.FieldsFunc(text, isWordBoundary), " ")) + " "
	var out []string
	for _, term := range m.vocabulary {
		if strings.Contains(haystack, " "+term+" ") {
			out = append(out, term)
		}
	}
	return out
}

func isWordBoundary(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', ',', '.', '!', '?', ';', ':', '(', ')', '"', '\'':
		return true
	}
	return false
}
