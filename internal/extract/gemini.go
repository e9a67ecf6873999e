package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultModel = "gemini-2.5-flash"

const topicPrompt = `You label topics in interview answers.
List the distinct subjects the speaker raises in the text below.
Reply with a JSON array of short topic names (1-4 words each), nothing else.
Reply with [] if the text raises no identifiable subject.

Text:
%s`

const skillPrompt = `You extract skills and recurring keywords from interview answers.
For each skill, tool, or domain term the speaker mentions in the text below,
reply with a JSON array of objects {"name": string, "evidence": string,
"confidence": number between 0 and 1}, nothing else.
Reply with [] if there is nothing to extract.

Text:
%s`

// GeminiClient implements both extractors on the Gemini API.
type GeminiClient struct {
	client    *genai.Client
	modelName string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}
	return &GeminiClient{client: client, modelName: model}, nil
}

func (c *GeminiClient) Topics(ctx context.Context, text string) ([]string, error) {
	raw, err := c.generate(ctx, fmt.Sprintf(topicPrompt, text))
	if err != nil {
		return nil, err
	}
	return parseTopicList(raw)
}

func (c *GeminiClient) Skills(ctx context.Context, text string) ([]Skill, error) {
	raw, err := c.generate(ctx, fmt.Sprintf(skillPrompt, text))
	if err != nil {
		return nil, err
	}
	return parseSkillList(raw)
}

func (c *GeminiClient) Model() string {
	if c == nil {
		return ""
	}
	return c.modelName
}

func (c *GeminiClient) generate(ctx context.Context, prompt string) (string, error) {
	if c == nil || c.client == nil {
		return "", errors.New("gemini client is not initialized")
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.modelName, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if text := strings.TrimSpace(part.Text); text != "" {
				if builder.Len() > 0 {
					builder.WriteString("\n")
				}
				builder.WriteString(text)
			}
		}
	}
	return builder.String(), nil
}

// parseTopicList tolerates markdown fences and prose around the JSON array;
// models wrap replies that way often enough that strict parsing would turn
// healthy responses into degraded turns.
func parseTopicList(raw string) ([]string, error) {
	body, err := extractJSONArray(raw)
	if err != nil {
		return nil, err
	}
	var topics []string
	if err := json.Unmarshal([]byte(body), &topics); err != nil {
		return nil, fmt.Errorf("parse topic list: %w", err)
	}
	out := topics[:0]
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

func parseSkillList(raw string) ([]Skill, error) {
	body, err := extractJSONArray(raw)
	if err != nil {
		return nil, err
	}
	var skills []Skill
	if err := json.Unmarshal([]byte(body), &skills); err != nil {
		return nil, fmt.Errorf("parse skill list: %w", err)
	}
	out := skills[:0]
	for _, s := range skills {
		if s.Name = strings.TrimSpace(s.Name); s.Name != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func extractJSONArray(raw string) (string, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end < start {
		return "", fmt.Errorf("no JSON array in model reply %q", truncate(raw, 80))
	}
	return raw[start : end+1], nil
}

func truncate(s string, limit int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit]) + "..."
}
