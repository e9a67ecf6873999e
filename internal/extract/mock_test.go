package extract

import (
	"context"
	"reflect"
	"testing"
)

func TestMockExtractorMatchesWholeWords(t *testing.T) {
	m := NewMockExtractor()
	ctx := context.Background()

	got, err := m.Topics(ctx, "We run Kubernetes and Docker, plus some dockerized jobs.")
	if err != nil {
		t.Fatalf("Topics() error = %v", err)
	}
	want := []string{"kubernetes", "docker"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("topics = %v, want %v (no partial-word matches)", got, want)
	}
}

func TestMockExtractorMultiWordTerms(t *testing.T) {
	m := NewMockExtractor()
	got, err := m.Topics(context.Background(), "Mostly machine learning work and incident response.")
	if err != nil {
		t.Fatalf("Topics() error = %v", err)
	}
	want := []string{"machine learning", "incident response"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("topics = %v, want %v", got, want)
	}
}

func TestMockExtractorDeterministic(t *testing.T) {
	m := NewMockExtractor()
	ctx := context.Background()
	const text = "Postgres, Redis, and Kafka glued together with Terraform."

	first, err := m.Topics(ctx, text)
	if err != nil {
		t.Fatalf("Topics() error = %v", err)
	}
	second, err := m.Topics(ctx, text)
	if err != nil {
		t.Fatalf("Topics() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("same text matched differently: %v vs %v", first, second)
	}
}

func TestMockExtractorSkillsMirrorTopics(t *testing.T) {
	m := NewMockExtractor()
	skills, err := m.Skills(context.Background(), "I automated the testing and migration tooling.")
	if err != nil {
		t.Fatalf("Skills() error = %v", err)
	}
	var names []string
	for _, s := range skills {
		names = append(names, s.Name)
		if s.Confidence != 0.8 {
			t.Fatalf("confidence = %v, want 0.8", s.Confidence)
		}
	}
	want := []string{"testing", "migration"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("skills = %v, want %v", names, want)
	}
}

func TestMockExtractorRespectsContext(t *testing.T) {
	m := NewMockExtractor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Topics(ctx, "kubernetes"); err == nil {
		t.Fatalf("Topics(cancelled ctx) error = nil, want context error")
	}
}

func TestNewSelectsExtractorByMode(t *testing.T) {
	ctx := context.Background()

	topics, skills, err := New(ctx, Config{Mode: "mock"})
	if err != nil {
		t.Fatalf("New(mock) error = %v", err)
	}
	if _, ok := topics.(*MockExtractor); !ok {
		t.Fatalf("New(mock) topics = %T, want *MockExtractor", topics)
	}
	if _, ok := skills.(*MockExtractor); !ok {
		t.Fatalf("New(mock) skills = %T, want *MockExtractor", skills)
	}

	if _, _, err := New(ctx, Config{Mode: "auto"}); err != nil {
		t.Fatalf("New(auto, no key) error = %v, want mock fallback", err)
	}
	if _, _, err := New(ctx, Config{Mode: "something-else"}); err == nil {
		t.Fatalf("New(bad mode) error = nil, want error")
	}
}
