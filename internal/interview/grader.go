package interview

import (
	"fmt"
	"math"
	"time"
)

const excerptLimit = 140

// Weights are the scoring formula coefficients. Each is in [0,1] and they
// must sum to 1. Defaults are configurable heuristics, not verified
// constants.
type Weights struct {
	Engagement float64
	Confidence float64
	Length     float64
	Novelty    float64
}

func DefaultWeights() Weights {
	return Weights{Engagement: 0.30, Confidence: 0.25, Length: 0.20, Novelty: 0.25}
}

func (w Weights) Validate() error {
	for _, v := range []float64{w.Engagement, w.Confidence, w.Length, w.Novelty} {
		if v < 0 || v > 1 {
			return fmt.Errorf("score weight %v out of [0,1]", v)
		}
	}
	sum := w.Engagement + w.Confidence + w.Length + w.Novelty
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("score weights sum to %v, want 1", sum)
	}
	return nil
}

// Grader turns one analysis into a 0-100 score and folds the per-topic
// statistics into the tree: a mention on the active node plus the global
// buzzword counters.
type Grader struct {
	weights Weights
}

func NewGrader(weights Weights) (*Grader, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Grader{weights: weights}, nil
}

// Grade scores the turn and applies its side effects to state. A malformed
// analysis is a programming error and comes back as an error; well-formed
// input never fails.
func (g *Grader) Grade(state *ConversationState, turnIndex int, analysis ResponseAnalysis, utterance string, now time.Time) (ResponseGrade, error) {
	if err := analysis.Validate(); err != nil {
		return ResponseGrade{}, err
	}

	grade := ResponseGrade{
		TurnIndex:       turnIndex,
		Score:           g.score(analysis),
		Timestamp:       now,
		EngagementLevel: analysis.EngagementLevel,
		ContentSnapshot: excerpt(utterance),
	}

	cur := state.CurrentNode()
	state.RecordMention(cur.ID, Mention{
		TurnIndex:       turnIndex,
		Timestamp:       now,
		ResponseExcerpt: grade.ContentSnapshot,
		EngagementLevel: analysis.EngagementLevel,
	})
	for _, term := range analysis.Buzzwords {
		state.AddBuzzword(term, turnIndex)
	}

	return grade, nil
}

func (g *Grader) score(analysis ResponseAnalysis) float64 {
	w := g.weights
	if analysis.Degraded {
		// The novelty component is unknowable when extraction failed, so
		// its weight is redistributed pro rata: the speaker is not
		// penalized for a tooling failure.
		rest := w.Engagement + w.Confidence + w.Length
		if rest > 0 {
			scale := 1 / rest
			w = Weights{
				Engagement: w.Engagement * scale,
				Confidence: w.Confidence * scale,
				Length:     w.Length * scale,
			}
		}
	}

	novelty := float64(len(analysis.NewTopics)+len(analysis.Subtopics)) / 3
	if novelty > 1 {
		novelty = 1
	}

	sum := w.Engagement*engagementValue(analysis.EngagementLevel) +
		w.Confidence*confidenceValue(analysis.ConfidenceLevel) +
		w.Length*lengthValue(analysis.ResponseLength) +
		w.Novelty*novelty

	score := 100 * sum
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func engagementValue(e Engagement) float64 {
	switch e {
	case EngagementHigh:
		return 1
	case EngagementMedium:
		return 0.6
	default:
		return 0.2
	}
}

func confidenceValue(c Confidence) float64 {
	switch c {
	case ConfidenceConfident:
		return 1
	case ConfidenceUncertain:
		return 0.5
	default:
		return 0.2
	}
}

func lengthValue(l Length) float64 {
	switch l {
	case LengthDetailed:
		return 1
	case LengthModerate:
		return 0.6
	default:
		return 0.3
	}
}

func excerpt(s string) string {
	runes := []rune(s)
	if len(runes) <= excerptLimit {
		return s
	}
	return string(runes[:excerptLimit]) + "..."
}
