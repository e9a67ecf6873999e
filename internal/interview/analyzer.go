package interview

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/depthwise/depthwise/internal/extract"
)

// Thresholds for the local length/confidence/engagement heuristics. These
// are lexical and deterministic: the same utterance always classifies the
// same way, which keeps the analyzer testable without a model in the loop.
const (
	detailedWordCount = 50
	moderateWordCount = 15
)

// exhaustionCues are the phrases that signal the speaker has run out of
// things to say about the active topic.
var exhaustionCues = []string{
	"nothing else",
	"nothing more",
	"that's about it",
	"that's all",
	"that is all",
	"that's it",
	"not much more",
	"no more to say",
	"can't think of anything",
	"i'm done",
	"that covers it",
}

var hedgeCues = []string{
	"maybe",
	"i think",
	"i guess",
	"not sure",
	"probably",
	"kind of",
	"sort of",
	"perhaps",
	"i suppose",
}

var strugglingCues = []string{
	"i don't know",
	"i dont know",
	"no idea",
	"can't remember",
	"don't remember",
}

// signalTerseReply is the derived (non-lexical) exhaustion signal emitted
// when a brief reply comes with shaky confidence.
const signalTerseReply = "terse_reply"

// Extraction is the raw output of the two classification collaborators for
// one utterance. Degraded means at least one call failed or timed out; per
// the no-partial-application rule both results are then discarded.
type Extraction struct {
	Topics   []string
	Skills   []extract.Skill
	Degraded bool
}

// Analyzer converts one raw utterance into a ResponseAnalysis. It is a pure
// transform aside from the two collaborator calls, which run concurrently,
// each under its own timeout.
type Analyzer struct {
	topics    extract.TopicExtractor
	skills    extract.SkillExtractor
	timeout   time.Duration
	log       *zap.Logger
	onFailure func(extractor string)
}

func NewAnalyzer(topics extract.TopicExtractor, skills extract.SkillExtractor, timeout time.Duration, log *zap.Logger) *Analyzer {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Analyzer{topics: topics, skills: skills, timeout: timeout, log: log}
}

// SetFailureHook registers a callback invoked with "topics" or "skills" when
// the corresponding collaborator call fails. Used to feed failure counters.
func (a *Analyzer) SetFailureHook(fn func(extractor string)) {
	a.onFailure = fn
}

// Extract issues both classification calls. It never returns an error: a
// failed or timed-out collaborator yields a degraded extraction instead, so
// a tooling hiccup cannot abort the turn.
func (a *Analyzer) Extract(ctx context.Context, utterance string) Extraction {
	var (
		wg        sync.WaitGroup
		topics    []string
		skills    []extract.Skill
		topicErr  error
		skillErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		topics, topicErr = a.topics.Topics(callCtx, utterance)
	}()
	go func() {
		defer wg.Done()
		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		skills, skillErr = a.skills.Skills(callCtx, utterance)
	}()
	wg.Wait()

	if topicErr != nil || skillErr != nil {
		if a.onFailure != nil {
			if topicErr != nil {
				a.onFailure("topics")
			}
			if skillErr != nil {
				a.onFailure("skills")
			}
		}
		a.log.Warn("extraction degraded",
			zap.NamedError("topic_error", topicErr),
			zap.NamedError("skill_error", skillErr),
		)
		return Extraction{Degraded: true}
	}
	return Extraction{Topics: topics, Skills: skills}
}

// Compose folds the extraction and the local heuristics into a
// ResponseAnalysis against the given state. Deterministic for the same
// utterance, extraction, and tree shape; no side effects on state.
func (a *Analyzer) Compose(utterance string, ex Extraction, state *ConversationState) (ResponseAnalysis, error) {
	if strings.TrimSpace(utterance) == "" {
		return ResponseAnalysis{}, errors.New("utterance must not be empty")
	}
	cur := state.CurrentNode()
	if cur == nil {
		return ResponseAnalysis{}, errors.New("no active node on current path")
	}

	lower := strings.ToLower(utterance)
	words := len(strings.Fields(utterance))

	length := LengthBrief
	switch {
	case words >= detailedWordCount:
		length = LengthDetailed
	case words >= moderateWordCount:
		length = LengthModerate
	}

	confidence := localConfidence(lower)
	engagement := localEngagement(length, confidence)

	analysis := ResponseAnalysis{
		EngagementLevel:   engagement,
		ConfidenceLevel:   confidence,
		ResponseLength:    length,
		ExhaustionSignals: exhaustionSignals(lower, length, confidence),
		Degraded:          ex.Degraded,
	}
	if ex.Degraded {
		analysis.ConfidenceLevel = ConfidenceUncertain
		return analysis, nil
	}

	onPath := make(map[string]bool, len(state.CurrentPath))
	for _, id := range state.CurrentPath {
		if n, ok := state.Node(id); ok {
			onPath[NormalizeTerm(n.Name)] = true
		}
	}

	seen := make(map[string]bool)
	for _, raw := range ex.Topics {
		topic := NormalizeTerm(raw)
		if topic == "" || seen[topic] || onPath[topic] {
			continue
		}
		seen[topic] = true
		if _, ok := state.FindChild(cur.ID, topic); ok {
			analysis.Subtopics = append(analysis.Subtopics, topic)
		} else {
			analysis.NewTopics = append(analysis.NewTopics, topic)
		}
	}

	seenBuzz := make(map[string]bool)
	for _, skill := range ex.Skills {
		term := NormalizeTerm(skill.Name)
		if term == "" || seenBuzz[term] {
			continue
		}
		seenBuzz[term] = true
		analysis.Buzzwords = append(analysis.Buzzwords, term)
	}

	return analysis, nil
}

// Analyze is Extract followed by Compose.
func (a *Analyzer) Analyze(ctx context.Context, utterance string, state *ConversationState) (ResponseAnalysis, error) {
	return a.Compose(utterance, a.Extract(ctx, utterance), state)
}

func localConfidence(lower string) Confidence {
	for _, cue := range strugglingCues {
		if strings.Contains(lower, cue) {
			return ConfidenceStruggling
		}
	}
	hedges := 0
	for _, cue := range hedgeCues {
		hedges += strings.Count(lower, cue)
	}
	switch {
	case hedges >= 3:
		return ConfidenceStruggling
	case hedges >= 1:
		return ConfidenceUncertain
	default:
		return ConfidenceConfident
	}
}

func localEngagement(length Length, confidence Confidence) Engagement {
	if confidence == ConfidenceStruggling || length == LengthBrief {
		return EngagementLow
	}
	if length == LengthDetailed && confidence == ConfidenceConfident {
		return EngagementHigh
	}
	return EngagementMedium
}

func exhaustionSignals(lower string, length Length, confidence Confidence) []string {
	var out []string
	for _, cue := range exhaustionCues {
		if strings.Contains(lower, cue) {
			out = append(out, cue)
		}
	}
	if length == LengthBrief && confidence != ConfidenceConfident {
		out = append(out, signalTerseReply)
	}
	return out
}
