package interview

import (
	"fmt"
	"math/rand"
	"testing"
	"time"
)

func productiveAnalysis(topics ...string) ResponseAnalysis {
	return ResponseAnalysis{
		EngagementLevel: EngagementHigh,
		ConfidenceLevel: ConfidenceConfident,
		ResponseLength:  LengthDetailed,
		NewTopics:       topics,
	}
}

func neutralAnalysis() ResponseAnalysis {
	return ResponseAnalysis{
		EngagementLevel: EngagementMedium,
		ConfidenceLevel: ConfidenceConfident,
		ResponseLength:  LengthModerate,
	}
}

func exhaustedAnalysis() ResponseAnalysis {
	a := neutralAnalysis()
	a.ExhaustionSignals = []string{"that's about it"}
	return a
}

func TestDecideDescendsIntoNewTopic(t *testing.T) {
	s := NewState("background", testNow())
	p := NewPolicy(DefaultProbeLimit)

	d, err := p.Decide(s, productiveAnalysis("kubernetes"), testNow())
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if d.Action != ActionDescendNew {
		t.Fatalf("action = %q, want %q", d.Action, ActionDescendNew)
	}
	cur := s.CurrentNode()
	if cur.ID != d.TargetID || cur.Name != "kubernetes" {
		t.Fatalf("current node = %+v, want new kubernetes child", cur)
	}
	if cur.Status != StatusExploring {
		t.Fatalf("child status = %q, want %q", cur.Status, StatusExploring)
	}
	if len(s.CurrentPath) != 2 {
		t.Fatalf("path length = %d, want 2", len(s.CurrentPath))
	}
	if s.MaxDepthReached != 1 {
		t.Fatalf("MaxDepthReached = %d, want 1", s.MaxDepthReached)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestDecideDescendsIntoExistingChild(t *testing.T) {
	s := NewState("background", testNow())
	child, _ := s.AddChild(s.Root().ID, "kubernetes", "", testNow())
	childID := child.ID
	p := NewPolicy(DefaultProbeLimit)

	analysis := neutralAnalysis()
	analysis.Subtopics = []string{"kubernetes"}
	d, err := p.Decide(s, analysis, testNow())
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if d.Action != ActionDescendExisting || d.TargetID != childID {
		t.Fatalf("decision = %+v, want descend-existing into %s", d, childID)
	}
	if len(s.Nodes) != 2 {
		t.Fatalf("node count = %d, want 2 (no duplicate child)", len(s.Nodes))
	}
}

func TestDecideSkipsExhaustedChild(t *testing.T) {
	s := NewState("background", testNow())
	child, _ := s.AddChild(s.Root().ID, "kubernetes", "", testNow())
	childID := child.ID
	_ = s.Descend(childID)
	s.RecordMention(childID, Mention{TurnIndex: 0})
	s.MarkExhausted(childID)
	s.Backtrack()
	p := NewPolicy(DefaultProbeLimit)

	analysis := neutralAnalysis()
	analysis.Subtopics = []string{"kubernetes"}
	d, err := p.Decide(s, analysis, testNow())
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if d.Action != ActionContinue {
		t.Fatalf("action = %q, want %q (exhausted child must not be re-entered)", d.Action, ActionContinue)
	}
}

func TestProbeLimitForcesBacktrack(t *testing.T) {
	s := NewState("background", testNow())
	g := mustGrader(t)
	p := NewPolicy(3)

	d, err := p.Decide(s, productiveAnalysis("kubernetes"), testNow())
	if err != nil || d.Action != ActionDescendNew {
		t.Fatalf("setup descend failed: %+v, %v", d, err)
	}
	childID := d.TargetID

	for turn := 1; turn <= 3; turn++ {
		if _, err := g.Grade(s, turn, neutralAnalysis(), "same ground again", testNow()); err != nil {
			t.Fatalf("turn %d: Grade() error = %v", turn, err)
		}
		d, err = p.Decide(s, neutralAnalysis(), testNow())
		if err != nil {
			t.Fatalf("turn %d: Decide() error = %v", turn, err)
		}
		if turn < 3 && d.Action != ActionContinue {
			t.Fatalf("turn %d: action = %q, want %q", turn, d.Action, ActionContinue)
		}
	}
	if d.Action != ActionBacktrack {
		t.Fatalf("third unproductive probe: action = %q, want %q", d.Action, ActionBacktrack)
	}
	node, _ := s.Node(childID)
	if node.Status != StatusExhausted {
		t.Fatalf("probed-out node status = %q, want %q", node.Status, StatusExhausted)
	}
	if len(s.CurrentPath) != 1 {
		t.Fatalf("path = %v, want back at root", s.CurrentPath)
	}
}

func TestProbeStreakResetsOnDescend(t *testing.T) {
	s := NewState("background", testNow())
	p := NewPolicy(3)

	if _, err := p.Decide(s, neutralAnalysis(), testNow()); err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if s.ProbeStreak != 1 {
		t.Fatalf("ProbeStreak = %d, want 1", s.ProbeStreak)
	}
	if _, err := p.Decide(s, productiveAnalysis("kafka"), testNow()); err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if s.ProbeStreak != 0 {
		t.Fatalf("ProbeStreak after descend = %d, want 0", s.ProbeStreak)
	}
}

func TestExhaustionSignalMarksRichAfterRepeatMentions(t *testing.T) {
	s := NewState("background", testNow())
	g := mustGrader(t)
	p := NewPolicy(3)

	d, _ := p.Decide(s, productiveAnalysis("kubernetes"), testNow())
	childID := d.TargetID
	if _, err := g.Grade(s, 1, neutralAnalysis(), "a", testNow()); err != nil {
		t.Fatalf("Grade() error = %v", err)
	}
	if _, err := g.Grade(s, 2, exhaustedAnalysis(), "that's about it", testNow()); err != nil {
		t.Fatalf("Grade() error = %v", err)
	}

	d, err := p.Decide(s, exhaustedAnalysis(), testNow())
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if d.Action != ActionMarkRich {
		t.Fatalf("action = %q, want %q", d.Action, ActionMarkRich)
	}
	node, _ := s.Node(childID)
	if node.Status != StatusRich {
		t.Fatalf("status = %q, want %q", node.Status, StatusRich)
	}
	if s.CurrentNode().ID != s.Root().ID {
		t.Fatalf("path did not pop rich node: %v", s.CurrentPath)
	}
}

func TestExhaustionSignalExhaustsSingleMentionNode(t *testing.T) {
	s := NewState("background", testNow())
	g := mustGrader(t)
	p := NewPolicy(3)

	d, _ := p.Decide(s, productiveAnalysis("kubernetes"), testNow())
	childID := d.TargetID
	if _, err := g.Grade(s, 1, exhaustedAnalysis(), "that's about it", testNow()); err != nil {
		t.Fatalf("Grade() error = %v", err)
	}

	d, err := p.Decide(s, exhaustedAnalysis(), testNow())
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if d.Action != ActionBacktrack {
		t.Fatalf("action = %q, want %q", d.Action, ActionBacktrack)
	}
	node, _ := s.Node(childID)
	if node.Status != StatusExhausted {
		t.Fatalf("status = %q, want %q", node.Status, StatusExhausted)
	}
}

func TestExhaustionDeferredWhileChildrenUnexplored(t *testing.T) {
	s := NewState("background", testNow())
	child, _ := s.AddChild(s.Root().ID, "kubernetes", "", testNow())
	childID := child.ID
	_ = s.Descend(childID)
	if _, err := s.AddChild(childID, "operators", "", testNow()); err != nil {
		t.Fatalf("AddChild() error = %v", err)
	}
	p := NewPolicy(3)

	d, err := p.Decide(s, exhaustedAnalysis(), testNow())
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if d.Action == ActionBacktrack || d.Action == ActionMarkRich {
		t.Fatalf("action = %q, node with unexplored children must not be left", d.Action)
	}
	node, _ := s.Node(childID)
	if node.Status != StatusExploring {
		t.Fatalf("status = %q, want %q", node.Status, StatusExploring)
	}
}

func TestBacktrackCascadesThroughSpentAncestors(t *testing.T) {
	s := NewState("background", testNow())
	g := mustGrader(t)
	p := NewPolicy(3)

	d, _ := p.Decide(s, productiveAnalysis("platform"), testNow())
	if _, err := g.Grade(s, 0, neutralAnalysis(), "platform work", testNow()); err != nil {
		t.Fatalf("Grade() error = %v", err)
	}
	d, _ = p.Decide(s, productiveAnalysis("kubernetes"), testNow())
	leafID := d.TargetID
	if _, err := g.Grade(s, 1, exhaustedAnalysis(), "that's about it", testNow()); err != nil {
		t.Fatalf("Grade() error = %v", err)
	}

	d, err := p.Decide(s, exhaustedAnalysis(), testNow())
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if d.Action != ActionBacktrack {
		t.Fatalf("action = %q, want %q", d.Action, ActionBacktrack)
	}
	leaf, _ := s.Node(leafID)
	if leaf.Status != StatusExhausted {
		t.Fatalf("leaf status = %q, want %q", leaf.Status, StatusExhausted)
	}
	// The parent had a mention and its only child is now exhausted, so the
	// pop cascades all the way to the root.
	if s.CurrentNode().ID != s.Root().ID {
		t.Fatalf("path = %v, want cascade back to root", s.CurrentPath)
	}
	if d.TargetID != s.Root().ID {
		t.Fatalf("target = %s, want root", d.TargetID)
	}
}

func TestRootIsNeverExhausted(t *testing.T) {
	s := NewState("background", testNow())
	p := NewPolicy(3)

	d, err := p.Decide(s, exhaustedAnalysis(), testNow())
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if d.Action != ActionBacktrack {
		t.Fatalf("action = %q, want %q", d.Action, ActionBacktrack)
	}
	if got := s.Root().Status; got == StatusExhausted || got == StatusRich {
		t.Fatalf("root status = %q, must never be terminal", got)
	}
	if len(s.CurrentPath) != 1 {
		t.Fatalf("path = %v, want root only", s.CurrentPath)
	}
}

// TestRandomTurnsKeepStateValid drives the policy with arbitrary turn
// sequences and checks the structural invariants after every decision.
func TestRandomTurnsKeepStateValid(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	g := mustGrader(t)
	p := NewPolicy(3)

	topicPool := []string{"kubernetes", "kafka", "postgres", "terraform", "grafana", "redis", "airflow"}
	s := NewState("background", testNow())
	now := testNow()

	prevCounts := map[string]int{}
	for turn := 0; turn < 300; turn++ {
		analysis := neutralAnalysis()
		switch rng.Intn(4) {
		case 0:
			analysis.NewTopics = []string{topicPool[rng.Intn(len(topicPool))]}
		case 1:
			analysis.Subtopics = []string{topicPool[rng.Intn(len(topicPool))]}
		case 2:
			analysis.ExhaustionSignals = []string{"that's all"}
		}
		if rng.Intn(3) == 0 {
			analysis.Buzzwords = []string{topicPool[rng.Intn(len(topicPool))]}
		}

		if _, err := g.Grade(s, turn, analysis, fmt.Sprintf("turn %d", turn), now); err != nil {
			t.Fatalf("turn %d: Grade() error = %v", turn, err)
		}
		if _, err := p.Decide(s, analysis, now); err != nil {
			t.Fatalf("turn %d: Decide() error = %v", turn, err)
		}
		if err := s.Validate(); err != nil {
			t.Fatalf("turn %d: Validate() error = %v", turn, err)
		}
		if s.MaxDepthReached > len(s.Nodes) {
			t.Fatalf("turn %d: MaxDepthReached %d exceeds node count %d", turn, s.MaxDepthReached, len(s.Nodes))
		}
		for _, b := range s.Buzzwords {
			if b.Count < prevCounts[b.Term] {
				t.Fatalf("turn %d: buzzword %q count went backwards: %d -> %d", turn, b.Term, prevCounts[b.Term], b.Count)
			}
			prevCounts[b.Term] = b.Count
		}
		now = now.Add(30 * time.Second)
	}
}
