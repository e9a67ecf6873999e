package interview

import (
	"errors"
	"testing"
	"time"
)

func testNow() time.Time {
	return time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
}

func TestNewStateHasRootOnly(t *testing.T) {
	s := NewState("background", testNow())
	if len(s.Nodes) != 1 {
		t.Fatalf("len(Nodes) = %d, want 1", len(s.Nodes))
	}
	root := s.Root()
	if root.Depth != 0 || root.ParentID != "" {
		t.Fatalf("root not a root: %+v", root)
	}
	if root.Status != StatusUnexplored {
		t.Fatalf("root status = %q, want %q", root.Status, StatusUnexplored)
	}
	if len(s.CurrentPath) != 1 || s.CurrentPath[0] != root.ID {
		t.Fatalf("CurrentPath = %v, want [%s]", s.CurrentPath, root.ID)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestAddChildMaintainsInvariants(t *testing.T) {
	s := NewState("background", testNow())
	root := s.Root()

	child, err := s.AddChild(root.ID, "Kubernetes", "", testNow())
	if err != nil {
		t.Fatalf("AddChild() error = %v", err)
	}
	if child.Depth != 1 {
		t.Fatalf("child depth = %d, want 1", child.Depth)
	}
	if child.ParentID != root.ID {
		t.Fatalf("child parent = %q, want %q", child.ParentID, root.ID)
	}
	if got := s.Root().Children; len(got) != 1 || got[0] != child.ID {
		t.Fatalf("root children = %v, want [%s]", got, child.ID)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestRebuildRejectsDanglingChild(t *testing.T) {
	s := NewState("background", testNow())
	s.Nodes[0].Children = append(s.Nodes[0].Children, "missing-node")

	if err := s.Rebuild(); !errors.Is(err, ErrCorruptState) {
		t.Fatalf("Rebuild() error = %v, want ErrCorruptState", err)
	}
}

func TestRebuildRejectsBadDepth(t *testing.T) {
	s := NewState("background", testNow())
	child, err := s.AddChild(s.Root().ID, "Kubernetes", "", testNow())
	if err != nil {
		t.Fatalf("AddChild() error = %v", err)
	}
	child.Depth = 5

	if err := s.Rebuild(); !errors.Is(err, ErrCorruptState) {
		t.Fatalf("Rebuild() error = %v, want ErrCorruptState", err)
	}
}

func TestRebuildRejectsExhaustedPathTail(t *testing.T) {
	s := NewState("background", testNow())
	child, err := s.AddChild(s.Root().ID, "Kubernetes", "", testNow())
	if err != nil {
		t.Fatalf("AddChild() error = %v", err)
	}
	if err := s.Descend(child.ID); err != nil {
		t.Fatalf("Descend() error = %v", err)
	}
	s.CurrentNode().Status = StatusExhausted

	if err := s.Rebuild(); !errors.Is(err, ErrCorruptState) {
		t.Fatalf("Rebuild() error = %v, want ErrCorruptState", err)
	}
}

func TestRebuildRejectsBrokenPath(t *testing.T) {
	s := NewState("background", testNow())
	a, _ := s.AddChild(s.Root().ID, "a", "", testNow())
	aID := a.ID
	b, _ := s.AddChild(aID, "b", "", testNow())
	// Root -> b skips a, so the path is not parent/child linked.
	s.CurrentPath = []string{s.Root().ID, b.ID}

	if err := s.Rebuild(); !errors.Is(err, ErrCorruptState) {
		t.Fatalf("Rebuild() error = %v, want ErrCorruptState", err)
	}
}

func TestFindChildSubstringMatch(t *testing.T) {
	s := NewState("background", testNow())
	root := s.Root()
	child, _ := s.AddChild(root.ID, "Kubernetes", "", testNow())
	childID := child.ID

	got, ok := s.FindChild(root.ID, "kubernetes operators")
	if !ok || got.ID != childID {
		t.Fatalf("FindChild(kubernetes operators) = %v, %v; want child match", got, ok)
	}
	got, ok = s.FindChild(root.ID, "KUBE")
	if !ok || got.ID != childID {
		t.Fatalf("FindChild(KUBE) = %v, %v; want child match", got, ok)
	}
	if _, ok := s.FindChild(root.ID, "terraform"); ok {
		t.Fatalf("FindChild(terraform) matched, want no match")
	}
}

func TestDescendUpdatesDepthCounters(t *testing.T) {
	s := NewState("background", testNow())
	child, _ := s.AddChild(s.Root().ID, "Kubernetes", "", testNow())
	if err := s.Descend(child.ID); err != nil {
		t.Fatalf("Descend() error = %v", err)
	}
	if s.CurrentNode().Status != StatusExploring {
		t.Fatalf("target status = %q, want %q", s.CurrentNode().Status, StatusExploring)
	}
	if s.TotalDepth != 1 || s.MaxDepthReached != 1 {
		t.Fatalf("TotalDepth = %d, MaxDepthReached = %d, want 1, 1", s.TotalDepth, s.MaxDepthReached)
	}
}

func TestAddBuzzwordIdempotentPerTurn(t *testing.T) {
	s := NewState("background", testNow())
	s.AddBuzzword("Kafka", 0)
	s.AddBuzzword("kafka", 0)
	s.AddBuzzword("kafka", 2)

	if len(s.Buzzwords) != 1 {
		t.Fatalf("len(Buzzwords) = %d, want 1", len(s.Buzzwords))
	}
	b := s.Buzzwords[0]
	if b.Term != "kafka" {
		t.Fatalf("term = %q, want %q", b.Term, "kafka")
	}
	if b.Count != 3 {
		t.Fatalf("count = %d, want 3", b.Count)
	}
	if len(b.SourceTurns) != 2 || b.SourceTurns[0] != 0 || b.SourceTurns[1] != 2 {
		t.Fatalf("source turns = %v, want [0 2]", b.SourceTurns)
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := NewState("background", testNow())
	child, _ := s.AddChild(s.Root().ID, "Kubernetes", "", testNow())
	_ = s.Descend(child.ID)
	s.AddBuzzword("kafka", 0)
	s.RecordMention(child.ID, Mention{TurnIndex: 0, Timestamp: testNow(), EngagementLevel: EngagementHigh})

	c := s.Clone()
	c.Nodes[1].Name = "changed"
	c.Buzzwords[0].Count = 99
	c.CurrentPath[0] = "zzz"

	if s.Nodes[1].Name != "Kubernetes" {
		t.Fatalf("clone mutation leaked into node name: %q", s.Nodes[1].Name)
	}
	if s.Buzzwords[0].Count != 1 {
		t.Fatalf("clone mutation leaked into buzzword count: %d", s.Buzzwords[0].Count)
	}
	if s.CurrentPath[0] == "zzz" {
		t.Fatalf("clone mutation leaked into path")
	}
}

func TestEligibleForCompletion(t *testing.T) {
	s := NewState("background", testNow())
	if !s.EligibleForCompletion() {
		t.Fatalf("fresh root-only session should be eligible")
	}

	child, _ := s.AddChild(s.Root().ID, "Kubernetes", "", testNow())
	if s.EligibleForCompletion() {
		t.Fatalf("unexplored child should block completion")
	}

	_ = s.Descend(child.ID)
	s.RecordMention(child.ID, Mention{TurnIndex: 0})
	s.MarkExhausted(child.ID)
	s.Backtrack()
	if !s.EligibleForCompletion() {
		t.Fatalf("exhausted tree back at root should be eligible")
	}
}
