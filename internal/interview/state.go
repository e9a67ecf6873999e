package interview

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrCorruptState marks a persisted session that fails structural
// validation. It is fatal for the session: guessing the intended tree shape
// risks silently losing interview history, so no auto-repair is attempted.
var ErrCorruptState = errors.New("conversation state is structurally corrupt")

// ConversationState is the session aggregate. Nodes form an arena: a flat
// ordered slice (insertion order = discovery order) plus an id index that is
// rebuilt after deserialization, never persisted.
type ConversationState struct {
	Nodes           []TopicNode     `json:"nodes"`
	CurrentPath     []string        `json:"current_path"`
	ExhaustedTopics []string        `json:"exhausted_topics,omitempty"`
	Grades          []ResponseGrade `json:"grades,omitempty"`
	Buzzwords       []BuzzwordStat  `json:"buzzwords,omitempty"`
	Transcript      []QAPair        `json:"transcript,omitempty"`
	StartTime       time.Time       `json:"start_time"`
	TotalDepth      int             `json:"total_depth"`
	MaxDepthReached int             `json:"max_depth_reached"`
	TurnCount       int             `json:"turn_count"`
	// ProbeStreak counts consecutive unproductive probes of the active
	// node; any descend or backtrack resets it.
	ProbeStreak int  `json:"probe_streak"`
	Completed   bool `json:"completed"`
	// Version is the optimistic-concurrency token managed by the store.
	Version int `json:"version"`

	index     map[string]int
	buzzIndex map[string]int
}

// NewState creates a fresh session aggregate holding only the root node.
func NewState(rootName string, now time.Time) *ConversationState {
	rootName = strings.TrimSpace(rootName)
	if rootName == "" {
		rootName = "interview"
	}
	root := TopicNode{
		ID:        uuid.NewString(),
		Name:      rootName,
		Depth:     0,
		Status:    StatusUnexplored,
		Context:   "session root",
		CreatedAt: now,
	}
	s := &ConversationState{
		Nodes:       []TopicNode{root},
		CurrentPath: []string{root.ID},
		StartTime:   now,
	}
	_ = s.Rebuild()
	return s
}

// Rebuild reconstructs the id indexes and re-validates the structural
// invariants. Call it after deserialization before any other use.
func (s *ConversationState) Rebuild() error {
	s.index = make(map[string]int, len(s.Nodes))
	for i, n := range s.Nodes {
		if n.ID == "" {
			return fmt.Errorf("%w: node %d has empty id", ErrCorruptState, i)
		}
		if _, dup := s.index[n.ID]; dup {
			return fmt.Errorf("%w: duplicate node id %q", ErrCorruptState, n.ID)
		}
		s.index[n.ID] = i
	}
	s.buzzIndex = make(map[string]int, len(s.Buzzwords))
	for i, b := range s.Buzzwords {
		if _, dup := s.buzzIndex[b.Term]; dup {
			return fmt.Errorf("%w: duplicate buzzword %q", ErrCorruptState, b.Term)
		}
		s.buzzIndex[b.Term] = i
	}
	return s.Validate()
}

// Validate checks the tree and path invariants, returning ErrCorruptState
// (wrapped) on the first violation.
func (s *ConversationState) Validate() error {
	if len(s.Nodes) == 0 {
		return fmt.Errorf("%w: no nodes", ErrCorruptState)
	}
	root := s.Nodes[0]
	if root.ParentID != "" || root.Depth != 0 {
		return fmt.Errorf("%w: first node %q is not a root", ErrCorruptState, root.ID)
	}

	seenAsChild := make(map[string]string, len(s.Nodes))
	for _, n := range s.Nodes {
		for _, childID := range n.Children {
			ci, ok := s.index[childID]
			if !ok {
				return fmt.Errorf("%w: node %q references missing child %q", ErrCorruptState, n.ID, childID)
			}
			child := s.Nodes[ci]
			if child.ParentID != n.ID {
				return fmt.Errorf("%w: child %q does not point back to %q", ErrCorruptState, childID, n.ID)
			}
			if prev, dup := seenAsChild[childID]; dup {
				return fmt.Errorf("%w: node %q claimed by both %q and %q", ErrCorruptState, childID, prev, n.ID)
			}
			seenAsChild[childID] = n.ID
			if child.Depth != n.Depth+1 {
				return fmt.Errorf("%w: node %q depth %d, parent depth %d", ErrCorruptState, childID, child.Depth, n.Depth)
			}
		}
	}
	for _, n := range s.Nodes[1:] {
		if n.ParentID == "" {
			return fmt.Errorf("%w: node %q has no parent", ErrCorruptState, n.ID)
		}
		pi, ok := s.index[n.ParentID]
		if !ok {
			return fmt.Errorf("%w: node %q has dangling parent %q", ErrCorruptState, n.ID, n.ParentID)
		}
		if !containsString(s.Nodes[pi].Children, n.ID) {
			return fmt.Errorf("%w: node %q missing from children of %q", ErrCorruptState, n.ID, n.ParentID)
		}
	}

	if len(s.CurrentPath) == 0 {
		return fmt.Errorf("%w: empty current path", ErrCorruptState)
	}
	if s.CurrentPath[0] != root.ID {
		return fmt.Errorf("%w: current path does not start at root", ErrCorruptState)
	}
	for i := 1; i < len(s.CurrentPath); i++ {
		ci, ok := s.index[s.CurrentPath[i]]
		if !ok {
			return fmt.Errorf("%w: path node %q missing from tree", ErrCorruptState, s.CurrentPath[i])
		}
		if s.Nodes[ci].ParentID != s.CurrentPath[i-1] {
			return fmt.Errorf("%w: path edge %q -> %q is not parent/child", ErrCorruptState, s.CurrentPath[i-1], s.CurrentPath[i])
		}
	}
	tail, ok := s.Node(s.CurrentPath[len(s.CurrentPath)-1])
	if !ok {
		return fmt.Errorf("%w: path tail missing from tree", ErrCorruptState)
	}
	if tail.Status == StatusExhausted {
		return fmt.Errorf("%w: path tail %q is exhausted", ErrCorruptState, tail.ID)
	}
	return nil
}

// Node returns a pointer into the arena, valid until the next append.
func (s *ConversationState) Node(id string) (*TopicNode, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return &s.Nodes[i], true
}

func (s *ConversationState) Root() *TopicNode {
	return &s.Nodes[0]
}

// CurrentNode is the active node, the tail of CurrentPath.
func (s *ConversationState) CurrentNode() *TopicNode {
	n, _ := s.Node(s.CurrentPath[len(s.CurrentPath)-1])
	return n
}

// AddChild appends a new unexplored node under parentID.
func (s *ConversationState) AddChild(parentID, name, context string, now time.Time) (*TopicNode, error) {
	parent, ok := s.Node(parentID)
	if !ok {
		return nil, fmt.Errorf("parent node %q not found", parentID)
	}
	child := TopicNode{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Depth:     parent.Depth + 1,
		ParentID:  parent.ID,
		Status:    StatusUnexplored,
		Context:   context,
		CreatedAt: now,
	}
	parent.Children = append(parent.Children, child.ID)
	s.Nodes = append(s.Nodes, child)
	s.index[child.ID] = len(s.Nodes) - 1
	return &s.Nodes[len(s.Nodes)-1], nil
}

// FindChild matches name against the children of parentID with a
// case-insensitive substring comparison in either direction, so "k8s ops"
// and "K8s" land on the same node instead of spawning near-duplicates.
func (s *ConversationState) FindChild(parentID, name string) (*TopicNode, bool) {
	parent, ok := s.Node(parentID)
	if !ok {
		return nil, false
	}
	needle := NormalizeTerm(name)
	if needle == "" {
		return nil, false
	}
	for _, childID := range parent.Children {
		child, ok := s.Node(childID)
		if !ok {
			continue
		}
		have := NormalizeTerm(child.Name)
		if strings.Contains(have, needle) || strings.Contains(needle, have) {
			return child, true
		}
	}
	return nil, false
}

// HasUnexploredChildren reports whether any direct child of id is still
// unexplored.
func (s *ConversationState) HasUnexploredChildren(id string) bool {
	n, ok := s.Node(id)
	if !ok {
		return false
	}
	for _, childID := range n.Children {
		if child, ok := s.Node(childID); ok && child.Status == StatusUnexplored {
			return true
		}
	}
	return false
}

// Descend pushes the target onto the path and updates the depth counters.
func (s *ConversationState) Descend(id string) error {
	target, ok := s.Node(id)
	if !ok {
		return fmt.Errorf("descend target %q not found", id)
	}
	if target.ParentID != s.CurrentPath[len(s.CurrentPath)-1] {
		return fmt.Errorf("descend target %q is not a child of the active node", id)
	}
	target.Status = StatusExploring
	s.CurrentPath = append(s.CurrentPath, target.ID)
	s.TotalDepth += target.Depth
	if target.Depth > s.MaxDepthReached {
		s.MaxDepthReached = target.Depth
	}
	s.ProbeStreak = 0
	return nil
}

// MarkExhausted flips a node to exhausted and records it in the exhausted
// set. The root is never exhausted.
func (s *ConversationState) MarkExhausted(id string) {
	n, ok := s.Node(id)
	if !ok || n.Depth == 0 {
		return
	}
	n.Status = StatusExhausted
	if !containsString(s.ExhaustedTopics, id) {
		s.ExhaustedTopics = append(s.ExhaustedTopics, id)
	}
}

// Backtrack pops the path once, then cascades: a parent with no unexplored
// children left and at least one mention is itself done, so it is exhausted
// and popped too. The cascade is bounded by path length and never touches
// the root, which guarantees termination.
func (s *ConversationState) Backtrack() {
	s.ProbeStreak = 0
	for len(s.CurrentPath) > 1 {
		s.CurrentPath = s.CurrentPath[:len(s.CurrentPath)-1]
		cur := s.CurrentNode()
		if cur.Depth == 0 {
			return
		}
		if s.HasUnexploredChildren(cur.ID) || len(cur.Mentions) == 0 {
			return
		}
		s.MarkExhausted(cur.ID)
	}
}

// RecordMention appends a mention entry to the node touched this turn.
func (s *ConversationState) RecordMention(id string, m Mention) {
	if n, ok := s.Node(id); ok {
		n.Mentions = append(n.Mentions, m)
	}
}

// AddBuzzword bumps the counter for term and records the source turn.
// Per-turn idempotent: a term heard twice in one turn adds the turn index
// once (the count still reflects every mention).
func (s *ConversationState) AddBuzzword(term string, turnIndex int) {
	term = NormalizeTerm(term)
	if term == "" {
		return
	}
	i, ok := s.buzzIndex[term]
	if !ok {
		s.Buzzwords = append(s.Buzzwords, BuzzwordStat{Term: term})
		i = len(s.Buzzwords) - 1
		s.buzzIndex[term] = i
	}
	b := &s.Buzzwords[i]
	b.Count++
	if len(b.SourceTurns) == 0 || b.SourceTurns[len(b.SourceTurns)-1] != turnIndex {
		b.SourceTurns = append(b.SourceTurns, turnIndex)
	}
}

// EligibleForCompletion reports whether the traversal has returned to the
// root with nothing unexplored left anywhere beneath it.
func (s *ConversationState) EligibleForCompletion() bool {
	if len(s.CurrentPath) != 1 {
		return false
	}
	for _, n := range s.Nodes {
		if n.Status == StatusUnexplored && n.Depth > 0 {
			return false
		}
	}
	return true
}

// Clone deep-copies the aggregate, including rebuilt indexes.
func (s *ConversationState) Clone() *ConversationState {
	out := &ConversationState{
		Nodes:           make([]TopicNode, len(s.Nodes)),
		CurrentPath:     append([]string(nil), s.CurrentPath...),
		StartTime:       s.StartTime,
		TotalDepth:      s.TotalDepth,
		MaxDepthReached: s.MaxDepthReached,
		TurnCount:       s.TurnCount,
		ProbeStreak:     s.ProbeStreak,
		Completed:       s.Completed,
		Version:         s.Version,
	}
	for i, n := range s.Nodes {
		out.Nodes[i] = n.Clone()
	}
	if s.ExhaustedTopics != nil {
		out.ExhaustedTopics = append([]string(nil), s.ExhaustedTopics...)
	}
	if s.Grades != nil {
		out.Grades = append([]ResponseGrade(nil), s.Grades...)
	}
	if s.Buzzwords != nil {
		out.Buzzwords = make([]BuzzwordStat, len(s.Buzzwords))
		for i, b := range s.Buzzwords {
			out.Buzzwords[i] = b.Clone()
		}
	}
	if s.Transcript != nil {
		out.Transcript = append([]QAPair(nil), s.Transcript...)
	}
	_ = out.Rebuild()
	return out
}

// NormalizeTerm lowercases and collapses whitespace for set membership and
// buzzword keys.
func NormalizeTerm(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
