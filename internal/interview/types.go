package interview

import (
	"errors"
	"time"
)

// Status tracks how far a topic has been explored.
type Status string

const (
	StatusUnexplored Status = "unexplored"
	StatusExploring  Status = "exploring"
	StatusExhausted  Status = "exhausted"
	StatusRich       Status = "rich"
)

type Engagement string

const (
	EngagementHigh   Engagement = "high"
	EngagementMedium Engagement = "medium"
	EngagementLow    Engagement = "low"
)

type Confidence string

const (
	ConfidenceConfident  Confidence = "confident"
	ConfidenceUncertain  Confidence = "uncertain"
	ConfidenceStruggling Confidence = "struggling"
)

type Length string

const (
	LengthDetailed Length = "detailed"
	LengthModerate Length = "moderate"
	LengthBrief    Length = "brief"
)

// Mention records one turn that touched a topic node.
type Mention struct {
	TurnIndex       int        `json:"turn_index"`
	Timestamp       time.Time  `json:"timestamp"`
	ResponseExcerpt string     `json:"response_excerpt"`
	EngagementLevel Engagement `json:"engagement_level"`
}

// TopicNode is one node of the interview's subject tree.
type TopicNode struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Depth     int       `json:"depth"`
	ParentID  string    `json:"parent_id,omitempty"`
	Children  []string  `json:"children,omitempty"`
	Status    Status    `json:"status"`
	Context   string    `json:"context,omitempty"`
	Mentions  []Mention `json:"mentions,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (n TopicNode) Clone() TopicNode {
	out := n
	if n.Children != nil {
		out.Children = make([]string, len(n.Children))
		copy(out.Children, n.Children)
	}
	if n.Mentions != nil {
		out.Mentions = make([]Mention, len(n.Mentions))
		copy(out.Mentions, n.Mentions)
	}
	return out
}

// QAPair is one question/answer exchange. Immutable once recorded.
type QAPair struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	TurnIndex int       `json:"turn_index"`
	Timestamp time.Time `json:"timestamp"`
}

// ResponseAnalysis is the structured view of one user utterance.
// All string slices are case-normalized and deduplicated, in discovery order.
type ResponseAnalysis struct {
	EngagementLevel   Engagement `json:"engagement_level"`
	ConfidenceLevel   Confidence `json:"confidence_level"`
	ResponseLength    Length     `json:"response_length"`
	NewTopics         []string   `json:"new_topics,omitempty"`
	Subtopics         []string   `json:"subtopics,omitempty"`
	ExhaustionSignals []string   `json:"exhaustion_signals,omitempty"`
	Buzzwords         []string   `json:"buzzwords,omitempty"`
	// Degraded marks a turn whose extractor calls failed; downstream
	// components must not penalize the speaker for it.
	Degraded bool `json:"degraded,omitempty"`
}

var errMalformedAnalysis = errors.New("malformed response analysis")

// Validate rejects analyses missing required enum fields. A failure here is
// a programming error, not a user input problem.
func (a ResponseAnalysis) Validate() error {
	switch a.EngagementLevel {
	case EngagementHigh, EngagementMedium, EngagementLow:
	default:
		return errMalformedAnalysis
	}
	switch a.ConfidenceLevel {
	case ConfidenceConfident, ConfidenceUncertain, ConfidenceStruggling:
	default:
		return errMalformedAnalysis
	}
	switch a.ResponseLength {
	case LengthDetailed, LengthModerate, LengthBrief:
	default:
		return errMalformedAnalysis
	}
	return nil
}

// BuzzwordStat tracks one recurring term across the session.
// Count never decreases; SourceTurns grows append-only.
type BuzzwordStat struct {
	Term        string `json:"term"`
	Count       int    `json:"count"`
	SourceTurns []int  `json:"source_turns"`
}

func (b BuzzwordStat) Clone() BuzzwordStat {
	out := b
	if b.SourceTurns != nil {
		out.SourceTurns = make([]int, len(b.SourceTurns))
		copy(out.SourceTurns, b.SourceTurns)
	}
	return out
}

// ResponseGrade is the immutable per-turn score record.
type ResponseGrade struct {
	TurnIndex       int        `json:"turn_index"`
	Score           float64    `json:"score"`
	Timestamp       time.Time  `json:"timestamp"`
	EngagementLevel Engagement `json:"engagement_level"`
	ContentSnapshot string     `json:"content_snapshot"`
}

// Action is the traversal policy's verdict for one turn.
type Action string

const (
	ActionDescendNew      Action = "descend-new"
	ActionDescendExisting Action = "descend-existing"
	ActionContinue        Action = "continue"
	ActionBacktrack       Action = "backtrack"
	ActionMarkRich        Action = "mark-rich"
)

// Decision pairs an action with the node it lands on: the child for
// descends, the node left on the path after a backtrack or mark-rich, the
// current node for continue.
type Decision struct {
	Action   Action `json:"action"`
	TargetID string `json:"target_id,omitempty"`
}

// SummaryDelta is the cheap per-turn digest returned to the caller.
type SummaryDelta struct {
	Score           float64 `json:"score"`
	AverageScore    float64 `json:"average_score"`
	NodeCount       int     `json:"node_count"`
	MaxDepthReached int     `json:"max_depth_reached"`
}

// TurnResult is what ProcessTurn hands back to the transport layer.
type TurnResult struct {
	TurnIndex             int          `json:"turn_index"`
	Action                Action       `json:"action"`
	TargetID              string       `json:"target_id,omitempty"`
	TargetName            string       `json:"target_name,omitempty"`
	Grade                 ResponseGrade `json:"grade"`
	Degraded              bool         `json:"degraded,omitempty"`
	EligibleForCompletion bool         `json:"eligible_for_completion,omitempty"`
	CurrentPath           []string     `json:"current_path"`
	Delta                 SummaryDelta `json:"delta"`
}

// InterviewSummary is the end-of-session report.
type InterviewSummary struct {
	SessionID       string         `json:"session_id,omitempty"`
	TurnCount       int            `json:"turn_count"`
	NodeCounts      map[Status]int `json:"node_counts"`
	AverageScore    float64        `json:"average_score"`
	TopBuzzwords    []BuzzwordStat `json:"top_buzzwords,omitempty"`
	TotalDepth      int            `json:"total_depth"`
	MaxDepthReached int            `json:"max_depth_reached"`
	Completed       bool           `json:"completed"`
	StartTime       time.Time      `json:"start_time"`
	GeneratedAt     time.Time      `json:"generated_at"`
	Nodes           []TopicNode    `json:"nodes"`
}
