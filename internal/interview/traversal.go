package interview

import (
	"fmt"
	"time"
)

// DefaultProbeLimit is the loop-breaker: after this many consecutive
// unproductive probes of the same node the policy forces a backtrack.
// A configurable heuristic, like the scoring weights.
const DefaultProbeLimit = 3

// Policy decides, each turn, whether the interview goes deeper, sideways,
// or back up the tree.
type Policy struct {
	probeLimit int
}

func NewPolicy(probeLimit int) *Policy {
	if probeLimit <= 0 {
		probeLimit = DefaultProbeLimit
	}
	return &Policy{probeLimit: probeLimit}
}

// Decide applies the traversal rules, in priority order, against the active
// node and mutates state accordingly (statuses, path, depth counters).
//
//  1. Exhaustion signals with nothing unexplored below: leave the node,
//     flagged rich when it yielded two or more mentions, exhausted
//     otherwise.
//  2. A genuinely new topic: create a child and descend into it.
//  3. A subtopic naming an existing child: descend into that child.
//  4. Otherwise keep probing, unless the node has been probed probeLimit
//     times without producing anything new, which forces a backtrack.
func (p *Policy) Decide(state *ConversationState, analysis ResponseAnalysis, now time.Time) (Decision, error) {
	cur := state.CurrentNode()
	if cur == nil {
		return Decision{}, fmt.Errorf("no active node on current path")
	}

	if len(analysis.ExhaustionSignals) > 0 && !state.HasUnexploredChildren(cur.ID) {
		action := ActionBacktrack
		if cur.Depth > 0 {
			if len(cur.Mentions) >= 2 {
				cur.Status = StatusRich
				action = ActionMarkRich
			} else {
				state.MarkExhausted(cur.ID)
			}
		}
		state.Backtrack()
		return Decision{Action: action, TargetID: state.CurrentNode().ID}, nil
	}

	for _, topic := range analysis.NewTopics {
		if _, exists := state.FindChild(cur.ID, topic); exists {
			// Near-identical to an existing child; rule 3 handles it.
			continue
		}
		child, err := state.AddChild(cur.ID, topic, fmt.Sprintf("raised while discussing %q", cur.Name), now)
		if err != nil {
			return Decision{}, err
		}
		if err := state.Descend(child.ID); err != nil {
			return Decision{}, err
		}
		return Decision{Action: ActionDescendNew, TargetID: child.ID}, nil
	}

	for _, topic := range append(append([]string(nil), analysis.Subtopics...), analysis.NewTopics...) {
		child, ok := state.FindChild(cur.ID, topic)
		if !ok || child.Status == StatusExhausted {
			continue
		}
		if err := state.Descend(child.ID); err != nil {
			return Decision{}, err
		}
		return Decision{Action: ActionDescendExisting, TargetID: child.ID}, nil
	}

	state.ProbeStreak++
	if state.ProbeStreak >= p.probeLimit {
		state.MarkExhausted(cur.ID)
		state.Backtrack()
		return Decision{Action: ActionBacktrack, TargetID: state.CurrentNode().ID}, nil
	}
	return Decision{Action: ActionContinue, TargetID: cur.ID}, nil
}
