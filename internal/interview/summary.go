package interview

import (
	"sort"
	"time"
)

const topBuzzwordLimit = 10

// Summarize builds the end-of-session report. Pure and deterministic: it
// reads the state, clones everything it reports, and mutates nothing.
func Summarize(state *ConversationState, now time.Time) InterviewSummary {
	counts := map[Status]int{
		StatusUnexplored: 0,
		StatusExploring:  0,
		StatusExhausted:  0,
		StatusRich:       0,
	}
	nodes := make([]TopicNode, len(state.Nodes))
	for i, n := range state.Nodes {
		counts[n.Status]++
		nodes[i] = n.Clone()
	}

	var avg float64
	if len(state.Grades) > 0 {
		var sum float64
		for _, g := range state.Grades {
			sum += g.Score
		}
		avg = sum / float64(len(state.Grades))
	}

	return InterviewSummary{
		TurnCount:       state.TurnCount,
		NodeCounts:      counts,
		AverageScore:    avg,
		TopBuzzwords:    topBuzzwords(state.Buzzwords, topBuzzwordLimit),
		TotalDepth:      state.TotalDepth,
		MaxDepthReached: state.MaxDepthReached,
		Completed:       state.Completed,
		StartTime:       state.StartTime,
		GeneratedAt:     now,
		Nodes:           nodes,
	}
}

// topBuzzwords sorts by count descending, breaking ties by the earliest
// first source turn, and truncates to limit.
func topBuzzwords(stats []BuzzwordStat, limit int) []BuzzwordStat {
	out := make([]BuzzwordStat, len(stats))
	for i, b := range stats {
		out[i] = b.Clone()
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return firstTurn(out[i]) < firstTurn(out[j])
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func firstTurn(b BuzzwordStat) int {
	if len(b.SourceTurns) == 0 {
		return int(^uint(0) >> 1)
	}
	return b.SourceTurns[0]
}
