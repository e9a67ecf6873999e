// Package engine wires the turn pipeline together: per-session lock, load,
// analyze, grade, traverse, save. It is the only writer of conversation
// state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/depthwise/depthwise/internal/interview"
	"github.com/depthwise/depthwise/internal/lock"
	"github.com/depthwise/depthwise/internal/observability"
	"github.com/depthwise/depthwise/internal/store"
)

// ErrSessionCompleted rejects turns against a session already marked
// complete.
var ErrSessionCompleted = errors.New("interview session is already complete")

// saveAttempts bounds the reload-and-replay loop on version conflicts: the
// first conflict is retried once against fresh state, the second surfaces
// as a retryable error to the caller.
const saveAttempts = 2

type Config struct {
	ProbeLimit       int
	Weights          interview.Weights
	DefaultRootTopic string
}

type Service struct {
	store    store.Store
	locks    lock.Locker
	analyzer *interview.Analyzer
	grader   *interview.Grader
	policy   *interview.Policy
	metrics  *observability.Metrics
	log      *zap.Logger
	rootName string
}

func New(cfg Config, st store.Store, locks lock.Locker, analyzer *interview.Analyzer, metrics *observability.Metrics, log *zap.Logger) (*Service, error) {
	grader, err := interview.NewGrader(cfg.Weights)
	if err != nil {
		return nil, fmt.Errorf("grader init failed: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	rootName := strings.TrimSpace(cfg.DefaultRootTopic)
	if rootName == "" {
		rootName = "interview"
	}
	return &Service{
		store:    st,
		locks:    locks,
		analyzer: analyzer,
		grader:   grader,
		policy:   interview.NewPolicy(cfg.ProbeLimit),
		metrics:  metrics,
		log:      log,
		rootName: rootName,
	}, nil
}

// StartSession persists a fresh aggregate holding only the root node.
func (s *Service) StartSession(ctx context.Context, sessionID, rootTopic string) error {
	release, err := s.locks.Acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer release()

	if strings.TrimSpace(rootTopic) == "" {
		rootTopic = s.rootName
	}
	state := interview.NewState(rootTopic, time.Now().UTC())
	if err := s.store.Save(ctx, sessionID, state); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("session %s already exists: %w", sessionID, err)
		}
		return fmt.Errorf("save new session: %w", err)
	}
	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues("started").Inc()
	}
	return nil
}

// ProcessTurn applies one question/answer exchange to the session. The
// extractor calls run once; on a version conflict only the decision logic
// is replayed against freshly loaded state.
func (s *Service) ProcessTurn(ctx context.Context, sessionID, question, utterance string) (interview.TurnResult, error) {
	if strings.TrimSpace(utterance) == "" {
		return interview.TurnResult{}, errors.New("utterance must not be empty")
	}

	started := time.Now()
	release, err := s.locks.Acquire(ctx, sessionID)
	if err != nil {
		return interview.TurnResult{}, err
	}
	defer release()

	extraction := s.analyzer.Extract(ctx, utterance)

	var lastErr error
	for attempt := 0; attempt < saveAttempts; attempt++ {
		result, err := s.applyTurn(ctx, sessionID, question, utterance, extraction)
		if err == nil {
			if s.metrics != nil {
				s.metrics.TurnsProcessed.WithLabelValues(string(result.Action)).Inc()
				if result.Degraded {
					s.metrics.DegradedTurns.Inc()
				}
				s.metrics.ObserveTurnLatency(time.Since(started))
			}
			if result.Degraded {
				s.log.Warn("turn processed degraded",
					zap.String("session_id", sessionID),
					zap.Int("turn_index", result.TurnIndex),
				)
			}
			return result, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return interview.TurnResult{}, err
		}
		if s.metrics != nil {
			s.metrics.StoreConflicts.Inc()
		}
		s.log.Warn("session save conflict, replaying turn",
			zap.String("session_id", sessionID),
			zap.Int("attempt", attempt+1),
		)
		lastErr = err
	}
	return interview.TurnResult{}, fmt.Errorf("turn could not be applied after %d attempts: %w", saveAttempts, lastErr)
}

func (s *Service) applyTurn(ctx context.Context, sessionID, question, utterance string, extraction interview.Extraction) (interview.TurnResult, error) {
	state, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return interview.TurnResult{}, err
	}
	if state.Completed {
		return interview.TurnResult{}, ErrSessionCompleted
	}

	analysis, err := s.analyzer.Compose(utterance, extraction, state)
	if err != nil {
		return interview.TurnResult{}, err
	}

	now := time.Now().UTC()
	turnIndex := state.TurnCount

	grade, err := s.grader.Grade(state, turnIndex, analysis, utterance, now)
	if err != nil {
		return interview.TurnResult{}, err
	}
	state.Grades = append(state.Grades, grade)
	state.Transcript = append(state.Transcript, interview.QAPair{
		Question:  question,
		Answer:    utterance,
		TurnIndex: turnIndex,
		Timestamp: now,
	})
	state.TurnCount++

	decision, err := s.policy.Decide(state, analysis, now)
	if err != nil {
		return interview.TurnResult{}, err
	}

	if err := s.store.Save(ctx, sessionID, state); err != nil {
		return interview.TurnResult{}, err
	}

	var targetName string
	if target, ok := state.Node(decision.TargetID); ok {
		targetName = target.Name
	}
	var avg float64
	for _, g := range state.Grades {
		avg += g.Score
	}
	avg /= float64(len(state.Grades))

	return interview.TurnResult{
		TurnIndex:             turnIndex,
		Action:                decision.Action,
		TargetID:              decision.TargetID,
		TargetName:            targetName,
		Grade:                 grade,
		Degraded:              analysis.Degraded,
		EligibleForCompletion: state.EligibleForCompletion(),
		CurrentPath:           append([]string(nil), state.CurrentPath...),
		Delta: interview.SummaryDelta{
			Score:           grade.Score,
			AverageScore:    avg,
			NodeCount:       len(state.Nodes),
			MaxDepthReached: state.MaxDepthReached,
		},
	}, nil
}

// GetSummary reflects state as of the last persisted turn. Read-only,
// callable at any time.
func (s *Service) GetSummary(ctx context.Context, sessionID string) (interview.InterviewSummary, error) {
	state, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return interview.InterviewSummary{}, err
	}
	summary := interview.Summarize(state, time.Now().UTC())
	summary.SessionID = sessionID
	return summary, nil
}

// EndSession marks the session complete and returns the final report.
func (s *Service) EndSession(ctx context.Context, sessionID string) (interview.InterviewSummary, error) {
	release, err := s.locks.Acquire(ctx, sessionID)
	if err != nil {
		return interview.InterviewSummary{}, err
	}
	defer release()

	state, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return interview.InterviewSummary{}, err
	}
	if !state.Completed {
		state.Completed = true
		if err := s.store.Save(ctx, sessionID, state); err != nil {
			return interview.InterviewSummary{}, err
		}
	}
	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues("completed").Inc()
	}
	summary := interview.Summarize(state, time.Now().UTC())
	summary.SessionID = sessionID
	return summary, nil
}
