package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/depthwise/depthwise/internal/interview"
)

// PostgresStore persists session aggregates in PostgreSQL. The write path
// is one transaction: a version-guarded upsert of the session row, then
// delete-and-reinsert of the child rows (nodes, grades, buzzwords, turns)
// with their arena positions preserved.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSessionSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSessionSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS interview_sessions (
			id TEXT PRIMARY KEY,
			start_time TIMESTAMPTZ NOT NULL,
			current_path JSONB NOT NULL,
			exhausted_topics JSONB NOT NULL DEFAULT '[]',
			total_depth INTEGER NOT NULL DEFAULT 0,
			max_depth_reached INTEGER NOT NULL DEFAULT 0,
			turn_count INTEGER NOT NULL DEFAULT 0,
			probe_streak INTEGER NOT NULL DEFAULT 0,
			completed BOOLEAN NOT NULL DEFAULT FALSE,
			version INTEGER NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS interview_nodes (
			session_id TEXT NOT NULL REFERENCES interview_sessions(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			id TEXT NOT NULL,
			name TEXT NOT NULL,
			depth INTEGER NOT NULL,
			parent_id TEXT NOT NULL DEFAULT '',
			children JSONB NOT NULL DEFAULT '[]',
			status TEXT NOT NULL,
			context TEXT NOT NULL DEFAULT '',
			mentions JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (session_id, id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_interview_nodes_session_position ON interview_nodes (session_id, position);`,
		`CREATE TABLE IF NOT EXISTS interview_grades (
			session_id TEXT NOT NULL REFERENCES interview_sessions(id) ON DELETE CASCADE,
			turn_index INTEGER NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			engagement TEXT NOT NULL,
			content_snapshot TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (session_id, turn_index)
		);`,
		`CREATE TABLE IF NOT EXISTS interview_buzzwords (
			session_id TEXT NOT NULL REFERENCES interview_sessions(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			term TEXT NOT NULL,
			count INTEGER NOT NULL,
			source_turns JSONB NOT NULL DEFAULT '[]',
			PRIMARY KEY (session_id, term)
		);`,
		`CREATE TABLE IF NOT EXISTS interview_turns (
			session_id TEXT NOT NULL REFERENCES interview_sessions(id) ON DELETE CASCADE,
			turn_index INTEGER NOT NULL,
			question TEXT NOT NULL DEFAULT '',
			answer TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (session_id, turn_index)
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init session schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, sessionID string, state *interview.ConversationState) error {
	pathJSON, err := json.Marshal(state.CurrentPath)
	if err != nil {
		return fmt.Errorf("marshal current path: %w", err)
	}
	exhausted := state.ExhaustedTopics
	if exhausted == nil {
		exhausted = []string{}
	}
	exhaustedJSON, err := json.Marshal(exhausted)
	if err != nil {
		return fmt.Errorf("marshal exhausted topics: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	newVersion := state.Version + 1
	now := time.Now().UTC()

	if state.Version == 0 {
		tag, err := tx.Exec(ctx,
			`INSERT INTO interview_sessions (
				id, start_time, current_path, exhausted_topics, total_depth,
				max_depth_reached, turn_count, probe_streak, completed, version, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (id) DO NOTHING`,
			sessionID, state.StartTime, pathJSON, exhaustedJSON, state.TotalDepth,
			state.MaxDepthReached, state.TurnCount, state.ProbeStreak, state.Completed, newVersion, now,
		)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrConflict
		}
	} else {
		tag, err := tx.Exec(ctx,
			`UPDATE interview_sessions SET
				current_path=$2, exhausted_topics=$3, total_depth=$4, max_depth_reached=$5,
				turn_count=$6, probe_streak=$7, completed=$8, version=$9, updated_at=$10
			 WHERE id=$1 AND version=$11`,
			sessionID, pathJSON, exhaustedJSON, state.TotalDepth, state.MaxDepthReached,
			state.TurnCount, state.ProbeStreak, state.Completed, newVersion, now, state.Version,
		)
		if err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrConflict
		}
	}

	for _, table := range []string{"interview_nodes", "interview_grades", "interview_buzzwords", "interview_turns"} {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE session_id=$1`, sessionID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for i, n := range state.Nodes {
		children := n.Children
		if children == nil {
			children = []string{}
		}
		childrenJSON, err := json.Marshal(children)
		if err != nil {
			return fmt.Errorf("marshal children of %s: %w", n.ID, err)
		}
		mentions := n.Mentions
		if mentions == nil {
			mentions = []interview.Mention{}
		}
		mentionsJSON, err := json.Marshal(mentions)
		if err != nil {
			return fmt.Errorf("marshal mentions of %s: %w", n.ID, err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO interview_nodes (
				session_id, position, id, name, depth, parent_id, children, status, context, mentions, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			sessionID, i, n.ID, n.Name, n.Depth, n.ParentID, childrenJSON, string(n.Status), n.Context, mentionsJSON, n.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert node %s: %w", n.ID, err)
		}
	}

	for _, g := range state.Grades {
		_, err := tx.Exec(ctx,
			`INSERT INTO interview_grades (session_id, turn_index, score, ts, engagement, content_snapshot)
			 VALUES ($1,$2,$3,$4,$5,$6)`,
			sessionID, g.TurnIndex, g.Score, g.Timestamp, string(g.EngagementLevel), g.ContentSnapshot,
		)
		if err != nil {
			return fmt.Errorf("insert grade %d: %w", g.TurnIndex, err)
		}
	}

	for i, b := range state.Buzzwords {
		turns := b.SourceTurns
		if turns == nil {
			turns = []int{}
		}
		turnsJSON, err := json.Marshal(turns)
		if err != nil {
			return fmt.Errorf("marshal source turns of %q: %w", b.Term, err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO interview_buzzwords (session_id, position, term, count, source_turns)
			 VALUES ($1,$2,$3,$4,$5)`,
			sessionID, i, b.Term, b.Count, turnsJSON,
		)
		if err != nil {
			return fmt.Errorf("insert buzzword %q: %w", b.Term, err)
		}
	}

	for _, qa := range state.Transcript {
		_, err := tx.Exec(ctx,
			`INSERT INTO interview_turns (session_id, turn_index, question, answer, ts)
			 VALUES ($1,$2,$3,$4,$5)`,
			sessionID, qa.TurnIndex, qa.Question, qa.Answer, qa.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert turn %d: %w", qa.TurnIndex, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	state.Version = newVersion
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, sessionID string) (*interview.ConversationState, error) {
	state := &interview.ConversationState{}
	var pathJSON, exhaustedJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT start_time, current_path, exhausted_topics, total_depth, max_depth_reached,
		        turn_count, probe_streak, completed, version
		   FROM interview_sessions WHERE id=$1`,
		sessionID,
	).Scan(&state.StartTime, &pathJSON, &exhaustedJSON, &state.TotalDepth, &state.MaxDepthReached,
		&state.TurnCount, &state.ProbeStreak, &state.Completed, &state.Version)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if err := json.Unmarshal(pathJSON, &state.CurrentPath); err != nil {
		return nil, fmt.Errorf("unmarshal current path: %w", err)
	}
	if err := json.Unmarshal(exhaustedJSON, &state.ExhaustedTopics); err != nil {
		return nil, fmt.Errorf("unmarshal exhausted topics: %w", err)
	}
	if len(state.ExhaustedTopics) == 0 {
		state.ExhaustedTopics = nil
	}

	if state.Nodes, err = s.loadNodes(ctx, sessionID); err != nil {
		return nil, err
	}
	if state.Grades, err = s.loadGrades(ctx, sessionID); err != nil {
		return nil, err
	}
	if state.Buzzwords, err = s.loadBuzzwords(ctx, sessionID); err != nil {
		return nil, err
	}
	if state.Transcript, err = s.loadTranscript(ctx, sessionID); err != nil {
		return nil, err
	}

	if err := state.Rebuild(); err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return state, nil
}

func (s *PostgresStore) loadNodes(ctx context.Context, sessionID string) ([]interview.TopicNode, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, depth, parent_id, children, status, context, mentions, created_at
		   FROM interview_nodes WHERE session_id=$1 ORDER BY position ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	nodes := make([]interview.TopicNode, 0, 8)
	for rows.Next() {
		var (
			n            interview.TopicNode
			status       string
			childrenJSON []byte
			mentionsJSON []byte
		)
		if err := rows.Scan(&n.ID, &n.Name, &n.Depth, &n.ParentID, &childrenJSON, &status, &n.Context, &mentionsJSON, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		if err := json.Unmarshal(childrenJSON, &n.Children); err != nil {
			return nil, fmt.Errorf("unmarshal children of %s: %w", n.ID, err)
		}
		if err := json.Unmarshal(mentionsJSON, &n.Mentions); err != nil {
			return nil, fmt.Errorf("unmarshal mentions of %s: %w", n.ID, err)
		}
		if len(n.Children) == 0 {
			n.Children = nil
		}
		if len(n.Mentions) == 0 {
			n.Mentions = nil
		}
		n.Status = interview.Status(status)
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate node rows: %w", err)
	}
	return nodes, nil
}

func (s *PostgresStore) loadGrades(ctx context.Context, sessionID string) ([]interview.ResponseGrade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT turn_index, score, ts, engagement, content_snapshot
		   FROM interview_grades WHERE session_id=$1 ORDER BY turn_index ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}
	defer rows.Close()

	var grades []interview.ResponseGrade
	for rows.Next() {
		var (
			g          interview.ResponseGrade
			engagement string
		)
		if err := rows.Scan(&g.TurnIndex, &g.Score, &g.Timestamp, &engagement, &g.ContentSnapshot); err != nil {
			return nil, fmt.Errorf("scan grade: %w", err)
		}
		g.EngagementLevel = interview.Engagement(engagement)
		grades = append(grades, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grade rows: %w", err)
	}
	return grades, nil
}

func (s *PostgresStore) loadBuzzwords(ctx context.Context, sessionID string) ([]interview.BuzzwordStat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT term, count, source_turns
		   FROM interview_buzzwords WHERE session_id=$1 ORDER BY position ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list buzzwords: %w", err)
	}
	defer rows.Close()

	var stats []interview.BuzzwordStat
	for rows.Next() {
		var (
			b         interview.BuzzwordStat
			turnsJSON []byte
		)
		if err := rows.Scan(&b.Term, &b.Count, &turnsJSON); err != nil {
			return nil, fmt.Errorf("scan buzzword: %w", err)
		}
		if err := json.Unmarshal(turnsJSON, &b.SourceTurns); err != nil {
			return nil, fmt.Errorf("unmarshal source turns of %q: %w", b.Term, err)
		}
		stats = append(stats, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buzzword rows: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) loadTranscript(ctx context.Context, sessionID string) ([]interview.QAPair, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT turn_index, question, answer, ts
		   FROM interview_turns WHERE session_id=$1 ORDER BY turn_index ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var transcript []interview.QAPair
	for rows.Next() {
		var qa interview.QAPair
		if err := rows.Scan(&qa.TurnIndex, &qa.Question, &qa.Answer, &qa.Timestamp); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		transcript = append(transcript, qa)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return transcript, nil
}

func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM interview_sessions WHERE id=$1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
