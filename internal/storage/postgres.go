package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/voicelayer/switchboard/internal/types"
)

// PostgresStore implements Store on a pgx connection pool
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresStore connects to Postgres and ensures the schema exists
func NewPostgresStore(ctx context.Context, databaseURL string, logger zerolog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info().Msg("postgres store initialized")
	return &PostgresStore{pool: pool, logger: logger}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			contact_endpoint TEXT NOT NULL DEFAULT '',
			team_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			skills TEXT[] NOT NULL DEFAULT '{}',
			max_concurrent_calls INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS agent_sessions (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			call_id TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NULL,
			notes TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_agent_sessions_open ON agent_sessions (agent_id) WHERE ended_at IS NULL;`,
		`CREATE INDEX IF NOT EXISTS idx_agent_sessions_call ON agent_sessions (call_id);`,
		`CREATE TABLE IF NOT EXISTS call_queue (
			id TEXT PRIMARY KEY,
			call_id TEXT NOT NULL,
			team_id TEXT NOT NULL DEFAULT '',
			reason_for_transfer TEXT NOT NULL DEFAULT '',
			priority INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			assigned_agent_id TEXT NOT NULL DEFAULT '',
			wait_time DOUBLE PRECISION NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_call_queue_active_call ON call_queue (call_id) WHERE status IN ('waiting','assigned');`,
		`CREATE INDEX IF NOT EXISTS idx_call_queue_waiting ON call_queue (team_id, priority DESC, created_at ASC) WHERE status = 'waiting';`,
		`CREATE TABLE IF NOT EXISTS transfer_log (
			id TEXT PRIMARY KEY,
			call_id TEXT NOT NULL,
			from_bot BOOLEAN NOT NULL DEFAULT TRUE,
			agent_id TEXT NOT NULL DEFAULT '',
			context JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transfer_log_call ON transfer_log (call_id, created_at ASC);`,
		`CREATE TABLE IF NOT EXISTS calls (
			id TEXT PRIMARY KEY,
			provider_call_id TEXT NOT NULL DEFAULT '',
			team_id TEXT NOT NULL DEFAULT '',
			caller_number TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NULL,
			duration DOUBLE PRECISION NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_calls_status_started ON calls (status, started_at DESC);`,
		`CREATE TABLE IF NOT EXISTS transcript_lines (
			id TEXT PRIMARY KEY,
			call_id TEXT NOT NULL,
			speaker TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL DEFAULT '',
			ts TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transcript_call_ts ON transcript_lines (call_id, ts ASC);`,
		`CREATE TABLE IF NOT EXISTS analytics_snapshots (
			id TEXT PRIMARY KEY,
			call_id TEXT NOT NULL,
			sentiment_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			sentiment_label TEXT NOT NULL DEFAULT '',
			latency_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
			talk_time_secs DOUBLE PRECISION NOT NULL DEFAULT 0,
			silence_time_secs DOUBLE PRECISION NOT NULL DEFAULT 0,
			interruption_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_analytics_call_created ON analytics_snapshots (call_id, created_at ASC);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) UpsertAgent(ctx context.Context, agent *types.Agent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agents (id, name, contact_endpoint, team_id, status, skills, max_concurrent_calls, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (id) DO UPDATE SET
			name=EXCLUDED.name,
			contact_endpoint=EXCLUDED.contact_endpoint,
			team_id=EXCLUDED.team_id,
			status=EXCLUDED.status,
			skills=EXCLUDED.skills,
			max_concurrent_calls=EXCLUDED.max_concurrent_calls,
			updated_at=EXCLUDED.updated_at`,
		agent.ID, agent.Name, agent.ContactEndpoint, agent.TeamID, string(agent.Status),
		agent.Skills, agent.MaxConcurrentCalls, agent.CreatedAt, agent.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAgent(ctx context.Context, id string) (*types.Agent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, contact_endpoint, team_id, status, skills, max_concurrent_calls, created_at, updated_at
		   FROM agents WHERE id=$1`, id)
	agent, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return agent, nil
}

func (s *PostgresStore) ListAgents(ctx context.Context, teamID string) ([]types.Agent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, contact_endpoint, team_id, status, skills, max_concurrent_calls, created_at, updated_at
		   FROM agents WHERE ($1 = '' OR team_id = $1) ORDER BY id ASC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	agents := make([]types.Agent, 0)
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}
		agents = append(agents, *agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agent rows: %w", err)
	}
	return agents, nil
}

func scanAgent(row pgx.Row) (*types.Agent, error) {
	var (
		agent  types.Agent
		status string
	)
	if err := row.Scan(
		&agent.ID, &agent.Name, &agent.ContactEndpoint, &agent.TeamID, &status,
		&agent.Skills, &agent.MaxConcurrentCalls, &agent.CreatedAt, &agent.UpdatedAt,
	); err != nil {
		return nil, err
	}
	agent.Status = types.AgentStatus(status)
	return &agent, nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, session *types.AgentSession) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agent_sessions (id, agent_id, call_id, started_at, ended_at, notes)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		session.ID, session.AgentID, session.CallID, session.StartedAt, session.EndedAt, session.Notes,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendSessionNote(ctx context.Context, sessionID, note string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_sessions
		    SET notes = CASE WHEN notes = '' THEN $2 ELSE notes || E'\n' || $2 END
		  WHERE id = $1`,
		sessionID, note,
	)
	if err != nil {
		return fmt.Errorf("append session note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) EndSessionsForCall(ctx context.Context, callID string, endedAt time.Time) ([]types.AgentSession, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE agent_sessions SET ended_at = $2
		  WHERE call_id = $1 AND ended_at IS NULL
		 RETURNING id, agent_id, call_id, started_at, ended_at, notes`,
		callID, endedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("end sessions for call: %w", err)
	}
	defer rows.Close()

	var closed []types.AgentSession
	for rows.Next() {
		var session types.AgentSession
		if err := rows.Scan(
			&session.ID, &session.AgentID, &session.CallID,
			&session.StartedAt, &session.EndedAt, &session.Notes,
		); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		closed = append(closed, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return closed, nil
}

func (s *PostgresStore) OpenSessionCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT agent_id, COUNT(*) FROM agent_sessions WHERE ended_at IS NULL GROUP BY agent_id`)
	if err != nil {
		return nil, fmt.Errorf("open session counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			agentID string
			count   int
		)
		if err := rows.Scan(&agentID, &count); err != nil {
			return nil, fmt.Errorf("scan session count: %w", err)
		}
		counts[agentID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session counts: %w", err)
	}
	return counts, nil
}

func (s *PostgresStore) ListSessionsStartedBetween(ctx context.Context, from, to time.Time) ([]types.AgentSession, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_id, call_id, started_at, ended_at, notes
		   FROM agent_sessions WHERE started_at >= $1 AND started_at < $2
		  ORDER BY started_at ASC`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []types.AgentSession
	for rows.Next() {
		var session types.AgentSession
		if err := rows.Scan(
			&session.ID, &session.AgentID, &session.CallID,
			&session.StartedAt, &session.EndedAt, &session.Notes,
		); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return sessions, nil
}

func (s *PostgresStore) CreateQueueEntry(ctx context.Context, entry *types.CallQueueEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO call_queue (id, call_id, team_id, reason_for_transfer, priority, status, assigned_agent_id, wait_time, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		entry.ID, entry.CallID, entry.TeamID, entry.ReasonForTransfer, entry.Priority,
		string(entry.Status), entry.AssignedAgentID, entry.WaitTime, entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCall
		}
		return fmt.Errorf("create queue entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetQueueEntry(ctx context.Context, id string) (*types.CallQueueEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, call_id, team_id, reason_for_transfer, priority, status, assigned_agent_id, wait_time, created_at, updated_at
		   FROM call_queue WHERE id=$1`, id)
	entry, err := scanQueueEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get queue entry: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) GetQueueEntryByCallID(ctx context.Context, callID string) (*types.CallQueueEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, call_id, team_id, reason_for_transfer, priority, status, assigned_agent_id, wait_time, created_at, updated_at
		   FROM call_queue WHERE call_id=$1 ORDER BY created_at DESC LIMIT 1`, callID)
	entry, err := scanQueueEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get queue entry by call: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) ListWaitingEntries(ctx context.Context, teamID string) ([]types.CallQueueEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, call_id, team_id, reason_for_transfer, priority, status, assigned_agent_id, wait_time, created_at, updated_at
		   FROM call_queue
		  WHERE status = 'waiting' AND ($1 = '' OR team_id = $1)
		  ORDER BY priority DESC, created_at ASC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list waiting entries: %w", err)
	}
	defer rows.Close()

	entries := make([]types.CallQueueEntry, 0)
	for rows.Next() {
		entry, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue entry row: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue entry rows: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) UpdateQueueEntry(ctx context.Context, entry *types.CallQueueEntry) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE call_queue SET
			status=$2, assigned_agent_id=$3, wait_time=$4, priority=$5, updated_at=$6
		  WHERE id=$1`,
		entry.ID, string(entry.Status), entry.AssignedAgentID, entry.WaitTime, entry.Priority, entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update queue entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListEntriesCreatedBetween(ctx context.Context, from, to time.Time) ([]types.CallQueueEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, call_id, team_id, reason_for_transfer, priority, status, assigned_agent_id, wait_time, created_at, updated_at
		   FROM call_queue WHERE created_at >= $1 AND created_at < $2
		  ORDER BY created_at ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	defer rows.Close()

	var entries []types.CallQueueEntry
	for rows.Next() {
		entry, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue entry row: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue entry rows: %w", err)
	}
	return entries, nil
}

func scanQueueEntry(row pgx.Row) (*types.CallQueueEntry, error) {
	var (
		entry  types.CallQueueEntry
		status string
	)
	if err := row.Scan(
		&entry.ID, &entry.CallID, &entry.TeamID, &entry.ReasonForTransfer, &entry.Priority,
		&status, &entry.AssignedAgentID, &entry.WaitTime, &entry.CreatedAt, &entry.UpdatedAt,
	); err != nil {
		return nil, err
	}
	entry.Status = types.QueueStatus(status)
	return &entry, nil
}

func (s *PostgresStore) AppendTransferLog(ctx context.Context, entry *types.TransferLogEntry) error {
	contextJSON, err := json.Marshal(entry.Context)
	if err != nil {
		return fmt.Errorf("marshal transfer log context: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO transfer_log (id, call_id, from_bot, agent_id, context, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		entry.ID, entry.CallID, entry.FromBot, entry.AgentID, contextJSON, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append transfer log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTransferLog(ctx context.Context, callID string) ([]types.TransferLogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, call_id, from_bot, agent_id, context, created_at
		   FROM transfer_log WHERE call_id=$1 ORDER BY created_at ASC`, callID)
	if err != nil {
		return nil, fmt.Errorf("list transfer log: %w", err)
	}
	defer rows.Close()

	var log []types.TransferLogEntry
	for rows.Next() {
		var (
			entry       types.TransferLogEntry
			contextJSON []byte
		)
		if err := rows.Scan(&entry.ID, &entry.CallID, &entry.FromBot, &entry.AgentID, &contextJSON, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transfer log row: %w", err)
		}
		if len(contextJSON) > 0 {
			if err := json.Unmarshal(contextJSON, &entry.Context); err != nil {
				return nil, fmt.Errorf("unmarshal transfer log context: %w", err)
			}
		}
		log = append(log, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfer log rows: %w", err)
	}
	return log, nil
}

func (s *PostgresStore) UpsertCall(ctx context.Context, call *types.Call) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO calls (id, provider_call_id, team_id, caller_number, status, started_at, ended_at, duration, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 ON CONFLICT (id) DO UPDATE SET
			provider_call_id=EXCLUDED.provider_call_id,
			team_id=EXCLUDED.team_id,
			caller_number=EXCLUDED.caller_number,
			status=EXCLUDED.status,
			started_at=EXCLUDED.started_at,
			ended_at=EXCLUDED.ended_at,
			duration=EXCLUDED.duration,
			updated_at=EXCLUDED.updated_at`,
		call.ID, call.ProviderCallID, call.TeamID, call.CallerNumber, string(call.Status),
		call.StartedAt, call.EndedAt, call.Duration, call.CreatedAt, call.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert call: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCall(ctx context.Context, id string) (*types.Call, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, provider_call_id, team_id, caller_number, status, started_at, ended_at, duration, created_at, updated_at
		   FROM calls WHERE id=$1`, id)
	call, err := scanCall(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get call: %w", err)
	}
	return call, nil
}

func (s *PostgresStore) ListCallsByStatus(ctx context.Context, teamID string, statuses []types.CallStatus, limit, offset int) ([]types.Call, int, error) {
	statusStrings := make([]string, 0, len(statuses))
	for _, st := range statuses {
		statusStrings = append(statusStrings, string(st))
	}

	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM calls
		  WHERE ($1 = '' OR team_id = $1)
		    AND (cardinality($2::text[]) = 0 OR status = ANY($2))`,
		teamID, statusStrings,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count calls: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, provider_call_id, team_id, caller_number, status, started_at, ended_at, duration, created_at, updated_at
		   FROM calls
		  WHERE ($1 = '' OR team_id = $1)
		    AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		  ORDER BY started_at DESC, id ASC
		  LIMIT $3 OFFSET $4`,
		teamID, statusStrings, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	calls := make([]types.Call, 0, limit)
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan call row: %w", err)
		}
		calls = append(calls, *call)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate call rows: %w", err)
	}
	return calls, total, nil
}

func scanCall(row pgx.Row) (*types.Call, error) {
	var (
		call   types.Call
		status string
	)
	if err := row.Scan(
		&call.ID, &call.ProviderCallID, &call.TeamID, &call.CallerNumber, &status,
		&call.StartedAt, &call.EndedAt, &call.Duration, &call.CreatedAt, &call.UpdatedAt,
	); err != nil {
		return nil, err
	}
	call.Status = types.CallStatus(status)
	return &call, nil
}

func (s *PostgresStore) AppendTranscriptLine(ctx context.Context, line *types.TranscriptLine) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transcript_lines (id, call_id, speaker, text, ts) VALUES ($1,$2,$3,$4,$5)`,
		line.ID, line.CallID, line.Speaker, line.Text, line.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append transcript line: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTranscript(ctx context.Context, callID string) ([]types.TranscriptLine, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, call_id, speaker, text, ts FROM transcript_lines WHERE call_id=$1 ORDER BY ts ASC`, callID)
	if err != nil {
		return nil, fmt.Errorf("list transcript: %w", err)
	}
	defer rows.Close()

	lines := make([]types.TranscriptLine, 0)
	for rows.Next() {
		var line types.TranscriptLine
		if err := rows.Scan(&line.ID, &line.CallID, &line.Speaker, &line.Text, &line.Timestamp); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript rows: %w", err)
	}
	return lines, nil
}

func (s *PostgresStore) LatestTranscriptLine(ctx context.Context, callID string) (*types.TranscriptLine, error) {
	var line types.TranscriptLine
	err := s.pool.QueryRow(ctx,
		`SELECT id, call_id, speaker, text, ts FROM transcript_lines WHERE call_id=$1 ORDER BY ts DESC LIMIT 1`, callID,
	).Scan(&line.ID, &line.CallID, &line.Speaker, &line.Text, &line.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("latest transcript line: %w", err)
	}
	return &line, nil
}

func (s *PostgresStore) AppendAnalyticsSnapshot(ctx context.Context, snap *types.AnalyticsSnapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO analytics_snapshots (id, call_id, sentiment_score, sentiment_label, latency_ms, talk_time_secs, silence_time_secs, interruption_count, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		snap.ID, snap.CallID, snap.SentimentScore, snap.SentimentLabel, snap.LatencyMs,
		snap.TalkTimeSecs, snap.SilenceTimeSecs, snap.InterruptionCount, snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append analytics snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAnalytics(ctx context.Context, callID string) ([]types.AnalyticsSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, call_id, sentiment_score, sentiment_label, latency_ms, talk_time_secs, silence_time_secs, interruption_count, created_at
		   FROM analytics_snapshots WHERE call_id=$1 ORDER BY created_at ASC`, callID)
	if err != nil {
		return nil, fmt.Errorf("list analytics: %w", err)
	}
	defer rows.Close()

	snaps := make([]types.AnalyticsSnapshot, 0)
	for rows.Next() {
		var snap types.AnalyticsSnapshot
		if err := rows.Scan(
			&snap.ID, &snap.CallID, &snap.SentimentScore, &snap.SentimentLabel, &snap.LatencyMs,
			&snap.TalkTimeSecs, &snap.SilenceTimeSecs, &snap.InterruptionCount, &snap.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan analytics row: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analytics rows: %w", err)
	}
	return snaps, nil
}

func (s *PostgresStore) LatestAnalyticsSnapshot(ctx context.Context, callID string) (*types.AnalyticsSnapshot, error) {
	var snap types.AnalyticsSnapshot
	err := s.pool.QueryRow(ctx,
		`SELECT id, call_id, sentiment_score, sentiment_label, latency_ms, talk_time_secs, silence_time_secs, interruption_count, created_at
		   FROM analytics_snapshots WHERE call_id=$1 ORDER BY created_at DESC LIMIT 1`, callID,
	).Scan(
		&snap.ID, &snap.CallID, &snap.SentimentScore, &snap.SentimentLabel, &snap.LatencyMs,
		&snap.TalkTimeSecs, &snap.SilenceTimeSecs, &snap.InterruptionCount, &snap.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("latest analytics snapshot: %w", err)
	}
	return &snap, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
