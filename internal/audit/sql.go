package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"sentinel/internal/model"
)

const verdictsSchema = `
CREATE TABLE IF NOT EXISTS verdicts (
	action_id   TEXT PRIMARY KEY,
	agent_id    TEXT NOT NULL DEFAULT '',
	action_type TEXT NOT NULL,
	resource_id TEXT NOT NULL,
	decision    TEXT NOT NULL,
	composite   REAL NOT NULL,
	ts          TEXT NOT NULL,
	raw_json    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS verdicts_resource_idx ON verdicts (resource_id);
CREATE INDEX IF NOT EXISTS verdicts_agent_idx ON verdicts (agent_id);
`

// SQLLog is a Log backed by SQLite or Postgres. The full verdict is
// stored as JSON alongside the columns the queries filter on.
type SQLLog struct {
	db       *sql.DB
	postgres bool
}

// OpenSQL opens the audit database. DSNs starting with postgres:// or
// postgresql:// use pgx; anything else is treated as a SQLite file path.
func OpenSQL(ctx context.Context, dsn string) (*SQLLog, error) {
	postgres := strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")

	var db *sql.DB
	var err error
	if postgres {
		db, err = sql.Open("pgx", dsn)
	} else {
		db, err = sql.Open("sqlite", dsn)
	}
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if !postgres {
		// Single writer; WAL keeps readers unblocked during records.
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("audit db pragma: %w", err)
		}
	}
	for _, stmt := range strings.Split(verdictsSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("audit db schema: %w", err)
		}
	}
	return &SQLLog{db: db, postgres: postgres}, nil
}

// rebind rewrites ? placeholders to $1..$N for Postgres.
func (l *SQLLog) rebind(q string) string {
	if !l.postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (l *SQLLog) Record(ctx context.Context, v *model.GovernanceVerdict) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}
	_, err = l.db.ExecContext(ctx, l.rebind(`
		INSERT INTO verdicts (action_id, agent_id, action_type, resource_id, decision, composite, ts, raw_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (action_id) DO NOTHING`),
		v.ActionID, v.AgentID, string(v.ActionType), v.Target.ResourceID,
		string(v.Decision), v.SRI.Composite, v.Timestamp.Format("2006-01-02T15:04:05.000000000Z07:00"), string(raw))
	if err != nil {
		return fmt.Errorf("record verdict: %w", err)
	}
	return nil
}

func (l *SQLLog) GetRecent(ctx context.Context, limit int, resourceFilter string) ([]model.GovernanceVerdict, error) {
	q := `SELECT raw_json FROM verdicts`
	args := []any{}
	if resourceFilter != "" {
		q += ` WHERE resource_id LIKE ?`
		args = append(args, "%"+resourceFilter+"%")
	}
	q += ` ORDER BY ts DESC, action_id ASC LIMIT ?`
	args = append(args, clampLimit(limit))
	return l.query(ctx, q, args...)
}

func (l *SQLLog) GetByID(ctx context.Context, actionID string) (*model.GovernanceVerdict, error) {
	rows, err := l.query(ctx, `SELECT raw_json FROM verdicts WHERE action_id = ?`, actionID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("verdict %s: %w", actionID, model.ErrNotFound)
	}
	return &rows[0], nil
}

func (l *SQLLog) GetByAgent(ctx context.Context, agentID string, limit int) ([]model.GovernanceVerdict, error) {
	return l.query(ctx, `SELECT raw_json FROM verdicts WHERE agent_id = ? ORDER BY ts DESC, action_id ASC LIMIT ?`,
		agentID, clampLimit(limit))
}

func (l *SQLLog) Aggregate(ctx context.Context) (Summary, error) {
	verdicts, err := l.query(ctx, `SELECT raw_json FROM verdicts`)
	if err != nil {
		return Summary{}, fmt.Errorf("aggregate verdicts: %w", err)
	}
	return Summarize(verdicts), nil
}

func (l *SQLLog) Close() error { return l.db.Close() }

func (l *SQLLog) query(ctx context.Context, q string, args ...any) ([]model.GovernanceVerdict, error) {
	rows, err := l.db.QueryContext(ctx, l.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("query verdicts: %w", err)
	}
	defer rows.Close()

	var out []model.GovernanceVerdict
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var v model.GovernanceVerdict
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decode stored verdict: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

var _ Log = (*SQLLog)(nil)
