package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"sentinel/internal/model"
)

const agentsSchema = `
CREATE TABLE IF NOT EXISTS agents (
	name          TEXT PRIMARY KEY,
	card_url      TEXT NOT NULL DEFAULT '',
	registered_at TEXT NOT NULL,
	last_seen     TEXT NOT NULL,
	approved      INTEGER NOT NULL DEFAULT 0,
	escalated     INTEGER NOT NULL DEFAULT 0,
	denied        INTEGER NOT NULL DEFAULT 0
);
`

const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLRegistry is a Registry backed by SQLite or Postgres.
type SQLRegistry struct {
	db       *sql.DB
	postgres bool
}

// OpenSQL opens the registry database. DSNs starting with postgres://
// or postgresql:// use pgx; anything else is a SQLite file path.
func OpenSQL(ctx context.Context, dsn string) (*SQLRegistry, error) {
	postgres := strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")

	var db *sql.DB
	var err error
	if postgres {
		db, err = sql.Open("pgx", dsn)
	} else {
		db, err = sql.Open("sqlite", dsn)
	}
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}
	if !postgres {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("registry db pragma: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, agentsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("registry db schema: %w", err)
	}
	return &SQLRegistry{db: db, postgres: postgres}, nil
}

func (r *SQLRegistry) rebind(q string) string {
	if !r.postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, c := range q {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (r *SQLRegistry) Register(ctx context.Context, name, cardURL string) error {
	now := time.Now().UTC().Format(tsLayout)
	_, err := r.db.ExecContext(ctx, r.rebind(`
		INSERT INTO agents (name, card_url, registered_at, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET card_url = excluded.card_url, last_seen = excluded.last_seen`),
		name, cardURL, now, now)
	if err != nil {
		return fmt.Errorf("register agent %s: %w", name, err)
	}
	return nil
}

func (r *SQLRegistry) RecordDecision(ctx context.Context, name string, d model.Decision, at time.Time) error {
	col := ""
	switch d {
	case model.DecisionApproved:
		col = "approved"
	case model.DecisionEscalated:
		col = "escalated"
	case model.DecisionDenied:
		col = "denied"
	default:
		return fmt.Errorf("record decision for %s: unknown decision %q", name, d)
	}
	ts := at.UTC().Format(tsLayout)
	// Upsert keeps registration and the counter bump in one statement,
	// so concurrent verdicts never lose increments.
	q := fmt.Sprintf(`
		INSERT INTO agents (name, registered_at, last_seen, %[1]s)
		VALUES (?, ?, ?, 1)
		ON CONFLICT (name) DO UPDATE SET %[1]s = agents.%[1]s + 1, last_seen = excluded.last_seen`, col)
	if _, err := r.db.ExecContext(ctx, r.rebind(q), name, ts, ts); err != nil {
		return fmt.Errorf("record decision for %s: %w", name, err)
	}
	return nil
}

func (r *SQLRegistry) Get(ctx context.Context, name string) (*Agent, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT name, card_url, registered_at, last_seen, approved, escalated, denied
		FROM agents WHERE name = ?`), name)
	a, err := scanAgent(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent %s: %w", name, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get agent %s: %w", name, err)
	}
	return a, nil
}

func (r *SQLRegistry) List(ctx context.Context) ([]Agent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, card_url, registered_at, last_seen, approved, escalated, denied
		FROM agents ORDER BY last_seen DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		a, err := scanAgent(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *SQLRegistry) Close() error { return r.db.Close() }

func scanAgent(scan func(...any) error) (*Agent, error) {
	var a Agent
	var registeredAt, lastSeen string
	if err := scan(&a.Name, &a.CardURL, &registeredAt, &lastSeen,
		&a.Stats.Approved, &a.Stats.Escalated, &a.Stats.Denied); err != nil {
		return nil, err
	}
	var err error
	if a.RegisteredAt, err = time.Parse(tsLayout, registeredAt); err != nil {
		return nil, fmt.Errorf("parse registered_at: %w", err)
	}
	if a.LastSeen, err = time.Parse(tsLayout, lastSeen); err != nil {
		return nil, fmt.Errorf("parse last_seen: %w", err)
	}
	a.Stats.Total = a.Stats.Approved + a.Stats.Escalated + a.Stats.Denied
	return &a, nil
}

var _ Registry = (*SQLRegistry)(nil)
