package logs

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"logvault/cmd/internal/ids"
)

// PostgresStore persists log entries in PostgreSQL.
//
// The pool is owned by the caller. Entry ids are ULIDs minted in process, so
// ordering by id is ordering by creation.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
	ids    *ids.Generator
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the DB schema used by this store (default: "logvault").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("logs: empty schema")
		}
		if !pgIdentRE.MatchString(schema) {
			return fmt.Errorf("logs: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "logvault",
		ids:    ids.NewGenerator(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("logs: nil pool")
	}
	return st, nil
}

// EnsureSchema creates the schema, the log_entries table and its owner index.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	entries := pgIdent(s.schema, "log_entries")

	ddl := fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS %s;

CREATE TABLE IF NOT EXISTS %s (
  id TEXT NOT NULL,
  owner TEXT NOT NULL,
  message TEXT NOT NULL,
  level TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

  CONSTRAINT pk_log_entries_id PRIMARY KEY (id),
  CONSTRAINT chk_log_entries_owner_not_blank CHECK (char_length(owner) > 0),
  CONSTRAINT chk_log_entries_message_not_blank CHECK (char_length(message) > 0),
  CONSTRAINT chk_log_entries_level_not_blank CHECK (char_length(level) > 0)
);

CREATE INDEX IF NOT EXISTS idx_log_entries_owner_id ON %s (owner, id);
`, pgx.Identifier{s.schema}.Sanitize(), entries, entries)

	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("logs: ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, in AppendInput) (LogEntry, error) {
	const op = "logs.Append"

	if err := checkAppend(in); err != nil {
		return LogEntry{}, err
	}
	if err := ctx.Err(); err != nil {
		return LogEntry{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	// Postgres stores microseconds; truncate so the returned entry matches a later read.
	now = now.UTC().Truncate(time.Microsecond)

	id, err := s.ids.New(now)
	if err != nil {
		return LogEntry{}, fmt.Errorf("%s: new id: %w", op, err)
	}

	entries := pgIdent(s.schema, "log_entries")
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO `+entries+` (id, owner, message, level, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, in.Owner, in.Message, in.Level, now,
	); err != nil {
		return LogEntry{}, fmt.Errorf("%s: %w", op, err)
	}

	return LogEntry{
		ID:        id,
		Message:   in.Message,
		Level:     in.Level,
		Owner:     in.Owner,
		CreatedAt: now,
	}, nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, in ListInput) (ListResult, error) {
	const op = "logs.ListByOwner"

	if in.Owner == "" {
		return ListResult{}, missing("owner")
	}
	if in.Limit < 0 {
		return ListResult{}, ErrInvalidLimit
	}
	if err := ctx.Err(); err != nil {
		return ListResult{}, err
	}
	limit := clampLimit(in.Limit)

	entries := pgIdent(s.schema, "log_entries")
	query := `SELECT id, message, level, owner, created_at
	            FROM ` + entries + `
	           WHERE owner = $1 AND id > $2
	           ORDER BY id ASC`
	args := []any{in.Owner, in.After}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit+1)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return ListResult{}, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]LogEntry, 0, 16)
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.Message, &e.Level, &e.Owner, &e.CreatedAt); err != nil {
			return ListResult{}, fmt.Errorf("%s: scan: %w", op, err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, fmt.Errorf("%s: %w", op, err)
	}

	hasMore := limit > 0 && len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	return ListResult{Entries: out, HasMore: hasMore}, nil
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}
