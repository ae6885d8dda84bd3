// Package sqlite persists conversation transcripts in a SQLite database so
// threads survive process restarts.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"query-assistant/internal/application/port/output"
	"query-assistant/internal/domain/entity"
	"query-assistant/internal/infrastructure/store/threadlock"

	// SQLite driver (required for database/sql registration).
	_ "github.com/mattn/go-sqlite3"
)

var _ output.ConversationStore = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS threads (
	agent      TEXT NOT NULL,
	thread_id  TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (agent, thread_id)
);

CREATE TABLE IF NOT EXISTS turns (
	agent        TEXT NOT NULL,
	thread_id    TEXT NOT NULL,
	seq          INTEGER NOT NULL,
	role         TEXT NOT NULL,
	content      TEXT NOT NULL DEFAULT '',
	tool_calls   TEXT,
	tool_call_id TEXT NOT NULL DEFAULT '',
	name         TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL,
	PRIMARY KEY (agent, thread_id, seq),
	FOREIGN KEY (agent, thread_id) REFERENCES threads (agent, thread_id)
);
`

type Store struct {
	db    *sql.DB
	locks *threadlock.Locks[entity.ThreadKey]
	now   func() time.Time
}

// Open opens (and creates if needed) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time keeps check-then-append transactions serialized.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{
		db:    db,
		locks: threadlock.New[entity.ThreadKey](),
		now:   time.Now,
	}, nil
}

func (s *Store) Lock(ctx context.Context, key entity.ThreadKey) (func(), error) {
	return s.locks.Lock(ctx, key)
}

func (s *Store) GetOrCreate(ctx context.Context, key entity.ThreadKey, seed []entity.Message, turns ...entity.Message) (entity.Transcript, bool, error) {
	if err := validate(turns); err != nil {
		return nil, false, err
	}

	var (
		transcript entity.Transcript
		created    bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		n, err := countTurns(ctx, tx, key)
		if err != nil {
			return err
		}

		batch := turns
		if n == 0 {
			if err := validate(seed); err != nil {
				return err
			}
			created = true
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO threads (agent, thread_id, created_at) VALUES (?, ?, ?)`,
				string(key.Agent), string(key.ID), s.now().UTC(),
			); err != nil {
				return fmt.Errorf("insert thread: %w", err)
			}
			batch = append(append([]entity.Message{}, seed...), turns...)
		}

		if err := s.insertTurns(ctx, tx, key, n, batch); err != nil {
			return err
		}

		transcript, err = loadTurns(ctx, tx, key)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return transcript, created, nil
}

func (s *Store) Get(ctx context.Context, key entity.ThreadKey) (entity.Transcript, error) {
	return loadTurns(ctx, s.db, key)
}

func (s *Store) Append(ctx context.Context, key entity.ThreadKey, turns ...entity.Message) error {
	if err := validate(turns); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		n, err := countTurns(ctx, tx, key)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", output.ErrThreadNotFound, key)
		}
		return s.insertTurns(ctx, tx, key, n, turns)
	})
}

func (s *Store) IsNew(ctx context.Context, key entity.ThreadKey) (bool, error) {
	n, err := countTurns(ctx, s.db, key)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type toolCallRow struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

func countTurns(ctx context.Context, q queryer, key entity.ThreadKey) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM turns WHERE agent = ? AND thread_id = ?`,
		string(key.Agent), string(key.ID),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count turns: %w", err)
	}
	return n, nil
}

func (s *Store) insertTurns(ctx context.Context, tx *sql.Tx, key entity.ThreadKey, start int, turns []entity.Message) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO turns (agent, thread_id, seq, role, content, tool_calls, tool_call_id, name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := s.now().UTC()
	for i, m := range turns {
		var calls sql.NullString
		if len(m.ToolCalls) > 0 {
			rows := make([]toolCallRow, len(m.ToolCalls))
			for j, tc := range m.ToolCalls {
				rows[j] = toolCallRow{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments}
			}
			data, err := json.Marshal(rows)
			if err != nil {
				return fmt.Errorf("encode tool calls: %w", err)
			}
			calls = sql.NullString{String: string(data), Valid: true}
		}

		if _, err := stmt.ExecContext(ctx,
			string(key.Agent), string(key.ID), start+i,
			string(m.Role), m.Content, calls, m.ToolCallID, m.Name, now,
		); err != nil {
			return fmt.Errorf("insert turn %d: %w", start+i, err)
		}
	}
	return nil
}

func loadTurns(ctx context.Context, q queryer, key entity.ThreadKey) (entity.Transcript, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT role, content, tool_calls, tool_call_id, name
		FROM turns
		WHERE agent = ? AND thread_id = ?
		ORDER BY seq`,
		string(key.Agent), string(key.ID),
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var transcript entity.Transcript
	for rows.Next() {
		var (
			m     entity.Message
			role  string
			calls sql.NullString
		)
		if err := rows.Scan(&role, &m.Content, &calls, &m.ToolCallID, &m.Name); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		m.Role = entity.MessageRole(role)

		if calls.Valid && calls.String != "" {
			var decoded []toolCallRow
			if err := json.Unmarshal([]byte(calls.String), &decoded); err != nil {
				return nil, fmt.Errorf("decode tool calls: %w", err)
			}
			for _, tc := range decoded {
				m.ToolCalls = append(m.ToolCalls, entity.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
			}
		}
		transcript = append(transcript, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return transcript, nil
}

func validate(turns []entity.Message) error {
	for i, m := range turns {
		if !m.Role.Valid() {
			return fmt.Errorf("%w: turn %d has role %q", output.ErrInvalidTurn, i, m.Role)
		}
	}
	return nil
}
