package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/playperu/motionquiz/internal/motionquiz"
)

// SQLite implements Store on per-entity tables whose rows carry the full
// document in a JSONB data column, next to the columns needed for lookups
// and uniqueness. The schema lives in internal/migrations.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// Generic helpers.

func (s *SQLite) get(ctx context.Context, query string, dest any, args ...any) error {
	var data string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return motionquiz.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

func list[T any](ctx context.Context, db *sql.DB, query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// exec runs a write and reports ErrNotFound when no row matched.
func (s *SQLite) exec(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return motionquiz.ErrNotFound
	}
	return nil
}

func encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Sessions.

func (s *SQLite) CreateSession(ctx context.Context, sess motionquiz.Session, questions []motionquiz.Question) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	data, err := encode(sess)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, room_id, status, data) VALUES (?, ?, ?, jsonb(?))`,
		sess.ID, sess.RoomID, string(sess.Status), data,
	); err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}

	for _, q := range questions {
		data, err := encode(q)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO questions (id, session_id, position, data) VALUES (?, ?, ?, jsonb(?))`,
			q.ID, sess.ID, q.Position, data,
		); err != nil {
			return fmt.Errorf("inserting question %d: %w", q.Position, err)
		}
	}

	return tx.Commit()
}

func (s *SQLite) GetSession(ctx context.Context, id string) (motionquiz.Session, error) {
	var sess motionquiz.Session
	err := s.get(ctx, `SELECT json(data) FROM sessions WHERE id = ?`, &sess, id)
	return sess, err
}

func (s *SQLite) UpdateSession(ctx context.Context, sess motionquiz.Session) error {
	data, err := encode(sess)
	if err != nil {
		return err
	}
	return s.exec(ctx,
		`UPDATE sessions SET room_id = ?, status = ?, data = jsonb(?) WHERE id = ?`,
		sess.RoomID, string(sess.Status), data, sess.ID,
	)
}

func (s *SQLite) ListQuestions(ctx context.Context, sessionID string) ([]motionquiz.Question, error) {
	return list[motionquiz.Question](ctx, s.db,
		`SELECT json(data) FROM questions WHERE session_id = ? ORDER BY position`, sessionID)
}

// Rounds.

func (s *SQLite) CreateRound(ctx context.Context, r motionquiz.Round) error {
	data, err := encode(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rounds (id, session_id, number, data) VALUES (?, ?, ?, jsonb(?))`,
		r.ID, r.SessionID, r.Number, data,
	)
	return err
}

func (s *SQLite) GetRound(ctx context.Context, id string) (motionquiz.Round, error) {
	var r motionquiz.Round
	err := s.get(ctx, `SELECT json(data) FROM rounds WHERE id = ?`, &r, id)
	return r, err
}

func (s *SQLite) UpdateRound(ctx context.Context, r motionquiz.Round) error {
	data, err := encode(r)
	if err != nil {
		return err
	}
	return s.exec(ctx, `UPDATE rounds SET data = jsonb(?) WHERE id = ?`, data, r.ID)
}

func (s *SQLite) ListRounds(ctx context.Context, sessionID string) ([]motionquiz.Round, error) {
	return list[motionquiz.Round](ctx, s.db,
		`SELECT json(data) FROM rounds WHERE session_id = ? ORDER BY number`, sessionID)
}

// Responses.

func (s *SQLite) CreateResponse(ctx context.Context, r motionquiz.Response) error {
	data, err := encode(r)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO responses (id, session_id, round_id, user_id, data) VALUES (?, ?, ?, ?, jsonb(?))
		 ON CONFLICT(round_id, user_id) DO NOTHING`,
		r.ID, r.SessionID, r.RoundID, r.UserID, data,
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return motionquiz.ErrDuplicateResponse
	}
	return nil
}

func (s *SQLite) ListResponses(ctx context.Context, sessionID string) ([]motionquiz.Response, error) {
	return list[motionquiz.Response](ctx, s.db,
		`SELECT json(data) FROM responses WHERE session_id = ? ORDER BY rowid`, sessionID)
}

// Scores.

func (s *SQLite) CreateScore(ctx context.Context, sc motionquiz.Score) error {
	data, err := encode(sc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scores (session_id, user_id, data) VALUES (?, ?, jsonb(?))`,
		sc.SessionID, sc.UserID, data,
	)
	return err
}

func (s *SQLite) UpdateScore(ctx context.Context, sc motionquiz.Score) error {
	data, err := encode(sc)
	if err != nil {
		return err
	}
	return s.exec(ctx,
		`UPDATE scores SET data = jsonb(?) WHERE session_id = ? AND user_id = ?`,
		data, sc.SessionID, sc.UserID,
	)
}

func (s *SQLite) ListScores(ctx context.Context, sessionID string) ([]motionquiz.Score, error) {
	return list[motionquiz.Score](ctx, s.db,
		`SELECT json(data) FROM scores WHERE session_id = ? ORDER BY json_extract(data, '$.seq')`, sessionID)
}
