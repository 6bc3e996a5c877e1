// Package store is the persisted record boundary: SQLite-backed CRUD for
// access codes, video sessions, and session participants, plus a change
// feed delivering insert/update/delete notifications after each committed
// write.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"classgate/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS access_codes (
	code       TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'active',
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS video_sessions (
	id          TEXT PRIMARY KEY,
	room_name   TEXT NOT NULL,
	access_code TEXT NOT NULL,
	status      TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS session_participants (
	session_id     TEXT NOT NULL,
	participant_id TEXT NOT NULL,
	display_name   TEXT NOT NULL DEFAULT '',
	email          TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (session_id, participant_id)
);
`

// Store owns the database handle and the change feed. Any client may
// write to the shared participant records; there is no leader.
type Store struct {
	db   *sql.DB
	feed *feed
}

// Open connects with the busy-timeout and WAL settings SQLite needs for
// concurrent readers, then applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	log.Info().Str("module", "store").Str("path", path).Msg("store opened")
	return &Store{db: db, feed: newFeed()}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// --- access codes (codes.Store) ---

func (s *Store) LoadCodes(ctx context.Context) ([]*domain.AccessCode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT code, name, status, created_at FROM access_codes ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("load codes: %w", err)
	}
	defer rows.Close()

	var out []*domain.AccessCode
	for rows.Next() {
		var it domain.AccessCode
		var status string
		if err := rows.Scan(&it.Code, &it.Name, &status, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan code: %w", err)
		}
		it.Status = domain.CodeStatus(status)
		out = append(out, &it)
	}
	return out, rows.Err()
}

func (s *Store) InsertCodes(ctx context.Context, items []*domain.AccessCode) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, it := range items {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO access_codes (code, name, status, created_at) VALUES (?, ?, ?, ?)`,
				it.Code, it.Name, string(it.Status), it.CreatedAt,
			); err != nil {
				return fmt.Errorf("insert code %s: %w", it.Code, err)
			}
		}
		return nil
	})
}

func (s *Store) RenameCodes(ctx context.Context, names map[string]string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for code, name := range names {
			if _, err := tx.ExecContext(ctx,
				`UPDATE access_codes SET name = ? WHERE code = ?`, name, code,
			); err != nil {
				return fmt.Errorf("rename code %s: %w", code, err)
			}
		}
		return nil
	})
}

func (s *Store) SetCodeStatus(ctx context.Context, code string, status domain.CodeStatus) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE access_codes SET status = ? WHERE code = ?`, string(status), code,
	); err != nil {
		return fmt.Errorf("set status %s: %w", code, err)
	}
	return nil
}

func (s *Store) DeleteCodes(ctx context.Context, codeList []string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, code := range codeList {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM access_codes WHERE code = ?`, code,
			); err != nil {
				return fmt.Errorf("delete code %s: %w", code, err)
			}
		}
		return nil
	})
}

func (s *Store) ImportCodes(ctx context.Context, inserts []*domain.AccessCode, renames map[string]string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, it := range inserts {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO access_codes (code, name, status, created_at) VALUES (?, ?, ?, ?)`,
				it.Code, it.Name, string(it.Status), it.CreatedAt,
			); err != nil {
				return fmt.Errorf("import insert %s: %w", it.Code, err)
			}
		}
		for code, name := range renames {
			if _, err := tx.ExecContext(ctx,
				`UPDATE access_codes SET name = ? WHERE code = ?`, name, code,
			); err != nil {
				return fmt.Errorf("import rename %s: %w", code, err)
			}
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// --- video sessions ---

func (s *Store) CreateSession(ctx context.Context, sess *domain.VideoSession) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO video_sessions (id, room_name, access_code, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		string(sess.ID), string(sess.RoomName), sess.AccessCode, string(sess.Status), sess.StartedAt,
	); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	s.feed.publishSession(SessionChange{Kind: ChangeInsert, Session: *sess})
	return nil
}

func (s *Store) UpdateSessionStatus(ctx context.Context, id domain.SessionID, status domain.SessionStatus) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE video_sessions SET status = ? WHERE id = ?`, string(status), string(id),
	); err != nil {
		return fmt.Errorf("update session %s: %w", id, err)
	}
	sess, err := s.GetSession(ctx, id)
	if err == nil && sess != nil {
		s.feed.publishSession(SessionChange{Kind: ChangeUpdate, Session: *sess})
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.VideoSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, room_name, access_code, status, started_at FROM video_sessions WHERE id = ?`, string(id))
	var sess domain.VideoSession
	var sid, room, status string
	var started time.Time
	if err := row.Scan(&sid, &room, &sess.AccessCode, &status, &started); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	sess.ID = domain.SessionID(sid)
	sess.RoomName = domain.RoomName(room)
	sess.Status = domain.SessionStatus(status)
	sess.StartedAt = started
	return &sess, nil
}

// --- session participants ---

// AddParticipant upserts one participant record and notifies subscribers.
// Upsert keeps re-delivered join facts idempotent at the store level too.
func (s *Store) AddParticipant(ctx context.Context, sessionID domain.SessionID, p *domain.Participant) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO session_participants (session_id, participant_id, display_name, email)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (session_id, participant_id) DO UPDATE SET display_name = excluded.display_name, email = excluded.email`,
		string(sessionID), string(p.ID), p.DisplayName, p.Email,
	); err != nil {
		return fmt.Errorf("add participant %s: %w", p.ID, err)
	}
	s.feed.publishParticipant(ParticipantChange{
		Kind:      ChangeInsert,
		SessionID: sessionID,
		Participant: domain.Participant{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Email:       p.Email,
		},
	})
	return nil
}

func (s *Store) UpdateParticipantName(ctx context.Context, sessionID domain.SessionID, id domain.ParticipantID, displayName string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE session_participants SET display_name = ? WHERE session_id = ? AND participant_id = ?`,
		displayName, string(sessionID), string(id),
	); err != nil {
		return fmt.Errorf("update participant %s: %w", id, err)
	}
	s.feed.publishParticipant(ParticipantChange{
		Kind:        ChangeUpdate,
		SessionID:   sessionID,
		Participant: domain.Participant{ID: id, DisplayName: displayName},
	})
	return nil
}

func (s *Store) RemoveParticipant(ctx context.Context, sessionID domain.SessionID, id domain.ParticipantID) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM session_participants WHERE session_id = ? AND participant_id = ?`,
		string(sessionID), string(id),
	); err != nil {
		return fmt.Errorf("remove participant %s: %w", id, err)
	}
	s.feed.publishParticipant(ParticipantChange{
		Kind:        ChangeDelete,
		SessionID:   sessionID,
		Participant: domain.Participant{ID: id},
	})
	return nil
}

// --- change feed ---

// SubscribeParticipants delivers participant changes for one session.
func (s *Store) SubscribeParticipants(sessionID domain.SessionID) *ParticipantSub {
	return s.feed.subscribeParticipants(sessionID)
}

// SubscribeSessions delivers session changes for one room.
func (s *Store) SubscribeSessions(room domain.RoomName) *SessionSub {
	return s.feed.subscribeSessions(room)
}

// ParticipantChanges is SubscribeParticipants in channel-and-cancel form,
// which is what consumers that own the subscription lifetime want.
func (s *Store) ParticipantChanges(sessionID domain.SessionID) (<-chan ParticipantChange, func()) {
	sub := s.feed.subscribeParticipants(sessionID)
	return sub.C, sub.Unsubscribe
}
