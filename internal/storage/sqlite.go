// Package storage archives ended sessions to sqlite. Live sessions are
// in-memory only; a whole session is written in one transaction when it
// closes, and read back by the REST API.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/streamnote/streamnote/internal/session"
	"github.com/streamnote/streamnote/internal/transcript"
)

type Session struct {
	ID        string     `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Segments  int        `json:"segments"`
	Summaries int        `json:"summaries"`
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "streamnote.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			ended_at TEXT
		);
	`); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS segments (
			session_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			speaker TEXT NOT NULL,
			text TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			PRIMARY KEY(session_id, idx),
			FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create segments table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS summaries (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			text TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			range_start INTEGER NOT NULL,
			range_end INTEGER NOT NULL,
			PRIMARY KEY(session_id, seq),
			FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create summaries table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)"); err != nil {
		return fmt.Errorf("create sessions index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ArchiveSession writes the whole ended session atomically. Only final
// segments should be passed; an open interim at close time has no place
// in the archive.
func (s *SQLiteStore) ArchiveSession(id string, startedAt, endedAt time.Time, segments []transcript.Segment, summaries []session.Summary) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("session id is required")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO sessions(id, started_at, ended_at) VALUES(?, ?, ?)`,
		id,
		startedAt.UTC().Format(time.RFC3339Nano),
		endedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("archive session %s: %w", id, err)
	}

	for _, seg := range segments {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO segments(session_id, idx, speaker, text, timestamp) VALUES(?, ?, ?, ?, ?)`,
			id,
			seg.Index,
			seg.Speaker,
			strings.TrimSpace(seg.Text),
			seg.Timestamp.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("archive segment %d for session %s: %w", seg.Index, id, err)
		}
	}

	for i, sum := range summaries {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO summaries(session_id, seq, text, timestamp, range_start, range_end) VALUES(?, ?, ?, ?, ?, ?)`,
			id,
			i,
			sum.Text,
			sum.Timestamp.UTC().Format(time.RFC3339Nano),
			sum.RangeStart,
			sum.RangeEnd,
		); err != nil {
			return fmt.Errorf("archive summary %d for session %s: %w", i, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive tx for session %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) GetSessionsByDate(date string) ([]Session, error) {
	rows, err := s.db.Query(
		`SELECT s.id, s.started_at, s.ended_at,
		        (SELECT COUNT(*) FROM segments WHERE session_id = s.id),
		        (SELECT COUNT(*) FROM summaries WHERE session_id = s.id)
		 FROM sessions s
		 WHERE substr(s.started_at, 1, 10) = ?
		 ORDER BY s.started_at DESC`,
		date,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions by date %s: %w", date, err)
	}
	defer func() { _ = rows.Close() }()

	return scanSessions(rows)
}

func (s *SQLiteStore) GetDates() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT substr(started_at, 1, 10) AS date FROM sessions ORDER BY date DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query dates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan date: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dates rows: %w", err)
	}

	return dates, nil
}

func (s *SQLiteStore) GetSession(id string) (Session, error) {
	row := s.db.QueryRow(
		`SELECT s.id, s.started_at, s.ended_at,
		        (SELECT COUNT(*) FROM segments WHERE session_id = s.id),
		        (SELECT COUNT(*) FROM summaries WHERE session_id = s.id)
		 FROM sessions s WHERE s.id = ?`,
		id,
	)

	sess, err := scanSession(row.Scan)
	if err != nil {
		return Session{}, fmt.Errorf("query session %s: %w", id, err)
	}
	return sess, nil
}

func (s *SQLiteStore) GetSegments(sessionID string) ([]transcript.Segment, error) {
	rows, err := s.db.Query(
		`SELECT idx, speaker, text, timestamp
		 FROM segments
		 WHERE session_id = ?
		 ORDER BY idx ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query segments for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	segments := make([]transcript.Segment, 0, 32)
	for rows.Next() {
		var seg transcript.Segment
		var ts string
		if err := rows.Scan(&seg.Index, &seg.Speaker, &seg.Text, &ts); err != nil {
			return nil, fmt.Errorf("scan segment for session %s: %w", sessionID, err)
		}

		parsedTS, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse segment timestamp for session %s: %w", sessionID, err)
		}
		seg.Timestamp = parsedTS
		seg.Final = true

		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate segment rows for session %s: %w", sessionID, err)
	}

	return segments, nil
}

func (s *SQLiteStore) GetSummaries(sessionID string) ([]session.Summary, error) {
	rows, err := s.db.Query(
		`SELECT text, timestamp, range_start, range_end
		 FROM summaries
		 WHERE session_id = ?
		 ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query summaries for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	summaries := make([]session.Summary, 0, 8)
	for rows.Next() {
		var sum session.Summary
		var ts string
		if err := rows.Scan(&sum.Text, &ts, &sum.RangeStart, &sum.RangeEnd); err != nil {
			return nil, fmt.Errorf("scan summary for session %s: %w", sessionID, err)
		}

		parsedTS, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse summary timestamp for session %s: %w", sessionID, err)
		}
		sum.Timestamp = parsedTS

		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary rows for session %s: %w", sessionID, err)
	}

	return summaries, nil
}

func scanSession(scan func(...any) error) (Session, error) {
	var sess Session
	var startedAt string
	var endedAt sql.NullString
	if err := scan(&sess.ID, &startedAt, &endedAt, &sess.Segments, &sess.Summaries); err != nil {
		return Session{}, err
	}

	parsedStart, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return Session{}, fmt.Errorf("parse started_at: %w", err)
	}
	sess.StartedAt = parsedStart

	if endedAt.Valid {
		parsedEnd, err := time.Parse(time.RFC3339Nano, endedAt.String)
		if err != nil {
			return Session{}, fmt.Errorf("parse ended_at: %w", err)
		}
		sess.EndedAt = &parsedEnd
	}

	return sess, nil
}

func scanSessions(rows *sql.Rows) ([]Session, error) {
	sessions := make([]Session, 0, 16)
	for rows.Next() {
		sess, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions rows: %w", err)
	}

	return sessions, nil
}
