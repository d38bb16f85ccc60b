// Package store records sessions and their scores in SQLite
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/teslashibe/go-handscore/internal/scoring"
	"github.com/teslashibe/go-handscore/internal/session"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUnknownSession is returned when a session ID has no row
var ErrUnknownSession = errors.New("store: unknown session")

// DB is a session/score database
type DB struct {
	*sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at path and applies migrations.
// Use ":memory:" for a throwaway database.
func Open(path string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// a single connection keeps :memory: databases shared and serialises writers
	sqlDB.SetMaxOpenConns(1)

	if err := applyPragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	db := &DB{DB: sqlDB, logger: logger}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func applyPragmas(db *sql.DB) error {
	for _, p := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("apply %q: %w", p, err)
		}
	}
	return nil
}

// MigrateUp runs all pending migrations
func (db *DB) MigrateUp() error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: that would close the shared connection

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the schema version, 0 when nothing is applied
func (db *DB) MigrateVersion() (uint, bool, error) {
	m, err := db.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (db *DB) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{logger: db.logger}
	return m, nil
}

// migrateLogger routes migrate output to slog
type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf("[migrate] "+format, v...))
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// Name identifies the store as a sink
func (db *DB) Name() string {
	return "store"
}

// RecordSession upserts the session row for a state change. Entering Idle
// closes the episode.
func (db *DB) RecordSession(snap session.Snapshot, at time.Time) error {
	if snap.SessionID == "" {
		return nil
	}
	ts := unixSeconds(at)

	_, err := db.Exec(`
		INSERT OR IGNORE INTO sessions (session_id, started_at, last_state, reference_len)
		VALUES (?, ?, ?, ?)`,
		snap.SessionID, ts, snap.State.String(), snap.ReferenceLen)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	if snap.State == session.Idle {
		_, err = db.Exec(`UPDATE sessions SET last_state = ?, ended_at = ? WHERE session_id = ?`,
			snap.State.String(), ts, snap.SessionID)
	} else {
		_, err = db.Exec(`UPDATE sessions SET last_state = ?, ended_at = NULL WHERE session_id = ?`,
			snap.State.String(), snap.SessionID)
	}
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// Write inserts one score, creating its session row if needed
func (db *DB) Write(s scoring.Score) error {
	id := s.SessionID
	if id == "" {
		id = "unscoped"
	}
	ts := unixSeconds(s.Timestamp)

	_, err := db.Exec(`
		INSERT OR IGNORE INTO sessions (session_id, started_at, last_state)
		VALUES (?, ?, ?)`, id, ts, session.Scoring.String())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO scores (
			session_id, ts, frame_index, reference_index,
			final_score, seq_sim, inst_sim, dtw_multi,
			per_thumb, per_index, per_middle, per_ring, per_pinky,
			inst_thumb, inst_index, inst_middle, inst_ring, inst_pinky
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ts, int64(s.FrameIndex), s.ReferenceIndex,
		s.Combined, s.Sequence, s.Instantaneous, s.RawDistance,
		s.JointSequence[0], s.JointSequence[1], s.JointSequence[2], s.JointSequence[3], s.JointSequence[4],
		s.PerJoint[0], s.PerJoint[1], s.PerJoint[2], s.PerJoint[3], s.PerJoint[4],
	)
	if err != nil {
		return fmt.Errorf("insert score: %w", err)
	}
	return nil
}

// Session is one recorded episode
type Session struct {
	ID           string     `json:"session_id"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	LastState    string     `json:"last_state"`
	ReferenceLen int        `json:"reference_len"`
	Scores       int        `json:"scores"`
	MeanCombined float64    `json:"mean_combined"`
}

// Sessions lists recorded sessions, newest first
func (db *DB) Sessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT s.session_id, s.started_at, s.ended_at, s.last_state, s.reference_len,
		       COUNT(sc.score_id), COALESCE(AVG(sc.final_score), 0)
		FROM sessions s
		LEFT JOIN scores sc ON sc.session_id = s.session_id
		GROUP BY s.session_id
		ORDER BY s.started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			s       Session
			started float64
			ended   sql.NullFloat64
		)
		if err := rows.Scan(&s.ID, &started, &ended, &s.LastState, &s.ReferenceLen, &s.Scores, &s.MeanCombined); err != nil {
			return nil, err
		}
		s.StartedAt = fromUnixSeconds(started)
		if ended.Valid {
			t := fromUnixSeconds(ended.Float64)
			s.EndedAt = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Scores returns a session's scores in time order
func (db *DB) Scores(sessionID string) ([]scoring.Score, error) {
	var exists int
	err := db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE session_id = ?`, sessionID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}

	rows, err := db.Query(`
		SELECT ts, frame_index, reference_index, final_score, seq_sim, inst_sim, dtw_multi,
		       per_thumb, per_index, per_middle, per_ring, per_pinky,
		       inst_thumb, inst_index, inst_middle, inst_ring, inst_pinky
		FROM scores WHERE session_id = ? ORDER BY ts, score_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scoring.Score
	for rows.Next() {
		var (
			s     scoring.Score
			ts    float64
			frame int64
		)
		if err := rows.Scan(&ts, &frame, &s.ReferenceIndex,
			&s.Combined, &s.Sequence, &s.Instantaneous, &s.RawDistance,
			&s.JointSequence[0], &s.JointSequence[1], &s.JointSequence[2], &s.JointSequence[3], &s.JointSequence[4],
			&s.PerJoint[0], &s.PerJoint[1], &s.PerJoint[2], &s.PerJoint[3], &s.PerJoint[4]); err != nil {
			return nil, err
		}
		s.SessionID = sessionID
		s.Timestamp = fromUnixSeconds(ts)
		s.FrameIndex = uint64(frame)
		out = append(out, s)
	}
	return out, rows.Err()
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(f float64) time.Time {
	return time.Unix(0, int64(f*1e9))
}
