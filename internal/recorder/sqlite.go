package recorder

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rdavidhalljr/weekly-allocator/internal/logger"
	"github.com/rdavidhalljr/weekly-allocator/internal/refresh"
)

// SQLiteRecorder persists cycles, their scores and display prices to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log *logger.Logger
}

// NewSQLiteRecorder opens (or creates) the database at path and runs migrations.
func NewSQLiteRecorder(path string, log *logger.Logger) (*SQLiteRecorder, error) {
	if log == nil {
		log = logger.Nop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Infof("sqlite recorder opened: %s", path)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cycles (
			id              TEXT PRIMARY KEY,
			started_at      INTEGER NOT NULL,
			finished_at     INTEGER NOT NULL,
			provider        TEXT NOT NULL,
			market          TEXT,
			weight_slope    REAL NOT NULL,
			weight_momentum REAL NOT NULL,
			weight_recent   REAL NOT NULL,
			recommendation  TEXT,
			failures        TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS scores (
			cycle_id   TEXT NOT NULL REFERENCES cycles(id),
			symbol     TEXT NOT NULL,
			position   INTEGER,
			composite  REAL,
			trend      REAL,
			momentum   REAL,
			recent     REAL,
			points     INTEGER NOT NULL,
			rsi        REAL,
			PRIMARY KEY (cycle_id, symbol)
		)`,
		`CREATE TABLE IF NOT EXISTS prices (
			cycle_id TEXT NOT NULL REFERENCES cycles(id),
			symbol   TEXT NOT NULL,
			value    REAL,
			source   TEXT,
			as_of    INTEGER,
			PRIMARY KEY (cycle_id, symbol)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_started ON cycles(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_symbol ON scores(symbol)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(s), err)
		}
	}
	return nil
}

// RecordCycle writes snap and its per-symbol rows in one transaction
func (r *SQLiteRecorder) RecordCycle(snap *refresh.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var failures any
	if len(snap.Failures) > 0 {
		data, err := json.Marshal(snap.Failures)
		if err != nil {
			return fmt.Errorf("encode failures: %w", err)
		}
		failures = string(data)
	}
	var recommendation any
	if snap.Result.HasRecommendation {
		recommendation = snap.Result.Recommendation
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO cycles
		(id, started_at, finished_at, provider, market,
		 weight_slope, weight_momentum, weight_recent, recommendation, failures)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		snap.ID.String(), snap.StartedAt.UnixNano(), snap.FinishedAt.UnixNano(),
		snap.Provider, snap.Market,
		snap.Weights.Slope, snap.Weights.Momentum, snap.Weights.Recent,
		recommendation, failures,
	)
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}

	positions := make(map[string]int, len(snap.Result.Ranking))
	for _, e := range snap.Result.Ranking {
		positions[e.Symbol] = e.Position
	}

	for _, s := range snap.Result.Scores {
		var composite, position any
		if s.Scoreable() {
			composite = s.Composite
			position = positions[s.Symbol]
		}
		_, err := tx.Exec(`INSERT INTO scores
			(cycle_id, symbol, position, composite, trend, momentum, recent, points, rsi)
			VALUES (?,?,?,?,?,?,?,?,?)`,
			snap.ID.String(), s.Symbol, position, composite,
			s.Trend, s.Momentum, s.Recent, s.Points, s.RSI,
		)
		if err != nil {
			return fmt.Errorf("insert score %s: %w", s.Symbol, err)
		}
	}

	for _, p := range snap.Result.Prices {
		var value, asOf any
		if p.Value != nil {
			value = *p.Value
		}
		if p.AsOf != nil {
			asOf = p.AsOf.Unix()
		}
		_, err := tx.Exec(`INSERT INTO prices (cycle_id, symbol, value, source, as_of)
			VALUES (?,?,?,?,?)`,
			snap.ID.String(), p.Symbol, value, string(p.Source), asOf,
		)
		if err != nil {
			return fmt.Errorf("insert price %s: %w", p.Symbol, err)
		}
	}

	return tx.Commit()
}

// RecentCycles lists up to limit cycles, newest first
func (r *SQLiteRecorder) RecentCycles(limit int) ([]CycleSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(`SELECT id, started_at, finished_at, provider, market,
			recommendation, failures
		FROM cycles ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	var out []CycleSummary
	for rows.Next() {
		var (
			c                     CycleSummary
			started, finished     int64
			market, rec, failures sql.NullString
		)
		if err := rows.Scan(&c.ID, &started, &finished, &c.Provider, &market, &rec, &failures); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		c.StartedAt = time.Unix(0, started)
		c.Duration = time.Duration(finished - started)
		c.Market = market.String
		c.Recommendation = rec.String
		if failures.Valid {
			var m map[string]string
			if err := json.Unmarshal([]byte(failures.String), &m); err == nil {
				c.Failures = len(m)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SymbolHistory returns the composite scores recorded for symbol, newest first.
// Cycles where the symbol could not be scored are omitted.
func (r *SQLiteRecorder) SymbolHistory(symbol string, limit int) ([]ScorePoint, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(`SELECT c.started_at, s.composite, s.position
		FROM scores s JOIN cycles c ON c.id = s.cycle_id
		WHERE s.symbol = ? AND s.composite IS NOT NULL
		ORDER BY c.started_at DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer rows.Close()

	var out []ScorePoint
	for rows.Next() {
		var (
			p       ScorePoint
			started int64
		)
		if err := rows.Scan(&started, &p.Composite, &p.Position); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		p.At = time.Unix(0, started)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info("closing sqlite recorder")
	return r.db.Close()
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' || i >= 40 {
			return s[:i]
		}
	}
	return s
}
