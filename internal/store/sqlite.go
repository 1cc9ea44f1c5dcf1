package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/hearing-sync/internal/dedup"
	"github.com/sells-group/hearing-sync/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, nowFunc: utcNow}, nil
}

func utcNow() time.Time { return time.Now().UTC() }

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS hearings_unified (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	congress_api_id      TEXT,
	committee_source_id  TEXT,
	committee_code       TEXT NOT NULL,
	hearing_title        TEXT NOT NULL,
	hearing_date         TEXT NOT NULL,
	hearing_type         TEXT NOT NULL DEFAULT '',
	meeting_status       TEXT NOT NULL DEFAULT '',
	hearing_time         TEXT NOT NULL DEFAULT '',
	location_room        TEXT NOT NULL DEFAULT '',
	location_building    TEXT NOT NULL DEFAULT '',
	url                  TEXT NOT NULL DEFAULT '',
	source_api           BOOLEAN NOT NULL DEFAULT 0,
	source_website       BOOLEAN NOT NULL DEFAULT 0,
	last_api_sync        DATETIME,
	last_website_sync    DATETIME,
	sync_confidence      REAL NOT NULL DEFAULT 0,
	streams              TEXT NOT NULL DEFAULT '{}',
	documents            TEXT NOT NULL DEFAULT '[]',
	witnesses            TEXT NOT NULL DEFAULT '[]',
	external_urls        TEXT NOT NULL DEFAULT '[]',
	sync_status          TEXT NOT NULL DEFAULT 'synced',
	extraction_status    TEXT NOT NULL DEFAULT 'not_started',
	transcription_status TEXT NOT NULL DEFAULT 'not_started',
	review_status        TEXT NOT NULL DEFAULT 'pending',
	created_at           DATETIME NOT NULL,
	updated_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	hearing_id  INTEGER NOT NULL REFERENCES hearings_unified(id),
	sync_source TEXT NOT NULL,
	sync_type   TEXT NOT NULL,
	changes     TEXT NOT NULL DEFAULT '{}',
	synced_at   DATETIME NOT NULL,
	success     BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS sync_config (
	committee_code       TEXT PRIMARY KEY,
	priority_level       INTEGER NOT NULL DEFAULT 3,
	api_enabled          BOOLEAN NOT NULL DEFAULT 1,
	website_enabled      BOOLEAN NOT NULL DEFAULT 0,
	sync_frequency_hours INTEGER NOT NULL DEFAULT 24,
	active               BOOLEAN NOT NULL DEFAULT 1,
	auto_merge_threshold REAL NOT NULL DEFAULT 0,
	review_threshold     REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sync_metrics (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id              TEXT NOT NULL,
	committee_code      TEXT NOT NULL,
	source              TEXT NOT NULL,
	hearings_discovered INTEGER NOT NULL DEFAULT 0,
	hearings_updated    INTEGER NOT NULL DEFAULT 0,
	errors              INTEGER NOT NULL DEFAULT 0,
	execution_time_ms   INTEGER NOT NULL DEFAULT 0,
	success_rate        REAL NOT NULL DEFAULT 0,
	success             BOOLEAN NOT NULL DEFAULT 0,
	recorded_at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_hearings_committee_date ON hearings_unified(committee_code, hearing_date);
CREATE INDEX IF NOT EXISTS idx_hearings_congress_api_id ON hearings_unified(congress_api_id);
CREATE INDEX IF NOT EXISTS idx_hearings_sync_status ON hearings_unified(sync_status);
CREATE INDEX IF NOT EXISTS idx_sync_history_hearing ON sync_history(hearing_id);
CREATE INDEX IF NOT EXISTS idx_sync_history_synced_at ON sync_history(synced_at);
CREATE INDEX IF NOT EXISTS idx_sync_metrics_recorded_at ON sync_metrics(recorded_at);
CREATE INDEX IF NOT EXISTS idx_sync_metrics_committee_source ON sync_metrics(committee_code, source);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction, rolling back on error.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

func (s *SQLiteStore) Insert(ctx context.Context, rec model.HearingRecord, source model.Source) (int64, error) {
	now := s.nowFunc()
	rec, err := prepareInsert(rec, source, now)
	if err != nil {
		return 0, err
	}
	values, err := hearingValues(rec)
	if err != nil {
		return 0, err
	}

	query := `INSERT INTO hearings_unified (` + strings.Join(insertColumns, ", ") + `) VALUES (` +
		placeholders(len(insertColumns)) + `)`

	var id int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, values...)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert hearing")
		}
		if id, err = res.LastInsertId(); err != nil {
			return eris.Wrap(err, "sqlite: last insert id")
		}
		return insertHistorySQLite(ctx, tx, id, string(source), model.SyncTypeCreate, createChanges(rec), now)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id int64, upd model.HearingUpdate, source model.Source) error {
	if !source.Valid() {
		return eris.Errorf("sqlite: unknown source %q", source)
	}
	now := s.nowFunc()
	sets, err := updateAssignments(upd)
	if err != nil {
		return err
	}
	sets = append(sets, provenanceAssignments(source, now)...)
	sets = append(sets, assignment{"updated_at", now})

	clauses := make([]string, 0, len(sets))
	args := make([]any, 0, len(sets)+1)
	for _, a := range sets {
		clauses = append(clauses, a.column+" = ?")
		args = append(args, a.value)
	}
	args = append(args, id)
	query := `UPDATE hearings_unified SET ` + strings.Join(clauses, ", ") + ` WHERE id = ?`

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return eris.Wrapf(err, "sqlite: update hearing %d", id)
		}
		if err := checkRowsAffected(res, id); err != nil {
			return err
		}
		return insertHistorySQLite(ctx, tx, id, string(source), model.SyncTypeUpdate, upd.Changes(), now)
	})
}

func (s *SQLiteStore) Get(ctx context.Context, id int64) (*model.HearingRecord, error) {
	return getHearingSQLite(ctx, s.db, id)
}

type sqlQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getHearingSQLite(ctx context.Context, q sqlQuerier, id int64) (*model.HearingRecord, error) {
	row := q.QueryRowContext(ctx, `SELECT `+hearingSelectList+` FROM hearings_unified WHERE id = ?`, id)
	h, err := scanHearing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get hearing %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get hearing %d", id)
	}
	return h, nil
}

func (s *SQLiteStore) ListRecent(ctx context.Context, since time.Time, committees []string) ([]model.HearingRecord, error) {
	query := `SELECT ` + hearingSelectList + ` FROM hearings_unified
		WHERE hearing_date >= ? AND sync_status NOT LIKE 'merged_into_%'`
	args := []any{since.Format(model.DateLayout)}
	if len(committees) > 0 {
		query += ` AND committee_code IN (` + placeholders(len(committees)) + `)`
		for _, c := range committees {
			args = append(args, c)
		}
	}
	query += ` ORDER BY hearing_date, id`
	return s.queryHearings(ctx, "list recent", query, args...)
}

func (s *SQLiteStore) FindPotentialDuplicates(ctx context.Context, candidate model.HearingRecord) ([]Candidate, error) {
	records, err := s.queryHearings(ctx, "find duplicates",
		`SELECT `+hearingSelectList+` FROM hearings_unified
		 WHERE committee_code = ? AND hearing_date = ? AND id != ?
		   AND sync_status NOT LIKE 'merged_into_%'`,
		candidate.CommitteeCode, candidate.Date, candidate.ID,
	)
	if err != nil {
		return nil, err
	}
	return rankCandidates(candidate, records), nil
}

func (s *SQLiteStore) queryHearings(ctx context.Context, op, query string, args ...any) ([]model.HearingRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s", op)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.HearingRecord
	for rows.Next() {
		h, err := scanHearing(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: %s scan", op)
		}
		out = append(out, *h)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: %s iterate", op)
}

func (s *SQLiteStore) Merge(ctx context.Context, primaryID, secondaryID int64, confidence float64) error {
	now := s.nowFunc()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		primary, err := getHearingSQLite(ctx, tx, primaryID)
		if err != nil {
			return err
		}
		secondary, err := getHearingSQLite(ctx, tx, secondaryID)
		if err != nil {
			return err
		}
		if err := validateMerge(primary, secondary); err != nil {
			return err
		}

		merged := dedup.Merge(*primary, *secondary, confidence, now)
		values, err := hearingValues(merged)
		if err != nil {
			return err
		}
		clauses := make([]string, len(insertColumns))
		for i, col := range insertColumns {
			clauses[i] = col + " = ?"
		}
		args := append(values, primaryID)
		if _, err := tx.ExecContext(ctx,
			`UPDATE hearings_unified SET `+strings.Join(clauses, ", ")+` WHERE id = ?`, args...); err != nil {
			return eris.Wrapf(err, "sqlite: write merged hearing %d", primaryID)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE hearings_unified SET sync_status = ?, sync_confidence = 0, updated_at = ? WHERE id = ?`,
			model.MergedInto(primaryID), now, secondaryID); err != nil {
			return eris.Wrapf(err, "sqlite: deactivate hearing %d", secondaryID)
		}

		return insertHistorySQLite(ctx, tx, primaryID, MergeSource, model.SyncTypeMerge,
			mergeChanges(primaryID, secondaryID, confidence), now)
	})
}

func (s *SQLiteStore) History(ctx context.Context, hearingID int64) ([]model.SyncHistory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, hearing_id, sync_source, sync_type, changes, synced_at, success
		 FROM sync_history WHERE hearing_id = ? ORDER BY id`, hearingID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list history")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SyncHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan history")
		}
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list history iterate")
}

func (s *SQLiteStore) Statistics(ctx context.Context) (*model.Stats, error) {
	stats := &model.Stats{RecentSyncs: make(map[string]int)}
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN source_api THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN source_website THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN source_api AND source_website THEN 1 ELSE 0 END), 0),
			AVG(sync_confidence)
		FROM hearings_unified
		WHERE sync_status NOT LIKE 'merged_into_%'`,
	).Scan(&stats.TotalHearings, &stats.APIHearings, &stats.WebsiteHearings, &stats.BothSources, &avg)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: statistics")
	}
	stats.AverageConfidence = avg.Float64

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM hearings_unified WHERE sync_status LIKE 'merged_into_%'`,
	).Scan(&stats.MergedHearings); err != nil {
		return nil, eris.Wrap(err, "sqlite: merged count")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT sync_source, COUNT(*) FROM sync_history WHERE synced_at >= ? GROUP BY sync_source`,
		s.nowFunc().Add(-24*time.Hour))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent syncs")
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var src string
		var n int
		if err := rows.Scan(&src, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan recent syncs")
		}
		stats.RecentSyncs[src] = n
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: recent syncs iterate")
}

const sqliteUpsertSyncConfig = `INSERT INTO sync_config
	(committee_code, priority_level, api_enabled, website_enabled, sync_frequency_hours, active, auto_merge_threshold, review_threshold)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (committee_code) DO UPDATE SET
		priority_level = excluded.priority_level,
		api_enabled = excluded.api_enabled,
		website_enabled = excluded.website_enabled,
		sync_frequency_hours = excluded.sync_frequency_hours,
		active = excluded.active,
		auto_merge_threshold = excluded.auto_merge_threshold,
		review_threshold = excluded.review_threshold`

func (s *SQLiteStore) UpsertSyncConfig(ctx context.Context, cfg model.SyncConfig) error {
	_, err := s.UpsertSyncConfigs(ctx, []model.SyncConfig{cfg})
	return err
}

func (s *SQLiteStore) UpsertSyncConfigs(ctx context.Context, cfgs []model.SyncConfig) (int, error) {
	if len(cfgs) == 0 {
		return 0, nil
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, c := range cfgs {
			if strings.TrimSpace(c.CommitteeCode) == "" {
				return eris.New("sqlite: sync config committee_code is required")
			}
			if _, err := tx.ExecContext(ctx, sqliteUpsertSyncConfig, syncConfigValues(c)...); err != nil {
				return eris.Wrapf(err, "sqlite: upsert sync config %s", c.CommitteeCode)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(cfgs), nil
}

func (s *SQLiteStore) ListSyncConfigs(ctx context.Context, activeOnly bool) ([]model.SyncConfig, error) {
	query := `SELECT ` + strings.Join(syncConfigColumns, ", ") + ` FROM sync_config`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY priority_level, committee_code`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sync configs")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SyncConfig
	for rows.Next() {
		c, err := scanSyncConfig(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sync config")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list sync configs iterate")
}

func (s *SQLiteStore) RecordMetrics(ctx context.Context, metrics []model.SyncMetric) error {
	if len(metrics) == 0 {
		return nil
	}
	now := s.nowFunc()
	query := `INSERT INTO sync_metrics (` + strings.Join(metricColumns, ", ") + `) VALUES (` +
		placeholders(len(metricColumns)) + `)`
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, m := range metrics {
			if _, err := tx.ExecContext(ctx, query, metricValues(m, now)...); err != nil {
				return eris.Wrapf(err, "sqlite: record metric %s/%s", m.CommitteeCode, m.Source)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) RecentMetrics(ctx context.Context, limit int) ([]model.SyncMetric, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, `+strings.Join(metricColumns, ", ")+` FROM sync_metrics
		 ORDER BY recorded_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent metrics")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SyncMetric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan metric")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: recent metrics iterate")
}

func (s *SQLiteStore) LastSuccessfulSync(ctx context.Context, committeeCode string, source model.Source) (*time.Time, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT recorded_at FROM sync_metrics
		 WHERE committee_code = ? AND source = ? AND success
		 ORDER BY recorded_at DESC LIMIT 1`,
		committeeCode, string(source),
	).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: last successful sync %s/%s", committeeCode, source)
	}
	return &t, nil
}

// helpers

func insertHistorySQLite(ctx context.Context, tx *sql.Tx, hearingID int64, source string, typ model.SyncType, changes map[string]any, now time.Time) error {
	raw, err := json.Marshal(changes)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal history changes")
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sync_history (hearing_id, sync_source, sync_type, changes, synced_at, success)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		hearingID, source, string(typ), string(raw), now, true,
	)
	return eris.Wrapf(err, "sqlite: insert %s history for hearing %d", typ, hearingID)
}

func checkRowsAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "hearing %d", id)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
