package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/hearing-sync/internal/db"
	"github.com/sells-group/hearing-sync/internal/dedup"
	"github.com/sells-group/hearing-sync/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	pgGetHearing     = `SELECT id, congress_api_id, committee_source_id, committee_code, hearing_title, hearing_date, hearing_type, meeting_status, hearing_time, location_room, location_building, url, source_api, source_website, last_api_sync, last_website_sync, sync_confidence, streams, documents, witnesses, external_urls, sync_status, extraction_status, transcription_status, review_status, created_at, updated_at FROM hearings_unified WHERE id = $1`
	pgInsertHistory  = `INSERT INTO sync_history (hearing_id, sync_source, sync_type, changes, synced_at, success) VALUES ($1, $2, $3, $4, $5, $6)`
	pgFindDuplicates = `SELECT id, congress_api_id, committee_source_id, committee_code, hearing_title, hearing_date, hearing_type, meeting_status, hearing_time, location_room, location_building, url, source_api, source_website, last_api_sync, last_website_sync, sync_confidence, streams, documents, witnesses, external_urls, sync_status, extraction_status, transcription_status, review_status, created_at, updated_at FROM hearings_unified WHERE committee_code = $1 AND hearing_date = $2 AND id <> $3 AND sync_status NOT LIKE 'merged_into_%'`
)

// preparedStatements lists queries to prepare on each new connection. They
// back the per-hearing lookups issued for every connector record.
var preparedStatements = map[string]string{
	"get_hearing":     pgGetHearing,
	"insert_history":  pgInsertHistory,
	"find_duplicates": pgFindDuplicates,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				// Tables may not exist before the first migrate.
				var pgErr interface{ SQLState() string }
				if errors.As(err, &pgErr) && pgErr.SQLState() == "42P01" {
					continue
				}
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, nowFunc: utcNow}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS hearings_unified (
	id                   BIGSERIAL PRIMARY KEY,
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
	source_api           BOOLEAN NOT NULL DEFAULT false,
	source_website       BOOLEAN NOT NULL DEFAULT false,
	last_api_sync        TIMESTAMPTZ,
	last_website_sync    TIMESTAMPTZ,
	sync_confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
	streams              JSONB NOT NULL DEFAULT '{}',
	documents            JSONB NOT NULL DEFAULT '[]',
	witnesses            JSONB NOT NULL DEFAULT '[]',
	external_urls        JSONB NOT NULL DEFAULT '[]',
	sync_status          TEXT NOT NULL DEFAULT 'synced',
	extraction_status    TEXT NOT NULL DEFAULT 'not_started',
	transcription_status TEXT NOT NULL DEFAULT 'not_started',
	review_status        TEXT NOT NULL DEFAULT 'pending',
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sync_history (
	id          BIGSERIAL PRIMARY KEY,
	hearing_id  BIGINT NOT NULL REFERENCES hearings_unified(id),
	sync_source TEXT NOT NULL,
	sync_type   TEXT NOT NULL,
	changes     JSONB NOT NULL DEFAULT '{}',
	synced_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	success     BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS sync_config (
	committee_code       TEXT PRIMARY KEY,
	priority_level       INTEGER NOT NULL DEFAULT 3,
	api_enabled          BOOLEAN NOT NULL DEFAULT true,
	website_enabled      BOOLEAN NOT NULL DEFAULT false,
	sync_frequency_hours INTEGER NOT NULL DEFAULT 24,
	active               BOOLEAN NOT NULL DEFAULT true,
	auto_merge_threshold DOUBLE PRECISION NOT NULL DEFAULT 0,
	review_threshold     DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sync_metrics (
	id                  BIGSERIAL PRIMARY KEY,
	run_id              TEXT NOT NULL,
	committee_code      TEXT NOT NULL,
	source              TEXT NOT NULL,
	hearings_discovered INTEGER NOT NULL DEFAULT 0,
	hearings_updated    INTEGER NOT NULL DEFAULT 0,
	errors              INTEGER NOT NULL DEFAULT 0,
	execution_time_ms   BIGINT NOT NULL DEFAULT 0,
	success_rate        DOUBLE PRECISION NOT NULL DEFAULT 0,
	success             BOOLEAN NOT NULL DEFAULT false,
	recorded_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_hearings_committee_date ON hearings_unified(committee_code, hearing_date);
CREATE INDEX IF NOT EXISTS idx_hearings_congress_api_id ON hearings_unified(congress_api_id);
CREATE INDEX IF NOT EXISTS idx_hearings_sync_status ON hearings_unified(sync_status);
CREATE INDEX IF NOT EXISTS idx_sync_history_hearing ON sync_history(hearing_id);
CREATE INDEX IF NOT EXISTS idx_sync_history_synced_at ON sync_history(synced_at);
CREATE INDEX IF NOT EXISTS idx_sync_metrics_recorded_at ON sync_metrics(recorded_at DESC);
CREATE INDEX IF NOT EXISTS idx_sync_metrics_committee_source ON sync_metrics(committee_code, source);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) now() time.Time {
	if s.nowFunc == nil {
		return utcNow()
	}
	return s.nowFunc()
}

func (s *PostgresStore) Insert(ctx context.Context, rec model.HearingRecord, source model.Source) (int64, error) {
	now := s.now()
	rec, err := prepareInsert(rec, source, now)
	if err != nil {
		return 0, err
	}
	values, err := hearingValues(rec)
	if err != nil {
		return 0, err
	}

	query := `INSERT INTO hearings_unified (` + strings.Join(insertColumns, ", ") + `) VALUES (` +
		pgPlaceholders(1, len(insertColumns)) + `) RETURNING id`

	var id int64
	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, query, values...).Scan(&id); err != nil {
			return eris.Wrap(err, "postgres: insert hearing")
		}
		return insertHistoryPG(ctx, tx, id, string(source), model.SyncTypeCreate, createChanges(rec), now)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *PostgresStore) Update(ctx context.Context, id int64, upd model.HearingUpdate, source model.Source) error {
	if !source.Valid() {
		return eris.Errorf("postgres: unknown source %q", source)
	}
	now := s.now()
	sets, err := updateAssignments(upd)
	if err != nil {
		return err
	}
	sets = append(sets, provenanceAssignments(source, now)...)
	sets = append(sets, assignment{"updated_at", now})

	clauses := make([]string, 0, len(sets))
	args := make([]any, 0, len(sets)+1)
	for i, a := range sets {
		clauses = append(clauses, fmt.Sprintf("%s = $%d", a.column, i+1))
		args = append(args, a.value)
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE hearings_unified SET %s WHERE id = $%d`, strings.Join(clauses, ", "), len(args))

	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return eris.Wrapf(err, "postgres: update hearing %d", id)
		}
		if tag.RowsAffected() == 0 {
			return eris.Wrapf(ErrNotFound, "hearing %d", id)
		}
		return insertHistoryPG(ctx, tx, id, string(source), model.SyncTypeUpdate, upd.Changes(), now)
	})
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*model.HearingRecord, error) {
	return getHearingPG(ctx, s.pool, id)
}

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getHearingPG(ctx context.Context, q pgQuerier, id int64) (*model.HearingRecord, error) {
	h, err := scanHearing(q.QueryRow(ctx, pgGetHearing, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get hearing %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get hearing %d", id)
	}
	return h, nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, since time.Time, committees []string) ([]model.HearingRecord, error) {
	query := `SELECT ` + hearingSelectList + ` FROM hearings_unified
		WHERE hearing_date >= $1 AND sync_status NOT LIKE 'merged_into_%'`
	args := []any{since.Format(model.DateLayout)}
	if len(committees) > 0 {
		query += ` AND committee_code = ANY($2)`
		args = append(args, committees)
	}
	query += ` ORDER BY hearing_date, id`
	return s.queryHearings(ctx, "list recent", query, args...)
}

func (s *PostgresStore) FindPotentialDuplicates(ctx context.Context, candidate model.HearingRecord) ([]Candidate, error) {
	records, err := s.queryHearings(ctx, "find duplicates", pgFindDuplicates,
		candidate.CommitteeCode, candidate.Date, candidate.ID)
	if err != nil {
		return nil, err
	}
	return rankCandidates(candidate, records), nil
}

func (s *PostgresStore) queryHearings(ctx context.Context, op, query string, args ...any) ([]model.HearingRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s", op)
	}
	defer rows.Close()

	var out []model.HearingRecord
	for rows.Next() {
		h, err := scanHearing(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: %s scan", op)
		}
		out = append(out, *h)
	}
	return out, eris.Wrapf(rows.Err(), "postgres: %s iterate", op)
}

func (s *PostgresStore) Merge(ctx context.Context, primaryID, secondaryID int64, confidence float64) error {
	now := s.now()
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		primary, err := getHearingPG(ctx, tx, primaryID)
		if err != nil {
			return err
		}
		secondary, err := getHearingPG(ctx, tx, secondaryID)
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
			clauses[i] = fmt.Sprintf("%s = $%d", col, i+1)
		}
		args := append(values, primaryID)
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`UPDATE hearings_unified SET %s WHERE id = $%d`, strings.Join(clauses, ", "), len(args)),
			args...); err != nil {
			return eris.Wrapf(err, "postgres: write merged hearing %d", primaryID)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE hearings_unified SET sync_status = $1, sync_confidence = 0, updated_at = $2 WHERE id = $3`,
			model.MergedInto(primaryID), now, secondaryID); err != nil {
			return eris.Wrapf(err, "postgres: deactivate hearing %d", secondaryID)
		}

		return insertHistoryPG(ctx, tx, primaryID, MergeSource, model.SyncTypeMerge,
			mergeChanges(primaryID, secondaryID, confidence), now)
	})
}

func (s *PostgresStore) History(ctx context.Context, hearingID int64) ([]model.SyncHistory, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, hearing_id, sync_source, sync_type, changes, synced_at, success
		 FROM sync_history WHERE hearing_id = $1 ORDER BY id`, hearingID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list history")
	}
	defer rows.Close()

	var out []model.SyncHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan history")
		}
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list history iterate")
}

func (s *PostgresStore) Statistics(ctx context.Context) (*model.Stats, error) {
	stats := &model.Stats{RecentSyncs: make(map[string]int)}
	var avg *float64
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE sync_status NOT LIKE 'merged_into_%'),
			COUNT(*) FILTER (WHERE source_api AND sync_status NOT LIKE 'merged_into_%'),
			COUNT(*) FILTER (WHERE source_website AND sync_status NOT LIKE 'merged_into_%'),
			COUNT(*) FILTER (WHERE source_api AND source_website AND sync_status NOT LIKE 'merged_into_%'),
			AVG(sync_confidence) FILTER (WHERE sync_status NOT LIKE 'merged_into_%'),
			COUNT(*) FILTER (WHERE sync_status LIKE 'merged_into_%')
		FROM hearings_unified`,
	).Scan(&stats.TotalHearings, &stats.APIHearings, &stats.WebsiteHearings, &stats.BothSources, &avg, &stats.MergedHearings)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: statistics")
	}
	if avg != nil {
		stats.AverageConfidence = *avg
	}

	rows, err := s.pool.Query(ctx,
		`SELECT sync_source, COUNT(*) FROM sync_history WHERE synced_at >= $1 GROUP BY sync_source`,
		s.now().Add(-24*time.Hour))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent syncs")
	}
	defer rows.Close()
	for rows.Next() {
		var src string
		var n int
		if err := rows.Scan(&src, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan recent syncs")
		}
		stats.RecentSyncs[src] = n
	}
	return stats, eris.Wrap(rows.Err(), "postgres: recent syncs iterate")
}

func (s *PostgresStore) UpsertSyncConfig(ctx context.Context, cfg model.SyncConfig) error {
	_, err := s.UpsertSyncConfigs(ctx, []model.SyncConfig{cfg})
	return err
}

// UpsertSyncConfigs writes committee configs in one COPY-backed upsert.
func (s *PostgresStore) UpsertSyncConfigs(ctx context.Context, cfgs []model.SyncConfig) (int, error) {
	rows := make([][]any, 0, len(cfgs))
	for _, c := range cfgs {
		if strings.TrimSpace(c.CommitteeCode) == "" {
			return 0, eris.New("postgres: sync config committee_code is required")
		}
		rows = append(rows, syncConfigValues(c))
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "sync_config",
		Columns:      syncConfigColumns,
		ConflictKeys: []string{"committee_code"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert sync configs")
	}
	return int(n), nil
}

func (s *PostgresStore) ListSyncConfigs(ctx context.Context, activeOnly bool) ([]model.SyncConfig, error) {
	query := `SELECT ` + strings.Join(syncConfigColumns, ", ") + ` FROM sync_config`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY priority_level, committee_code`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sync configs")
	}
	defer rows.Close()

	var out []model.SyncConfig
	for rows.Next() {
		c, err := scanSyncConfig(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan sync config")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list sync configs iterate")
}

// RecordMetrics bulk-loads metric rows with COPY.
func (s *PostgresStore) RecordMetrics(ctx context.Context, metrics []model.SyncMetric) error {
	now := s.now()
	rows := make([][]any, 0, len(metrics))
	for _, m := range metrics {
		rows = append(rows, metricValues(m, now))
	}
	_, err := db.CopyFrom(ctx, s.pool, "sync_metrics", metricColumns, rows)
	return eris.Wrap(err, "postgres: record metrics")
}

func (s *PostgresStore) RecentMetrics(ctx context.Context, limit int) ([]model.SyncMetric, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, `+strings.Join(metricColumns, ", ")+` FROM sync_metrics
		 ORDER BY recorded_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent metrics")
	}
	defer rows.Close()

	var out []model.SyncMetric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan metric")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: recent metrics iterate")
}

func (s *PostgresStore) LastSuccessfulSync(ctx context.Context, committeeCode string, source model.Source) (*time.Time, error) {
	var t time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT recorded_at FROM sync_metrics
		 WHERE committee_code = $1 AND source = $2 AND success
		 ORDER BY recorded_at DESC LIMIT 1`,
		committeeCode, string(source),
	).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: last successful sync %s/%s", committeeCode, source)
	}
	return &t, nil
}

func insertHistoryPG(ctx context.Context, tx pgx.Tx, hearingID int64, source string, typ model.SyncType, changes map[string]any, now time.Time) error {
	raw, err := json.Marshal(changes)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal history changes")
	}
	_, err = tx.Exec(ctx, pgInsertHistory, hearingID, source, string(typ), string(raw), now, true)
	return eris.Wrapf(err, "postgres: insert %s history for hearing %d", typ, hearingID)
}

func pgPlaceholders(start, n int) string {
	parts := make([]string, n)
	for i := range n {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}
