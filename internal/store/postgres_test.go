package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hearing-sync/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock, nowFunc: func() time.Time { return fixedNow }}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS hearings_unified`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Insert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO hearings_unified .* RETURNING id`).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec(`INSERT INTO sync_history`).
		WithArgs(int64(7), "congress_api", "create", pgxmock.AnyArg(), fixedNow, true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	id, err := s.Insert(context.Background(), apiHearing(), model.SourceCongressAPI)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertHistoryFailureRollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO hearings_unified`).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(8)))
	mock.ExpectExec(`INSERT INTO sync_history`).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := s.Insert(context.Background(), apiHearing(), model.SourceCongressAPI)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create history")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateOnlySuppliedColumns(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	tm := "10:00 AM"
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE hearings_unified SET hearing_time = \$1, source_website = \$2, last_website_sync = \$3, updated_at = \$4 WHERE id = \$5`).
		WithArgs(tm, true, fixedNow, fixedNow, int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO sync_history`).
		WithArgs(int64(3), "website_scraper", "update", `{"hearing_time":"10:00 AM"}`, fixedNow, true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.Update(context.Background(), 3, model.HearingUpdate{Time: &tm}, model.SourceWebsite)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	tm := "10:00 AM"
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE hearings_unified SET`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := s.Update(context.Background(), 404, model.HearingUpdate{Time: &tm}, model.SourceCongressAPI)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .* FROM hearings_unified WHERE id = \$1`).
		WithArgs(int64(11)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.Get(context.Background(), 11)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertSyncConfigs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_sync_config"}, syncConfigColumns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "sync_config"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.UpsertSyncConfigs(context.Background(), []model.SyncConfig{
		{CommitteeCode: "SCOM", PriorityLevel: 1, APIEnabled: true, WebsiteEnabled: true, Active: true},
		{CommitteeCode: "SSCI", PriorityLevel: 2, APIEnabled: true, Active: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordMetricsUsesCopy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"sync_metrics"}, metricColumns).WillReturnResult(2)

	err := s.RecordMetrics(context.Background(), []model.SyncMetric{
		{RunID: "run-1", CommitteeCode: "SCOM", Source: model.SourceCongressAPI, Success: true},
		{RunID: "run-1", CommitteeCode: "SCOM", Source: model.SourceWebsite, Success: true},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordMetricsEmpty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	require.NoError(t, s.RecordMetrics(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LastSuccessfulSync(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT recorded_at FROM sync_metrics`).
		WithArgs("SCOM", "congress_api").
		WillReturnRows(pgxmock.NewRows([]string{"recorded_at"}).AddRow(fixedNow))
	mock.ExpectQuery(`SELECT recorded_at FROM sync_metrics`).
		WithArgs("SSCI", "website_scraper").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.LastSuccessfulSync(context.Background(), "SCOM", model.SourceCongressAPI)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(fixedNow))

	got, err = s.LastSuccessfulSync(context.Background(), "SSCI", model.SourceWebsite)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MergeMissingPrimary(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM hearings_unified WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := s.Merge(context.Background(), 5, 6, 0.9)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
