package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configUpsert = UpsertConfig{
	Table:        "sync_config",
	Columns:      []string{"committee_code", "priority_level", "api_enabled"},
	ConflictKeys: []string{"committee_code"},
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.TODO(), nil, configUpsert, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "sync_config",
		ConflictKeys: []string{"committee_code"},
	}, [][]any{{"SCOM", 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:   "sync_config",
		Columns: []string{"committee_code", "priority_level"},
	}, [][]any{{"SCOM", 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_sync_config"}, configUpsert.Columns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "sync_config"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	rows := [][]any{{"SCOM", 1, true}, {"SSCI", 2, false}}
	n, err := BulkUpsert(context.Background(), mock, configUpsert, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_InsertError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_sync_config"}, configUpsert.Columns).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "sync_config"`).WillReturnError(fmt.Errorf("constraint violation"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, configUpsert, [][]any{{"SCOM", 1, true}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INSERT ON CONFLICT for sync_config")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"sync_config", `"sync_config"`},
		{"public.sync_config", `"public"."sync_config"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitizeTable(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"committee_code", "priority_level"})
	assert.Equal(t, `"committee_code", "priority_level"`, result)
}
