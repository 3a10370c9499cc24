package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "villages",
		Columns:      []string{"id", "name"},
		ConflictKeys: []string{"id"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "villages",
		ConflictKeys: []string{"id"},
	}, [][]any{{"a", "Alandi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:   "villages",
		Columns: []string{"id", "name"},
	}, [][]any{{"a", "Alandi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_TempTableFlow(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_villages" \(LIKE "villages" INCLUDING DEFAULTS\) ON COMMIT DROP`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_villages"}, []string{"unique_name", "name", "code"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "villages" \("unique_name", "name", "code"\) SELECT .+ ON CONFLICT \("unique_name"\) DO UPDATE SET "name" = EXCLUDED\."name", "code" = EXCLUDED\."code"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()
	// The deferred rollback fires after commit.
	mock.ExpectRollback()

	rows := [][]any{
		{"maharashtra pune haveli alandi", "Alandi", "555123"},
		{"maharashtra pune haveli chakan", "Chakan", "555124"},
	}
	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "villages",
		Columns:      []string{"unique_name", "name", "code"},
		ConflictKeys: []string{"unique_name"},
	}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_ExplicitUpdateCols(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_admin_districts"}, []string{"state_id", "name", "code"}).
		WillReturnResult(1)
	mock.ExpectExec(`ON CONFLICT \("state_id", "name"\) DO UPDATE SET "code" = EXCLUDED\."code"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "admin.districts",
		Columns:      []string{"state_id", "name", "code"},
		ConflictKeys: []string{"state_id", "name"},
		UpdateCols:   []string{"code"},
	}, [][]any{{"s1", "Pune", "22"}})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"villages", `"villages"`},
		{"admin.villages", `"admin"."villages"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitizeTable(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"id", "name", "boundary"})
	assert.Equal(t, `"id", "name", "boundary"`, result)
}
