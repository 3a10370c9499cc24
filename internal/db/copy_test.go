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

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "villages", []string{"id", "name"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"villages"}, []string{"id", "name", "boundary"}).WillReturnResult(3)

	rows := [][]any{{"a", "Alandi", nil}, {"b", "Bhoom", nil}, {"c", "Chakan", nil}}
	n, err := CopyFrom(context.Background(), mock, "villages", []string{"id", "name", "boundary"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"villages"}, []string{"id", "name"}).WillReturnError(fmt.Errorf("copy failed"))

	rows := [][]any{{"a", "Alandi"}}
	_, err = CopyFrom(context.Background(), mock, "villages", []string{"id", "name"}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO villages")
	assert.NoError(t, mock.ExpectationsWereMet())
}
