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
	n, err := CopyFrom(context.TODO(), nil, "expiry_alerts", []string{"id", "report"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_NoColumns(t *testing.T) {
	_, err := CopyFrom(context.TODO(), nil, "expiry_alerts", nil, [][]any{{1, "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"expiry_alerts"}, []string{"id", "report"}).WillReturnResult(3)

	rows := [][]any{{"a-1", "x"}, {"a-2", "y"}, {"a-3", "z"}}
	n, err := CopyFrom(context.Background(), mock, "expiry_alerts", []string{"id", "report"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"expiry_alerts"}, []string{"id", "report"}).WillReturnError(fmt.Errorf("copy failed"))

	rows := [][]any{{"a-1", "x"}}
	_, err = CopyFrom(context.Background(), mock, "expiry_alerts", []string{"id", "report"}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy into expiry_alerts")
	assert.NoError(t, mock.ExpectationsWereMet())
}
