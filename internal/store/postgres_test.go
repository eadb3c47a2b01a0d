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

	"github.com/pactwatch/contract-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresFromPool(mock), mock
}

func contractRow(id string) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "start_date", "end_date", "provider", "service", "renewal_status",
		"price", "currency", "summary", "supplier", "customer",
		"termination_notice", "details", "extra", "source_file", "created_at",
	}).AddRow(
		id, "2024-01-01", "2025-01-01", "Acme Cloud", "Object Storage", "Auto-Renewal",
		"1200", "USD", "Storage agreement.", "", "",
		"", "", `{"PaymentTerms":"Net 30"}`, "acme.pdf", time.Now().UTC(),
	)
}

func TestPostgres_GetContract(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM contracts WHERE id = \$1`).
		WithArgs("c-1").
		WillReturnRows(contractRow("c-1"))

	rec, err := s.GetContract(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Cloud", rec.Provider)
	assert.Equal(t, model.RenewalAuto, rec.RenewalStatus)
	assert.Equal(t, "Net 30", rec.Extra["PaymentTerms"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetContract_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM contracts WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetContract(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveContract_AssignsID(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO contracts`).
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	saved, err := s.SaveContract(context.Background(), model.ContractRecord{Provider: "Acme"})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.False(t, saved.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeleteContract_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM contracts WHERE id = \$1`).
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.DeleteContract(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListContracts_Filter(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM contracts WHERE true AND \(provider = \$1 OR supplier = \$1\) ORDER BY created_at DESC, id LIMIT \$2`).
		WithArgs("Acme Cloud", 100).
		WillReturnRows(contractRow("c-1"))

	recs, err := s.ListContracts(context.Background(), ContractFilter{Provider: "Acme Cloud"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "c-1", recs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveAlerts_CopiesBatch(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"expiry_alerts"},
		[]string{"id", "contract_id", "status", "report", "created_at"}).
		WillReturnResult(2)

	err := s.SaveAlerts(context.Background(), []model.ExpiryAlert{
		{ContractID: "c-1", Status: model.ExpiryExpired, Report: "renew"},
		{ContractID: "c-2", Status: model.ExpiryNear, Report: "review"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveDiscovery(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO discovery_runs`).
		WithArgs(pgxmock.AnyArg(), "c-1", "cheaper storage", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec, err := s.SaveDiscovery(context.Background(), "c-1", "cheaper storage",
		model.DiscoveryReport{Report: "r"})
	require.NoError(t, err)
	assert.Equal(t, "c-1", rec.ContractID)
	assert.NotEmpty(t, rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
