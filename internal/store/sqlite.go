package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/pactwatch/contract-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
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
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS contracts (
	id                 TEXT PRIMARY KEY,
	start_date         TEXT,
	end_date           TEXT,
	provider           TEXT,
	service            TEXT,
	renewal_status     TEXT NOT NULL DEFAULT 'Unknown',
	price              TEXT,
	currency           TEXT,
	summary            TEXT,
	supplier           TEXT,
	customer           TEXT,
	termination_notice TEXT,
	details            TEXT,
	extra              TEXT,
	source_file        TEXT,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS expiry_alerts (
	id          TEXT PRIMARY KEY,
	contract_id TEXT NOT NULL REFERENCES contracts(id),
	status      TEXT NOT NULL,
	report      TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS discovery_runs (
	id          TEXT PRIMARY KEY,
	contract_id TEXT NOT NULL REFERENCES contracts(id),
	requirement TEXT NOT NULL,
	result      TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_contracts_end_date ON contracts(end_date);
CREATE INDEX IF NOT EXISTS idx_contracts_provider ON contracts(provider);
CREATE INDEX IF NOT EXISTS idx_contracts_renewal ON contracts(renewal_status);
CREATE INDEX IF NOT EXISTS idx_alerts_contract ON expiry_alerts(contract_id);
CREATE INDEX IF NOT EXISTS idx_discovery_contract ON discovery_runs(contract_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteContractColumns = `id, start_date, end_date, provider, service, renewal_status,
	price, currency, summary, supplier, customer, termination_notice, details,
	extra, source_file, created_at`

func (s *SQLiteStore) SaveContract(ctx context.Context, rec model.ContractRecord) (*model.ContractRecord, error) {
	prepared, args, err := contractArgs(rec)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: encode contract")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO contracts (`+sqliteContractColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   start_date = excluded.start_date, end_date = excluded.end_date,
		   provider = excluded.provider, service = excluded.service,
		   renewal_status = excluded.renewal_status, price = excluded.price,
		   currency = excluded.currency, summary = excluded.summary,
		   supplier = excluded.supplier, customer = excluded.customer,
		   termination_notice = excluded.termination_notice, details = excluded.details,
		   extra = excluded.extra, source_file = excluded.source_file`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: save contract")
	}
	return &prepared, nil
}

func (s *SQLiteStore) SaveContracts(ctx context.Context, recs []model.ContractRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO contracts (`+sqliteContractColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare batch insert")
	}
	defer stmt.Close()

	for _, rec := range recs {
		_, args, err := contractArgs(rec)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: encode contract %s", rec.SourceFile)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: batch insert %s", rec.SourceFile)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit batch")
	}
	return len(recs), nil
}

func (s *SQLiteStore) GetContract(ctx context.Context, id string) (*model.ContractRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteContractColumns+` FROM contracts WHERE id = ?`, id,
	)
	rec, err := scanContract(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get contract %s", id)
	}
	return rec, nil
}

func (s *SQLiteStore) ListContracts(ctx context.Context, filter ContractFilter) ([]model.ContractRecord, error) {
	query := `SELECT ` + sqliteContractColumns + ` FROM contracts WHERE 1=1`
	var args []any

	if filter.Provider != "" {
		query += ` AND (provider = ? OR supplier = ?)`
		args = append(args, filter.Provider, filter.Provider)
	}
	if filter.RenewalStatus != "" {
		query += ` AND renewal_status = ?`
		args = append(args, string(filter.RenewalStatus))
	}
	if filter.EndingBy != "" {
		query += ` AND end_date != '' AND end_date IS NOT NULL AND end_date <= ?`
		args = append(args, filter.EndingBy)
	}
	query += ` ORDER BY created_at DESC, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list contracts")
	}
	defer rows.Close()

	var recs []model.ContractRecord
	for rows.Next() {
		rec, err := scanContract(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contract")
		}
		recs = append(recs, *rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list contracts iterate")
}

func (s *SQLiteStore) DeleteContract(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM contracts WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete contract %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SaveAlerts(ctx context.Context, alerts []model.ExpiryAlert) error {
	if len(alerts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	for _, a := range alerts {
		id := a.ID
		if id == "" {
			id = uuid.New().String()
		}
		createdAt := a.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO expiry_alerts (id, contract_id, status, report, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, a.ContractID, string(a.Status), a.Report, createdAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert alert for %s", a.ContractID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit alerts")
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, contractID string) ([]model.ExpiryAlert, error) {
	query := `SELECT id, contract_id, status, report, created_at FROM expiry_alerts`
	var args []any
	if contractID != "" {
		query += ` WHERE contract_id = ?`
		args = append(args, contractID)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list alerts")
	}
	defer rows.Close()

	var alerts []model.ExpiryAlert
	for rows.Next() {
		var a model.ExpiryAlert
		var status string
		if err := rows.Scan(&a.ID, &a.ContractID, &status, &a.Report, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan alert")
		}
		a.Status = model.ExpiryStatus(status)
		alerts = append(alerts, a)
	}
	return alerts, eris.Wrap(rows.Err(), "sqlite: list alerts iterate")
}

func (s *SQLiteStore) SaveDiscovery(ctx context.Context, contractID, requirement string, result model.DiscoveryReport) (*model.DiscoveryRecord, error) {
	rec := model.DiscoveryRecord{
		ID:          uuid.New().String(),
		ContractID:  contractID,
		Requirement: requirement,
		Result:      result,
		CreatedAt:   time.Now().UTC(),
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal discovery result")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO discovery_runs (id, contract_id, requirement, result, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.ContractID, rec.Requirement, string(resultJSON), rec.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert discovery for %s", contractID)
	}
	return &rec, nil
}

func (s *SQLiteStore) ListDiscoveries(ctx context.Context, contractID string) ([]model.DiscoveryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, contract_id, requirement, result, created_at FROM discovery_runs
		 WHERE contract_id = ? ORDER BY created_at DESC, id`,
		contractID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list discoveries")
	}
	defer rows.Close()

	var recs []model.DiscoveryRecord
	for rows.Next() {
		var r model.DiscoveryRecord
		var resultJSON string
		if err := rows.Scan(&r.ID, &r.ContractID, &r.Requirement, &resultJSON, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan discovery")
		}
		if err := json.Unmarshal([]byte(resultJSON), &r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal discovery result")
		}
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list discoveries iterate")
}

// helpers

// contractArgs assigns an ID and CreatedAt when missing and returns the
// record plus its positional arguments in column order.
func contractArgs(rec model.ContractRecord) (model.ContractRecord, []any, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	extraJSON := ""
	if len(rec.Extra) > 0 {
		b, err := json.Marshal(rec.Extra)
		if err != nil {
			return rec, nil, eris.Wrap(err, "marshal extra")
		}
		extraJSON = string(b)
	}

	return rec, []any{
		rec.ID, rec.StartDate, rec.EndDate, rec.Provider, rec.Service,
		string(rec.RenewalStatus), rec.Price, rec.Currency, rec.Summary,
		rec.Supplier, rec.Customer, rec.TerminationNotice, rec.Details,
		extraJSON, rec.SourceFile, rec.CreatedAt,
	}, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanContract(row scannable) (*model.ContractRecord, error) {
	var rec model.ContractRecord
	var renewal, extraJSON string

	err := row.Scan(
		&rec.ID, &rec.StartDate, &rec.EndDate, &rec.Provider, &rec.Service,
		&renewal, &rec.Price, &rec.Currency, &rec.Summary,
		&rec.Supplier, &rec.Customer, &rec.TerminationNotice, &rec.Details,
		&extraJSON, &rec.SourceFile, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.RenewalStatus = model.RenewalStatus(renewal)
	if extraJSON != "" {
		if err := json.Unmarshal([]byte(extraJSON), &rec.Extra); err != nil {
			return nil, eris.Wrap(err, "unmarshal extra")
		}
	}
	return &rec, nil
}
