// Package store persists extracted contracts, expiry alerts, and
// discovery reports behind a backend-neutral interface with SQLite and
// PostgreSQL implementations.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/pactwatch/contract-cli/internal/model"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = eris.New("store: not found")

// ContractFilter specifies criteria for listing contracts.
type ContractFilter struct {
	Provider      string              `json:"provider,omitempty"`
	RenewalStatus model.RenewalStatus `json:"renewal_status,omitempty"`
	// EndingBy keeps only contracts whose end date is on or before the
	// given YYYY-MM-DD day. Contracts without an end date are excluded.
	EndingBy string `json:"ending_by,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the contract pipeline.
type Store interface {
	// Contracts
	SaveContract(ctx context.Context, rec model.ContractRecord) (*model.ContractRecord, error)
	SaveContracts(ctx context.Context, recs []model.ContractRecord) (int, error)
	GetContract(ctx context.Context, id string) (*model.ContractRecord, error)
	ListContracts(ctx context.Context, filter ContractFilter) ([]model.ContractRecord, error)
	DeleteContract(ctx context.Context, id string) error

	// Expiry alerts
	SaveAlerts(ctx context.Context, alerts []model.ExpiryAlert) error
	ListAlerts(ctx context.Context, contractID string) ([]model.ExpiryAlert, error)

	// Discovery runs
	SaveDiscovery(ctx context.Context, contractID, requirement string, result model.DiscoveryReport) (*model.DiscoveryRecord, error)
	ListDiscoveries(ctx context.Context, contractID string) ([]model.DiscoveryRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
