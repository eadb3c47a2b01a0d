package model

import "time"

// RenewalStatus is the closed vocabulary for a contract's renewal clause.
type RenewalStatus string

const (
	RenewalAuto    RenewalStatus = "Auto-Renewal"
	RenewalManual  RenewalStatus = "Manual-Renewal"
	RenewalNone    RenewalStatus = "No-Renewal"
	RenewalUnknown RenewalStatus = "Unknown"
)

// ValidRenewalStatus reports whether s is one of the four accepted values.
func ValidRenewalStatus(s string) bool {
	switch RenewalStatus(s) {
	case RenewalAuto, RenewalManual, RenewalNone, RenewalUnknown:
		return true
	}
	return false
}

// ContractRecord is the canonical, normalized output of an extraction.
// Every field is either empty (absent) or a trimmed, non-empty string;
// dates are YYYY-MM-DD unless the source value resisted parsing, in which
// case the original text is kept and a warning is attached by the normalizer.
type ContractRecord struct {
	ID string `json:"id,omitempty"`

	StartDate     string        `json:"StartDate,omitempty"`
	EndDate       string        `json:"EndDate,omitempty"`
	Provider      string        `json:"Provider,omitempty"`
	Service       string        `json:"Service,omitempty"`
	RenewalStatus RenewalStatus `json:"RenewalStatus,omitempty"`
	Price         string        `json:"Price,omitempty"`
	Currency      string        `json:"Currency,omitempty"`
	Summary       string        `json:"SummaryContract,omitempty"`

	// Lease-variant fields produced by the alternate extraction prompt.
	Supplier          string `json:"SupplierName,omitempty"`
	Customer          string `json:"CustomerName,omitempty"`
	TerminationNotice string `json:"TerminationNoticePeriod,omitempty"`
	Details           string `json:"ContractDetails,omitempty"`

	// Extra carries unrecognized keys from the model's JSON unchanged.
	// The schema is open on purpose: new prompt fields show up here before
	// they earn a typed column.
	Extra map[string]string `json:"Extra,omitempty"`

	SourceFile string    `json:"source_file,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

// ProviderName returns the provider under either prompt variant's naming.
func (r ContractRecord) ProviderName() string {
	if r.Provider != "" {
		return r.Provider
	}
	return r.Supplier
}

// ServiceName returns the service under either prompt variant's naming.
func (r ContractRecord) ServiceName() string {
	return r.Service
}

// ExpiryStatus classifies a contract's end date relative to a scan window.
type ExpiryStatus string

const (
	ExpiryExpired    ExpiryStatus = "expired"
	ExpiryNear       ExpiryStatus = "near_expiry"
	ExpiryMissingEnd ExpiryStatus = "missing_end_date"
	ExpiryOK         ExpiryStatus = "ok"
)

// ExpiryAlert is one flagged contract from an expiry scan, with its
// generated report attached.
type ExpiryAlert struct {
	ID         string       `json:"id,omitempty"`
	ContractID string       `json:"contract_id"`
	Status     ExpiryStatus `json:"status"`
	Report     string       `json:"report"`
	CreatedAt  time.Time    `json:"created_at,omitempty"`
}
