// Package normalize coerces the loosely-typed field map returned by the
// extraction model into a canonical ContractRecord. Normalization is pure
// and never fails: any per-field anomaly drops that field rather than
// aborting the record.
package normalize

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/width"

	"github.com/pactwatch/contract-cli/internal/model"
)

// maxSummaryLen caps SummaryContract. Longer values are truncated to 497
// characters plus an ellipsis marker.
const maxSummaryLen = 500

// dateFormats are tried in order; the first match wins. DD/MM/YYYY is
// checked before MM/DD/YYYY, so ambiguous slash dates resolve day-first.
var dateFormats = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"02-01-2006",
	"2006/01/02",
	"January 2, 2006",
	"2 January 2006",
}

// Fields maps the model's JSON keys under both prompt variants.
// Canonical keys are PascalCase; the lease-variant prompt emits snake_case.
var knownKeys = map[string]struct{}{
	"StartDate": {}, "EndDate": {}, "Provider": {}, "Service": {},
	"RenewalStatus": {}, "Price": {}, "Currency": {}, "SummaryContract": {},
	"supplier_name": {}, "customer_name": {}, "contract_start_date": {},
	"contract_end_date": {}, "termination_notice_period": {},
	"contract_details": {}, "service_name": {},
}

// Record builds a ContractRecord from a parsed field map. Unrecognized keys
// pass through into Extra unchanged. The returned warnings name fields whose
// dates could not be parsed into YYYY-MM-DD (the original text is kept).
func Record(fields map[string]any) (model.ContractRecord, []string) {
	var rec model.ContractRecord
	var warnings []string

	setDate := func(dst *string, key string) {
		s, ok := stringValue(fields[key])
		if !ok {
			return
		}
		normalized, matched := Date(s)
		if !matched {
			warnings = append(warnings, fmt.Sprintf("%s: unparsable date %q kept as-is", key, s))
		}
		*dst = normalized
	}

	setDate(&rec.StartDate, "StartDate")
	setDate(&rec.EndDate, "EndDate")
	if rec.StartDate == "" {
		setDate(&rec.StartDate, "contract_start_date")
	}
	if rec.EndDate == "" {
		setDate(&rec.EndDate, "contract_end_date")
	}

	rec.Provider = trimmed(fields["Provider"])
	rec.Service = trimmed(fields["Service"])
	if rec.Service == "" {
		rec.Service = trimmed(fields["service_name"])
	}
	rec.Supplier = trimmed(fields["supplier_name"])
	rec.Customer = trimmed(fields["customer_name"])
	rec.TerminationNotice = trimmed(fields["termination_notice_period"])
	rec.Details = trimmed(fields["contract_details"])

	if v, present := fields["RenewalStatus"]; present {
		if s, ok := stringValue(v); ok || isEmptyString(v) {
			rec.RenewalStatus = RenewalStatus(s)
		}
	}

	if s, ok := stringValue(fields["Price"]); ok && !strings.EqualFold(s, "null") {
		rec.Price = s
	}
	if s, ok := stringValue(fields["Currency"]); ok {
		upper := strings.ToUpper(s)
		if upper != "NULL" {
			rec.Currency = upper
		}
	}

	rec.Summary = Summary(trimmed(fields["SummaryContract"]))

	for key, v := range fields {
		if _, known := knownKeys[key]; known {
			continue
		}
		s, ok := stringValue(v)
		if !ok {
			continue
		}
		if rec.Extra == nil {
			rec.Extra = make(map[string]string)
		}
		rec.Extra[key] = s
	}

	return rec, warnings
}

// Date rewrites s to YYYY-MM-DD if it matches one of the candidate formats.
// Full-width digits (common in Japanese contracts) are folded first. When no
// format matches, the trimmed original is returned with matched=false; some
// callers tolerate free-text dates, so the value is not dropped.
func Date(s string) (out string, matched bool) {
	s = strings.TrimSpace(width.Narrow.String(s))
	if s == "" {
		return "", false
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return s, false
}

// RenewalStatus keeps s only if it exactly matches the closed vocabulary;
// everything else (wrong casing included) coerces to Unknown.
func RenewalStatus(s string) model.RenewalStatus {
	s = strings.TrimSpace(s)
	if model.ValidRenewalStatus(s) {
		return model.RenewalStatus(s)
	}
	return model.RenewalUnknown
}

// Summary caps s at 500 characters: 497 of content plus "...".
func Summary(s string) string {
	runes := []rune(s)
	if len(runes) <= maxSummaryLen {
		return s
	}
	return string(runes[:maxSummaryLen-3]) + "..."
}

// stringValue renders v as a trimmed string. Nil, empty-after-trim, and
// unstringifiable values report ok=false.
func stringValue(v any) (string, bool) {
	var s string
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		s = t
	case float64:
		if t == float64(int64(t)) {
			s = fmt.Sprintf("%d", int64(t))
		} else {
			s = fmt.Sprintf("%g", t)
		}
	case bool:
		s = fmt.Sprintf("%t", t)
	default:
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func isEmptyString(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func trimmed(v any) string {
	s, _ := stringValue(v)
	return s
}
