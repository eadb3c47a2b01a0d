package extract

// Variant selects which extraction prompt (and therefore field naming) a
// call uses. The lease variant mirrors real-estate contracts where the
// parties and termination-notice clause matter more than a price line.
type Variant string

const (
	VariantStandard Variant = "standard"
	VariantLease    Variant = "lease"
)

const systemPrompt = `You are a contract data extraction expert. Read every page of the contract and extract information accurately. Return valid JSON only.`

const standardPrompt = `You are a contract data extraction system (input may be images or a multi-page PDF).
Task: read the entire contract, find the relevant clauses, and return JSON only with the following exact keys:

- "StartDate": contract start date, normalized to the format YYYY-MM-DD
- "EndDate": contract end date, normalized to the format YYYY-MM-DD
- "Provider": the party providing the service
- "Service": the contracted service or product
- "RenewalStatus": exactly one of "Auto-Renewal", "Manual-Renewal", "No-Renewal", "Unknown"
- "Price": the fee or amount, digits only, no currency symbol
- "Currency": the currency unit, e.g. USD, EUR, VND, JPY
- "SummaryContract": a concise summary of the contract's main terms, at most 200 words

Mandatory rules:
1. Values must be short excerpts in the contract's original language (do not translate), except dates, which must be normalized as specified above.
2. If multiple candidates exist, select the value that applies to the main contract, not annexes or examples.
3. If a value is not found, return null. Do not guess.
4. Do not output explanations, notes, or markdown. Return pure JSON.`

const leasePrompt = `You are a contract data extraction system (input may be images or a multi-page PDF).
Task: read the entire contract, find the relevant clauses, and return JSON only with the following exact keys:

- "supplier_name"
- "customer_name"
- "contract_start_date"
- "contract_end_date"
- "termination_notice_period"
- "contract_details"
- "service_name"

Mandatory rules:
1. Values must be short excerpts in the original contract language (do not translate), except "contract_start_date" and "contract_end_date", which must be normalized into the format yyyy/mm/dd.
2. If multiple candidates exist, select the value that applies to the main contract, not annexes or examples.
3. If not found, return null. Do not guess.
4. "termination_notice_period": extract the exact clause specifying how long in advance notice must be given for termination or non-renewal.
5. "contract_details": one or two concise sentences in the original language summarizing subject, location, amount, and payment cycle, only if explicitly stated.
6. "service_name": the official name of the contracted service.
7. "customer_name": the official name of the customer, lessee, or party receiving the service.
8. Do not output explanations, notes, or markdown. Return pure JSON.`

const refinePrompt = `Review and validate the data extracted from a contract.

Extracted data:
%s

Original content (may be truncated):
%s

Tasks:
1. Verify the extracted values against the original content.
2. Fix date formatting errors, if any.
3. Normalize provider and service names.
4. Fill in missing values only when they can be justified from the original content.

Return the validated and corrected data as JSON with the same keys. Do not add commentary.`

func promptFor(v Variant) string {
	if v == VariantLease {
		return leasePrompt
	}
	return standardPrompt
}
