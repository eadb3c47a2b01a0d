// Package expiry classifies contracts against their end dates and, for
// flagged contracts, produces a renewal advisory backed by live web
// search.
package expiry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pactwatch/contract-cli/internal/model"
	"github.com/pactwatch/contract-cli/internal/resilience"
	"github.com/pactwatch/contract-cli/pkg/anthropic"
)

// Config tunes the scan.
type Config struct {
	Model            string
	MaxTokens        int64
	Timeout          time.Duration
	WarningDays      int
	Concurrency      int
	WebSearchMaxUses int
}

func (c Config) withDefaults() Config {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1500
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.WarningDays <= 0 {
		c.WarningDays = 60
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	if c.WebSearchMaxUses <= 0 {
		c.WebSearchMaxUses = 3
	}
	return c
}

// Scanner flags contracts that are expired, inside the warning window, or
// missing an end date entirely. A nil llm disables web research; flagged
// contracts then carry a placeholder report instead.
type Scanner struct {
	llm   anthropic.Client
	cfg   Config
	retry resilience.RetryConfig
	now   func() time.Time
}

// New creates a Scanner. llm may be nil.
func New(llm anthropic.Client, cfg Config) *Scanner {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("anthropic", "expiry")
	return &Scanner{llm: llm, cfg: cfg.withDefaults(), retry: retry, now: time.Now}
}

// Classify compares the contract's end date against the current day.
// Dates are compared at day granularity in UTC; a contract ending today is
// near_expiry, not expired.
func (s *Scanner) Classify(rec model.ContractRecord) model.ExpiryStatus {
	if strings.TrimSpace(rec.EndDate) == "" {
		return model.ExpiryMissingEnd
	}
	end, err := time.Parse("2006-01-02", rec.EndDate)
	if err != nil {
		// Normalization should have caught this; treat as missing.
		zap.L().Warn("expiry: unparseable end date",
			zap.String("contract_id", rec.ID),
			zap.String("end_date", rec.EndDate),
		)
		return model.ExpiryMissingEnd
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	switch {
	case end.Before(today):
		return model.ExpiryExpired
	case !end.After(today.AddDate(0, 0, s.cfg.WarningDays)):
		return model.ExpiryNear
	default:
		return model.ExpiryOK
	}
}

// Scan classifies every contract and builds an alert for each flagged one.
// Reports are generated concurrently with bounded parallelism; alert order
// follows input order. A report failure downgrades to a placeholder, never
// an error, so one bad model call cannot sink a whole scan.
func (s *Scanner) Scan(ctx context.Context, recs []model.ContractRecord) ([]model.ExpiryAlert, error) {
	type flagged struct {
		idx    int
		rec    model.ContractRecord
		status model.ExpiryStatus
	}
	var work []flagged
	for _, rec := range recs {
		status := s.Classify(rec)
		if status == model.ExpiryOK {
			continue
		}
		work = append(work, flagged{idx: len(work), rec: rec, status: status})
	}
	if len(work) == 0 {
		return nil, nil
	}

	alerts := make([]model.ExpiryAlert, len(work))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, w := range work {
		g.Go(func() error {
			alerts[w.idx] = model.ExpiryAlert{
				ContractID: w.rec.ID,
				Status:     w.status,
				Report:     s.report(gctx, w.rec, w.status),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	zap.L().Info("expiry: scan complete",
		zap.Int("contracts", len(recs)),
		zap.Int("flagged", len(alerts)),
	)
	return alerts, nil
}

const reportPrompt = `The following contract needs attention (%s):

- Provider: %s
- Service: %s
- Start Date: %s
- End Date: %s
- Renewal Status: %s

Search the web for current alternatives and renewal considerations for this
kind of service, then write a short advisory covering:
1. What action is needed and by when
2. Notable alternative providers and their current pricing, with sources
3. A recommendation

Keep it under 400 words.`

var statusPhrases = map[model.ExpiryStatus]string{
	model.ExpiryExpired:    "the contract has already expired",
	model.ExpiryNear:       "the contract expires soon",
	model.ExpiryMissingEnd: "the contract has no recorded end date",
}

func (s *Scanner) report(ctx context.Context, rec model.ContractRecord, status model.ExpiryStatus) string {
	if s.llm == nil {
		return fmt.Sprintf("Contract %q (%s): %s. Web research unavailable without an API key.",
			rec.ServiceName(), rec.ProviderName(), statusPhrases[status])
	}

	prompt := fmt.Sprintf(reportPrompt,
		statusPhrases[status],
		valueOr(rec.ProviderName(), "Unknown"),
		valueOr(rec.ServiceName(), "Unknown"),
		valueOr(rec.StartDate, "N/A"),
		valueOr(rec.EndDate, "N/A"),
		valueOr(string(rec.RenewalStatus), "Unknown"),
	)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	resp, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return s.llm.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     s.cfg.Model,
			MaxTokens: s.cfg.MaxTokens,
			System:    "You are a contract management assistant. Use web search to ground every claim.",
			Messages:  []anthropic.Message{{Role: "user", Text: prompt}},
			WebSearch: &anthropic.WebSearchTool{MaxUses: s.cfg.WebSearchMaxUses},
		})
	})
	if err != nil {
		zap.L().Warn("expiry: report generation failed",
			zap.String("contract_id", rec.ID),
			zap.Error(err),
		)
		return fmt.Sprintf("Contract %q (%s): %s. Advisory generation failed: %v",
			rec.ServiceName(), rec.ProviderName(), statusPhrases[status], err)
	}
	resp.Usage.LogCost(s.cfg.Model, "expiry")

	return strings.TrimSpace(resp.Text())
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
