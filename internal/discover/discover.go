// Package discover finds comparable market offerings for an extracted
// contract and synthesizes a narrative comparison report: keyword
// generation, web search fan-out, dedup, report synthesis.
package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pactwatch/contract-cli/internal/llmjson"
	"github.com/pactwatch/contract-cli/internal/model"
	"github.com/pactwatch/contract-cli/internal/resilience"
	"github.com/pactwatch/contract-cli/pkg/anthropic"
	"github.com/pactwatch/contract-cli/pkg/serpapi"
)

// Config tunes the discovery workflow.
type Config struct {
	Model           string
	MaxTokens       int64
	Temperature     float64
	Timeout         time.Duration
	MaxKeywords     int
	ResultsPerQuery int
	MaxSources      int
}

func (c Config) withDefaults() Config {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1500
	}
	if c.Temperature == 0 {
		c.Temperature = 0.1
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxKeywords <= 0 {
		c.MaxKeywords = 3
	}
	if c.ResultsPerQuery <= 0 {
		c.ResultsPerQuery = 5
	}
	if c.MaxSources <= 0 {
		c.MaxSources = 10
	}
	return c
}

// Discoverer runs the discovery workflow against explicit client
// dependencies, so tests substitute fakes without process-wide state.
type Discoverer struct {
	llm    anthropic.Client
	search serpapi.Client
	cfg    Config
	retry  resilience.RetryConfig
}

// New creates a Discoverer.
func New(llm anthropic.Client, search serpapi.Client, cfg Config) *Discoverer {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("anthropic", "discover")
	return &Discoverer{llm: llm, search: search, cfg: cfg.withDefaults(), retry: retry}
}

// Discover generates search keywords from the contract facts and the
// user's requirement, fans out web searches, and synthesizes a comparison
// report over the deduplicated sources. Keyword generation failure is
// terminal (nothing to search); a single keyword's search failure only
// costs its results; synthesis failure degrades to an error message inside
// the returned report.
func (d *Discoverer) Discover(ctx context.Context, rec model.ContractRecord, requirement string) (*model.DiscoveryReport, error) {
	keywords, err := d.generateKeywords(ctx, rec, requirement)
	if err != nil {
		return nil, err
	}
	zap.L().Info("discover: keywords generated", zap.Strings("keywords", keywords))

	sources := d.searchAll(ctx, keywords)

	report := d.synthesize(ctx, rec, requirement, sources)

	return &model.DiscoveryReport{Report: report, Sources: sources}, nil
}

const keywordPrompt = `Based on the following contract:
- Provider: %s
- Service: %s
- Start Date: %s
- End Date: %s

And the user's requirement: "%s"

Generate search keywords suited to finding similar services on the web.
Return at most %d search phrases, each no longer than 5 words, as a JSON array of strings and nothing else.

Example:
["cloud storage service pricing", "office productivity tools", "email hosting solutions"]`

func (d *Discoverer) generateKeywords(ctx context.Context, rec model.ContractRecord, requirement string) ([]string, error) {
	prompt := fmt.Sprintf(keywordPrompt,
		orUnknown(rec.ProviderName()),
		orUnknown(rec.ServiceName()),
		orNA(rec.StartDate),
		orNA(rec.EndDate),
		requirement,
		d.cfg.MaxKeywords,
	)

	resp, err := d.callModel(ctx, "You are a search expert. Always respond with a JSON array of strings.", prompt)
	if err != nil {
		return nil, eris.Wrap(err, "discover: generate keywords")
	}

	raw := resp.Text()
	var keywords []string
	if err := json.Unmarshal([]byte(llmjson.SanitizeArray(raw)), &keywords); err != nil {
		return nil, eris.Wrapf(err, "discover: keyword output is not a JSON array (raw: %.200q)", raw)
	}

	keywords = lo.Filter(keywords, func(k string, _ int) bool {
		return strings.TrimSpace(k) != ""
	})
	if len(keywords) == 0 {
		return nil, eris.New("discover: model produced no usable keywords")
	}
	if len(keywords) > d.cfg.MaxKeywords {
		keywords = keywords[:d.cfg.MaxKeywords]
	}
	return keywords, nil
}

// searchAll fans out one search per keyword. Queries run concurrently, but
// merge order is fixed to keyword order then intra-query position, so
// dedup is deterministic regardless of completion order. A failed query
// logs a warning and contributes nothing.
func (d *Discoverer) searchAll(ctx context.Context, keywords []string) []model.SearchResult {
	perKeyword := make([][]model.SearchResult, len(keywords))

	g, gctx := errgroup.WithContext(ctx)
	for i, kw := range keywords {
		g.Go(func() error {
			results, err := d.search.Search(gctx, kw, d.cfg.ResultsPerQuery)
			if err != nil {
				zap.L().Warn("discover: keyword search failed",
					zap.String("keyword", kw),
					zap.Error(err),
				)
				return nil
			}
			perKeyword[i] = lo.Map(results, func(r serpapi.OrganicResult, _ int) model.SearchResult {
				return model.SearchResult{
					Title:    r.Title,
					URL:      r.Link,
					Snippet:  r.Snippet,
					Position: r.Position,
				}
			})
			return nil
		})
	}
	_ = g.Wait() // per-keyword failures are swallowed above

	merged := lo.Flatten(perKeyword)
	unique := lo.UniqBy(merged, func(r model.SearchResult) string { return r.URL })
	if len(unique) > d.cfg.MaxSources {
		unique = unique[:d.cfg.MaxSources]
	}
	return unique
}

const reportPrompt = `You are a service procurement consultant. Write a comparison report based on:

CURRENT CONTRACT:
- Provider: %s
- Service: %s
- Start Date: %s
- End Date: %s
- Renewal Status: %s

USER REQUIREMENT:
%s

SIMILAR SERVICES FOUND ON THE MARKET:
%s

Write a detailed report with exactly these sections:

1. **CURRENT CONTRACT OVERVIEW**
   - Analysis of the current contract
   - Strengths and limitations

2. **REQUIREMENT ANALYSIS**
   - The user's needs
   - How well the current contract fits them

3. **SIMILAR SERVICES IN THE MARKET**
   - Comparison with the similar services listed above
   - Pros and cons of each option

4. **RECOMMENDATION**
   - The most suitable option
   - An implementation roadmap if a change is warranted

The report should be roughly 500-800 words, clear and easy to follow.`

// synthesize produces the final narrative. A synthesis failure never
// propagates: the report field carries a visible failure message instead.
func (d *Discoverer) synthesize(ctx context.Context, rec model.ContractRecord, requirement string, sources []model.SearchResult) string {
	prompt := fmt.Sprintf(reportPrompt,
		orUnknown(rec.ProviderName()),
		orUnknown(rec.ServiceName()),
		orNA(rec.StartDate),
		orNA(rec.EndDate),
		orUnknown(string(rec.RenewalStatus)),
		requirement,
		FormatSources(sources),
	)

	resp, err := d.callModel(ctx, "You are a professional business consultant. Generate detailed, helpful reports.", prompt)
	if err != nil {
		zap.L().Error("discover: report synthesis failed", zap.Error(err))
		return fmt.Sprintf("(report generation failed: %v)", err)
	}
	resp.Usage.LogCost(d.cfg.Model, "discover")

	return strings.TrimSpace(resp.Text())
}

func (d *Discoverer) callModel(ctx context.Context, system, prompt string) (*anthropic.MessageResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	temp := d.cfg.Temperature
	return resilience.DoVal(ctx, d.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return d.llm.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       d.cfg.Model,
			MaxTokens:   d.cfg.MaxTokens,
			System:      system,
			Messages:    []anthropic.Message{{Role: "user", Text: prompt}},
			Temperature: &temp,
		})
	})
}

// FormatSources renders the deduplicated result list for the synthesis
// prompt, or an explicit placeholder when nothing was found.
func FormatSources(sources []model.SearchResult) string {
	if len(sources) == 0 {
		return "No similar services were found."
	}
	var sb strings.Builder
	for i, s := range sources {
		fmt.Fprintf(&sb, "%d. %s\n   URL: %s\n   Description: %s\n\n", i+1, s.Title, s.URL, s.Snippet)
	}
	return sb.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
