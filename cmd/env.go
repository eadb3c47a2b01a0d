package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/pactwatch/contract-cli/internal/discover"
	"github.com/pactwatch/contract-cli/internal/expiry"
	"github.com/pactwatch/contract-cli/internal/extract"
	"github.com/pactwatch/contract-cli/internal/model"
	"github.com/pactwatch/contract-cli/internal/ocr"
	"github.com/pactwatch/contract-cli/internal/raster"
	"github.com/pactwatch/contract-cli/internal/store"
	anthropicpkg "github.com/pactwatch/contract-cli/pkg/anthropic"
	"github.com/pactwatch/contract-cli/pkg/serpapi"
)

// documentExtractor, offeringDiscoverer, and expiryScanner are the seams
// the serve handlers depend on, so handler tests can stub the pipeline.
type documentExtractor interface {
	Extract(ctx context.Context, doc model.RawDocument) (*model.ContractRecord, error)
}

type offeringDiscoverer interface {
	Discover(ctx context.Context, rec model.ContractRecord, requirement string) (*model.DiscoveryReport, error)
}

type expiryScanner interface {
	Scan(ctx context.Context, recs []model.ContractRecord) ([]model.ExpiryAlert, error)
}

// appEnv holds the initialized store, clients, and pipeline components
// shared by the extract/discover/scan/serve commands.
type appEnv struct {
	Store      store.Store
	Extractor  documentExtractor
	Refiner    *extract.Refiner
	Text       ocr.Extractor
	Discoverer offeringDiscoverer
	Scanner    expiryScanner
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "contracts.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func extractConfig() extract.Config {
	return extract.Config{
		Model:       cfg.Anthropic.Model,
		MaxTokens:   cfg.Extract.MaxTokens,
		Temperature: cfg.Extract.Temperature,
		Timeout:     time.Duration(cfg.Extract.TimeoutSecs) * time.Second,
		Variant:     extract.Variant(cfg.Extract.Variant),
	}
}

// initEnv sets up the store and every pipeline component the credentials
// allow. Components whose API keys are missing stay nil; command and
// handler code checks before use. Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env := &appEnv{Store: st}

	var llm anthropicpkg.Client
	if cfg.Anthropic.Key != "" {
		llm = anthropicpkg.NewClient(cfg.Anthropic.Key)
		r := raster.New(cfg.Raster.PdfToPPMPath, cfg.Raster.DPI)
		env.Extractor = extract.New(llm, r, extractConfig())
		env.Refiner = extract.NewRefiner(llm, extractConfig())
		env.Text = ocr.New(cfg.OCR.PdfToTextPath)
	}

	if llm != nil && cfg.SerpAPI.Key != "" {
		search := serpapi.NewClient(cfg.SerpAPI.Key,
			serpapi.WithBaseURL(cfg.SerpAPI.BaseURL),
			serpapi.WithRateLimit(cfg.SerpAPI.QueriesPerSec),
		)
		env.Discoverer = discover.New(llm, search, discover.Config{
			Model:           cfg.Anthropic.Model,
			MaxTokens:       cfg.Discover.MaxTokens,
			Timeout:         time.Duration(cfg.Discover.TimeoutSecs) * time.Second,
			MaxKeywords:     cfg.Discover.MaxKeywords,
			ResultsPerQuery: cfg.Discover.ResultsPerQuery,
			MaxSources:      cfg.Discover.MaxSources,
		})
	}

	// The scanner works without an LLM; flagged contracts then get a
	// placeholder advisory instead of a web-researched one.
	env.Scanner = expiry.New(llm, expiry.Config{
		Model:            cfg.Anthropic.Model,
		Timeout:          time.Duration(cfg.Scan.TimeoutSecs) * time.Second,
		WarningDays:      cfg.Scan.WarningDays,
		Concurrency:      cfg.Scan.MaxConcurrent,
		WebSearchMaxUses: cfg.Scan.WebSearchMaxUses,
	})

	return env, nil
}
