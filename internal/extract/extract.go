// Package extract drives the document-to-record pipeline: rasterize, one
// vision model call over the full page set, sanitize, parse, normalize.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pactwatch/contract-cli/internal/llmjson"
	"github.com/pactwatch/contract-cli/internal/model"
	"github.com/pactwatch/contract-cli/internal/normalize"
	"github.com/pactwatch/contract-cli/internal/raster"
	"github.com/pactwatch/contract-cli/internal/resilience"
	"github.com/pactwatch/contract-cli/pkg/anthropic"
)

// InvalidOutputError reports model output that survived sanitization but
// still failed to parse as JSON. Terminal per call: the raw text is carried
// for diagnostics and the call is not retried.
type InvalidOutputError struct {
	Stage string
	Raw   string
	Err   error
}

func (e *InvalidOutputError) Error() string {
	snippet := e.Raw
	if len(snippet) > 200 {
		snippet = snippet[:200] + "..."
	}
	return fmt.Sprintf("%s: model output is not valid JSON: %v (raw: %q)", e.Stage, e.Err, snippet)
}

func (e *InvalidOutputError) Unwrap() error {
	return e.Err
}

// Config tunes the extraction calls.
type Config struct {
	Model       string
	MaxTokens   int64
	Temperature float64
	Timeout     time.Duration
	Variant     Variant
}

func (c Config) withDefaults() Config {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 2000
	}
	if c.Temperature == 0 {
		c.Temperature = 0.1
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Variant == "" {
		c.Variant = VariantStandard
	}
	return c
}

// Extractor turns a raw document into a normalized ContractRecord.
type Extractor struct {
	llm    anthropic.Client
	raster raster.Rasterizer
	cfg    Config
	retry  resilience.RetryConfig
}

// New creates an Extractor. Dependencies are explicit so tests can swap in
// fakes; no shared state survives between calls.
func New(llm anthropic.Client, r raster.Rasterizer, cfg Config) *Extractor {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("anthropic", "extract")
	return &Extractor{llm: llm, raster: r, cfg: cfg.withDefaults(), retry: retry}
}

// Extract runs the full pipeline on one document. An unsupported format or
// a model/decode failure surfaces as a typed error; nothing is retried past
// the transient-call level.
func (e *Extractor) Extract(ctx context.Context, doc model.RawDocument) (*model.ContractRecord, error) {
	pages, err := e.raster.Rasterize(ctx, doc)
	if err != nil {
		return nil, err
	}
	return e.ExtractPages(ctx, doc.Name, pages)
}

// ExtractPages runs the model/sanitize/normalize steps on an already
// rasterized page set. Used directly when the caller has pages in hand,
// e.g. a batch evaluation harness slicing first pages only.
func (e *Extractor) ExtractPages(ctx context.Context, name string, pages []model.PageImage) (*model.ContractRecord, error) {
	msg := anthropic.Message{
		Role: "user",
		Text: fmt.Sprintf("%s\n\n# This is the contract file: %s\n# Total pages: %d", promptFor(e.cfg.Variant), name, len(pages)),
	}
	for _, p := range pages {
		msg.Images = append(msg.Images, anthropic.Image{MediaType: p.MediaType, Data: p.Data})
	}

	raw, usage, err := e.callModel(ctx, msg)
	if err != nil {
		return nil, err
	}
	usage.LogCost(e.cfg.Model, "extract")

	fields, err := parseFields(raw, "extract")
	if err != nil {
		return nil, err
	}

	rec, warnings := normalize.Record(fields)
	for _, w := range warnings {
		zap.L().Warn("extract: field normalization", zap.String("file", name), zap.String("detail", w))
	}
	rec.SourceFile = name
	rec.CreatedAt = time.Now().UTC()

	zap.L().Info("extract: record ready",
		zap.String("file", name),
		zap.Int("pages", len(pages)),
		zap.String("provider", rec.ProviderName()),
	)
	return &rec, nil
}

// callModel issues one message call under the configured timeout, retrying
// only transient failures. The sanitized text is returned.
func (e *Extractor) callModel(ctx context.Context, msg anthropic.Message) (string, anthropic.TokenUsage, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	temp := e.cfg.Temperature
	resp, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return e.llm.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       e.cfg.Model,
			MaxTokens:   e.cfg.MaxTokens,
			System:      systemPrompt,
			Messages:    []anthropic.Message{msg},
			Temperature: &temp,
		})
	})
	if err != nil {
		return "", anthropic.TokenUsage{}, err
	}

	return resp.Text(), resp.Usage, nil
}

// parseFields sanitizes raw model text and decodes the embedded JSON object.
func parseFields(raw, stage string) (map[string]any, error) {
	cleaned := llmjson.Sanitize(raw)

	var fields map[string]any
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return nil, &InvalidOutputError{Stage: stage, Raw: raw, Err: err}
	}
	return fields, nil
}
