package extract

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pactwatch/contract-cli/internal/model"
	"github.com/pactwatch/contract-cli/internal/normalize"
	"github.com/pactwatch/contract-cli/internal/resilience"
	"github.com/pactwatch/contract-cli/pkg/anthropic"
)

// refineContentBudget bounds how much of the original text rides along on
// the refinement call.
const refineContentBudget = 2000

// Refiner cross-checks an extracted record against the original content
// with a second model call. It only ever runs on a successful first pass;
// callers fall back to the unrefined record when refinement fails.
type Refiner struct {
	llm   anthropic.Client
	cfg   Config
	retry resilience.RetryConfig
}

// NewRefiner creates a Refiner sharing the extractor's model settings.
func NewRefiner(llm anthropic.Client, cfg Config) *Refiner {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("anthropic", "refine")
	return &Refiner{llm: llm, cfg: cfg.withDefaults(), retry: retry}
}

// Refine re-submits the record plus (truncated) original text and returns
// the corrected record. Any failure leaves the caller's first-pass record
// untouched.
func (r *Refiner) Refine(ctx context.Context, rec model.ContractRecord, originalText string) (*model.ContractRecord, error) {
	extracted, err := marshalFieldView(rec)
	if err != nil {
		return nil, eris.Wrap(err, "refine: marshal record")
	}

	content := []rune(originalText)
	if len(content) > refineContentBudget {
		content = content[:refineContentBudget]
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	temp := r.cfg.Temperature
	resp, err := resilience.DoVal(ctx, r.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return r.llm.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     r.cfg.Model,
			MaxTokens: r.cfg.MaxTokens,
			System:    "You are a data validation expert. Always respond in valid JSON format.",
			Messages: []anthropic.Message{{
				Role: "user",
				Text: fmt.Sprintf(refinePrompt, extracted, string(content)),
			}},
			Temperature: &temp,
		})
	})
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(r.cfg.Model, "refine")

	fields, err := parseFields(resp.Text(), "refine")
	if err != nil {
		return nil, err
	}

	refined, warnings := normalize.Record(fields)
	for _, w := range warnings {
		zap.L().Warn("refine: field normalization", zap.String("detail", w))
	}
	refined.ID = rec.ID
	refined.SourceFile = rec.SourceFile
	refined.CreatedAt = rec.CreatedAt

	return &refined, nil
}

// marshalFieldView renders only the contract fields for the refinement
// prompt, dropping record metadata and flattening pass-through extras.
func marshalFieldView(rec model.ContractRecord) ([]byte, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var view map[string]any
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, err
	}
	delete(view, "id")
	delete(view, "source_file")
	delete(view, "created_at")
	if extra, ok := view["Extra"].(map[string]any); ok {
		delete(view, "Extra")
		for k, v := range extra {
			view[k] = v
		}
	}
	return json.MarshalIndent(view, "", "  ")
}
