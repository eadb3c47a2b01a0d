package discover

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pactwatch/contract-cli/internal/model"
	"github.com/pactwatch/contract-cli/pkg/anthropic"
	"github.com/pactwatch/contract-cli/pkg/serpapi"
)

type mockLLM struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	requests  []anthropic.MessageRequest
}

func (m *mockLLM) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := len(m.requests)
	m.requests = append(m.requests, req)
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	text := ""
	if i < len(m.responses) {
		text = m.responses[i]
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}, nil
}

type mockSearch struct {
	mu      sync.Mutex
	results map[string][]serpapi.OrganicResult
	errs    map[string]error
	queries []string
}

func (m *mockSearch) Search(_ context.Context, query string, _ int) ([]serpapi.OrganicResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)
	if err := m.errs[query]; err != nil {
		return nil, err
	}
	return m.results[query], nil
}

func testRecord() model.ContractRecord {
	return model.ContractRecord{
		ID:            "c-1",
		Provider:      "Acme Cloud",
		Service:       "Object Storage",
		StartDate:     "2024-01-01",
		EndDate:       "2025-01-01",
		RenewalStatus: model.RenewalAuto,
	}
}

func TestDiscover_FullWorkflow(t *testing.T) {
	llm := &mockLLM{responses: []string{
		"```json\n[\"cloud object storage pricing\", \"s3 compatible storage\"]\n```",
		"## Report\nDetailed comparison here.",
	}}
	search := &mockSearch{results: map[string][]serpapi.OrganicResult{
		"cloud object storage pricing": {
			{Position: 1, Title: "Wasabi", Link: "https://wasabi.com", Snippet: "Hot storage"},
			{Position: 2, Title: "Backblaze", Link: "https://backblaze.com", Snippet: "B2 storage"},
		},
		"s3 compatible storage": {
			{Position: 1, Title: "Wasabi", Link: "https://wasabi.com", Snippet: "Hot storage"},
			{Position: 2, Title: "MinIO", Link: "https://min.io", Snippet: "Self hosted"},
		},
	}}

	d := New(llm, search, Config{Model: "claude-test", Timeout: time.Second})
	rep, err := d.Discover(context.Background(), testRecord(), "cheaper storage with the same durability")
	require.NoError(t, err)

	// dedup by URL, first occurrence wins, keyword order preserved
	require.Len(t, rep.Sources, 3)
	assert.Equal(t, "https://wasabi.com", rep.Sources[0].URL)
	assert.Equal(t, "https://backblaze.com", rep.Sources[1].URL)
	assert.Equal(t, "https://min.io", rep.Sources[2].URL)

	assert.Equal(t, "## Report\nDetailed comparison here.", rep.Report)

	require.Len(t, llm.requests, 2)
	kwPrompt := llm.requests[0].Messages[0].Text
	assert.Contains(t, kwPrompt, "Acme Cloud")
	assert.Contains(t, kwPrompt, "cheaper storage with the same durability")
	synthPrompt := llm.requests[1].Messages[0].Text
	assert.Contains(t, synthPrompt, "Wasabi")
	assert.Contains(t, synthPrompt, "RECOMMENDATION")
}

func TestDiscover_KeywordFailureIsTerminal(t *testing.T) {
	llm := &mockLLM{responses: []string{"I cannot help with that."}}
	search := &mockSearch{}

	d := New(llm, search, Config{Model: "claude-test", Timeout: time.Second})
	_, err := d.Discover(context.Background(), testRecord(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keyword")
	assert.Empty(t, search.queries, "no searches should run without keywords")
}

func TestDiscover_KeywordCapEnforced(t *testing.T) {
	llm := &mockLLM{responses: []string{
		`["a", "b", "c", "d", "e"]`,
		"report",
	}}
	search := &mockSearch{}

	d := New(llm, search, Config{Model: "claude-test", Timeout: time.Second})
	_, err := d.Discover(context.Background(), testRecord(), "anything")
	require.NoError(t, err)
	assert.Len(t, search.queries, 3)
}

func TestDiscover_SingleSearchFailureSwallowed(t *testing.T) {
	llm := &mockLLM{responses: []string{
		`["good query", "bad query"]`,
		"report over one source",
	}}
	search := &mockSearch{
		results: map[string][]serpapi.OrganicResult{
			"good query": {{Position: 1, Title: "Only", Link: "https://only.example", Snippet: "s"}},
		},
		errs: map[string]error{"bad query": errors.New("serpapi: status 500")},
	}

	d := New(llm, search, Config{Model: "claude-test", Timeout: time.Second})
	rep, err := d.Discover(context.Background(), testRecord(), "anything")
	require.NoError(t, err)
	require.Len(t, rep.Sources, 1)
	assert.Equal(t, "https://only.example", rep.Sources[0].URL)
}

func TestDiscover_SourceCap(t *testing.T) {
	results := make([]serpapi.OrganicResult, 15)
	for i := range results {
		results[i] = serpapi.OrganicResult{
			Position: i + 1,
			Title:    "r",
			Link:     "https://example.com/" + strings.Repeat("x", i+1),
		}
	}
	llm := &mockLLM{responses: []string{`["q"]`, "report"}}
	search := &mockSearch{results: map[string][]serpapi.OrganicResult{"q": results}}

	d := New(llm, search, Config{Model: "claude-test", Timeout: time.Second})
	rep, err := d.Discover(context.Background(), testRecord(), "anything")
	require.NoError(t, err)
	assert.Len(t, rep.Sources, 10)
}

func TestDiscover_SynthesisFailureEmbedded(t *testing.T) {
	llm := &mockLLM{
		responses: []string{`["q"]`},
		errs:      []error{nil, errors.New("model unavailable")},
	}
	search := &mockSearch{results: map[string][]serpapi.OrganicResult{
		"q": {{Position: 1, Title: "T", Link: "https://t.example", Snippet: "s"}},
	}}

	d := New(llm, search, Config{Model: "claude-test", Timeout: time.Second})
	rep, err := d.Discover(context.Background(), testRecord(), "anything")
	require.NoError(t, err, "synthesis failure must not surface as an error")
	assert.Contains(t, rep.Report, "report generation failed")
	assert.Contains(t, rep.Report, "model unavailable")
	assert.Len(t, rep.Sources, 1, "sources survive a failed synthesis")
}

func TestFormatSources_Empty(t *testing.T) {
	assert.Equal(t, "No similar services were found.", FormatSources(nil))
}
