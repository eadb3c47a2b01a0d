package extract

import (
	"context"
	"sync"

	"github.com/pactwatch/contract-cli/internal/model"
	"github.com/pactwatch/contract-cli/pkg/anthropic"
)

// mockLLM replays canned responses and records every request.
type mockLLM struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	requests  []anthropic.MessageRequest
}

func (m *mockLLM) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	call := len(m.requests) - 1

	if call < len(m.errs) && m.errs[call] != nil {
		return nil, m.errs[call]
	}

	text := ""
	if call < len(m.responses) {
		text = m.responses[call]
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}, nil
}

// fakeRasterizer returns fixed pages without touching poppler.
type fakeRasterizer struct {
	pages []model.PageImage
	err   error
}

func (f *fakeRasterizer) Rasterize(context.Context, model.RawDocument) ([]model.PageImage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pages, nil
}
