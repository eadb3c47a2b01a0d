package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageResponse_Text(t *testing.T) {
	resp := &MessageResponse{
		Content: []ContentBlock{
			{Type: "text", Text: "first"},
			{Type: "web_search_tool_result"},
			{Type: "text", Text: " second"},
		},
	}
	assert.Equal(t, "first second", resp.Text())
}

func TestTokenUsage_EstimateCost(t *testing.T) {
	usage := TokenUsage{InputTokens: 1_000_000, OutputTokens: 500_000}

	cost := usage.EstimateCost("claude-haiku-4-5-20251001")
	assert.InDelta(t, 0.80+2.00, cost, 0.001)

	assert.Zero(t, usage.EstimateCost("some-unknown-model"))
}

func TestToSDKMessages_RolesAndAttachments(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{Role: "user", Text: "read this page", Images: []Image{{MediaType: "image/png", Data: []byte{1, 2, 3}}}},
		{Role: "assistant", Text: "done"},
	})

	assert.Len(t, msgs, 2)
	assert.Len(t, msgs[0].Content, 2)
	assert.Len(t, msgs[1].Content, 1)
}
