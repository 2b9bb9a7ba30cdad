package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(role, text string) Message {
	return Message{Role: role, Content: MessageContent{Blocks: []ContentBlock{{Type: "text", Text: text}}}}
}

func TestTranslate_EmptyHistoryTextOnly(t *testing.T) {
	req := &Request{
		Model:     "claude-3-5-sonnet-20241022",
		MaxTokens: 16,
		Messages:  []Message{msg("user", "hi")},
	}

	cs, err := Translate(req)
	require.NoError(t, err)

	assert.Equal(t, "hi", cs.Current.User.Text)
	assert.Empty(t, cs.History)
	assert.Equal(t, "claude-sonnet-4.5", cs.Model)
}

func TestTranslate_SessionExtraction(t *testing.T) {
	req := &Request{
		Model:    "claude-sonnet-4-5",
		Messages: []Message{msg("user", "hi")},
		Metadata: &Metadata{UserID: "user_x_account__session_a0662283-7fd3-4399-a7eb-52b9a717ae88"},
	}

	cs, err := Translate(req)
	require.NoError(t, err)
	assert.Equal(t, "a0662283-7fd3-4399-a7eb-52b9a717ae88", cs.ConversationID)
}

func TestTranslate_PlaceholderToolInjected(t *testing.T) {
	req := &Request{
		Model: "claude-sonnet-4-5",
		Messages: []Message{
			msg("user", "run it"),
			{
				Role: "assistant",
				Content: MessageContent{Blocks: []ContentBlock{
					{Type: "tool_use", ID: "t1", Name: "read", Input: json.RawMessage(`{}`)},
				}},
			},
			{
				Role: "user",
				Content: MessageContent{Blocks: []ContentBlock{
					{Type: "tool_result", ToolUseID: "t1", Content: "file contents"},
				}},
			},
		},
	}

	cs, err := Translate(req)
	require.NoError(t, err)

	var found bool
	for _, tool := range cs.Current.Tools {
		if tool.Name == "read" {
			found = true
			assert.Equal(t, placeholderDescription, tool.Description)
		}
	}
	assert.True(t, found, "expected placeholder tool for 'read'")
	require.Len(t, cs.Current.User.ToolResults, 1)
	assert.Equal(t, "t1", cs.Current.User.ToolResults[0].ToolUseID)
}

func TestTranslate_OrphanToolResultDropped(t *testing.T) {
	req := &Request{
		Model: "claude-sonnet-4-5",
		Messages: []Message{
			msg("user", "hello"),
			{
				Role: "user",
				Content: MessageContent{Blocks: []ContentBlock{
					{Type: "text", Text: "here"},
					{Type: "tool_result", ToolUseID: "ghost", Content: "nothing"},
				}},
			},
		},
	}

	cs, err := Translate(req)
	require.NoError(t, err)
	assert.Empty(t, cs.Current.User.ToolResults)
}

func TestTranslate_OpusInjection(t *testing.T) {
	req := &Request{
		Model:    "claude-opus-4-5-20250101",
		Messages: []Message{msg("user", "hi")},
	}

	cs, err := Translate(req)
	require.NoError(t, err)
	require.NotEmpty(t, cs.History)
	assert.Equal(t, "I will follow these instructions.", cs.History[0].Assistant.Text)
	assert.Contains(t, cs.History[0].User.Text, opusSpecializationPrompt)
}

func TestTranslate_UnknownModelFails(t *testing.T) {
	req := &Request{Model: "gpt-4", Messages: []Message{msg("user", "hi")}}
	_, err := Translate(req)
	require.Error(t, err)
}

func TestTranslate_EmptyMessagesFails(t *testing.T) {
	req := &Request{Model: "claude-sonnet-4-5", Messages: nil}
	_, err := Translate(req)
	require.Error(t, err)
}

func TestTranslate_TrailingAssistantSynthesizesEmptyUser(t *testing.T) {
	req := &Request{
		Model: "claude-sonnet-4-5",
		Messages: []Message{
			msg("user", "hi"),
			msg("assistant", "hello there"),
		},
	}
	cs, err := Translate(req)
	require.NoError(t, err)
	assert.Empty(t, cs.Current.User.Text)
	require.NotEmpty(t, cs.History)
}

func TestTranslate_OrphanedAssistantMessageDropped(t *testing.T) {
	req := &Request{
		Model: "claude-sonnet-4-5",
		Messages: []Message{
			msg("assistant", "unsolicited"),
			msg("user", "hi"),
			msg("assistant", "reply one"),
			msg("assistant", "reply two"),
			msg("user", "bye"),
		},
	}
	cs, err := Translate(req)
	require.NoError(t, err)

	// "unsolicited" has no preceding user turn and is dropped; "reply one"
	// pairs with "hi"; "reply two" has no preceding user turn (pendingUser
	// was consumed by "reply one") and is also dropped.
	require.Len(t, cs.History, 1)
	assert.Equal(t, "hi", cs.History[0].User.Text)
	assert.Equal(t, "reply one", cs.History[0].Assistant.Text)
	assert.Equal(t, "bye", cs.Current.User.Text)
}

func TestExtractSessionID_RejectsMalformedUUID(t *testing.T) {
	_, ok := extractSessionID("session_not-a-real-uuid-shape")
	assert.False(t, ok)
}

func TestConvertTools_TruncatesAtRuneBoundary(t *testing.T) {
	long := make([]rune, maxToolDescriptionRunes+50)
	for i := range long {
		long[i] = '日' // multi-byte rune, to ensure boundary safety
	}
	tools := convertTools([]Tool{{Name: "x", Description: string(long)}})
	require.Len(t, tools, 1)
	assert.Len(t, []rune(tools[0].Description), maxToolDescriptionRunes)
}

func TestHistoryAlternatesStrictly(t *testing.T) {
	req := &Request{
		Model: "claude-sonnet-4-5",
		Messages: []Message{
			msg("user", "a"),
			msg("user", "b"),
			msg("assistant", "c"),
			msg("user", "d"),
		},
	}
	cs, err := Translate(req)
	require.NoError(t, err)
	require.Len(t, cs.History, 1)
	assert.Equal(t, "a\nb", cs.History[0].User.Text)
	assert.Equal(t, "d", cs.Current.User.Text)
}
