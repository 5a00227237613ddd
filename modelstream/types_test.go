package modelstream

import (
	"encoding/json"
	"testing"
)

func TestMessageTextContent(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Content: []ContentPart{
			TextPart("hello "),
			ToolCallPart("call_1", "shell", json.RawMessage(`{}`)),
			TextPart("world"),
		},
	}
	if got := msg.TextContent(); got != "hello world" {
		t.Errorf("TextContent() = %q", got)
	}
}

func TestMessageToolCalls(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Content: []ContentPart{
			TextPart("running a command"),
			ToolCallPart("call_1", "shell", json.RawMessage(`{"command":"ls"}`)),
			ToolCallPart("call_2", "glob", json.RawMessage(`{"pattern":"*.go"}`)),
		},
	}
	calls := msg.ToolCalls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(calls))
	}
	if calls[0].ID != "call_1" || calls[0].Name != "shell" {
		t.Errorf("unexpected first call: %+v", calls[0])
	}
	if calls[1].ID != "call_2" || calls[1].Name != "glob" {
		t.Errorf("unexpected second call: %+v", calls[1])
	}
}

func TestMessageConstructors(t *testing.T) {
	if m := SystemMessage("sys"); m.Role != RoleSystem || m.TextContent() != "sys" {
		t.Errorf("SystemMessage: %+v", m)
	}
	if m := UserMessage("usr"); m.Role != RoleUser || m.TextContent() != "usr" {
		t.Errorf("UserMessage: %+v", m)
	}
	if m := AssistantMessage("asst"); m.Role != RoleAssistant || m.TextContent() != "asst" {
		t.Errorf("AssistantMessage: %+v", m)
	}

	m := ToolResultMessage("call_1", "output", true)
	if m.Role != RoleTool || len(m.Content) != 1 {
		t.Fatalf("ToolResultMessage: %+v", m)
	}
	tr := m.Content[0].ToolResult
	if tr == nil || tr.ToolCallID != "call_1" || tr.Content != "output" || !tr.IsError {
		t.Errorf("unexpected tool result: %+v", tr)
	}
}
