package jobengine

import (
	"encoding/json"
	"testing"
)

func sigs(names ...string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = toolCallSignature(n, json.RawMessage(`{}`))
	}
	return out
}

func TestToolCallSignatureDeterministic(t *testing.T) {
	a := toolCallSignature("shell", json.RawMessage(`{"command":"ls"}`))
	b := toolCallSignature("shell", json.RawMessage(`{"command":"ls"}`))
	if a != b {
		t.Error("identical calls must produce identical signatures")
	}

	c := toolCallSignature("shell", json.RawMessage(`{"command":"pwd"}`))
	if a == c {
		t.Error("different arguments must produce different signatures")
	}
	d := toolCallSignature("grep", json.RawMessage(`{"command":"ls"}`))
	if a == d {
		t.Error("different tools must produce different signatures")
	}
}

func TestDetectLoopSinglePattern(t *testing.T) {
	window := sigs("a", "a", "a", "a")
	if !detectLoop(window, 4) {
		t.Error("expected length-1 pattern detected")
	}
}

func TestDetectLoopPairPattern(t *testing.T) {
	window := sigs("a", "b", "a", "b", "a", "b")
	if !detectLoop(window, 6) {
		t.Error("expected length-2 pattern detected")
	}
}

func TestDetectLoopTriplePattern(t *testing.T) {
	window := sigs("a", "b", "c", "a", "b", "c")
	if !detectLoop(window, 6) {
		t.Error("expected length-3 pattern detected")
	}
}

func TestDetectLoopNoPattern(t *testing.T) {
	window := sigs("a", "b", "c", "d", "e", "f")
	if detectLoop(window, 6) {
		t.Error("unexpected loop detected in distinct calls")
	}
}

func TestDetectLoopInsufficientHistory(t *testing.T) {
	if detectLoop(sigs("a", "a"), 4) {
		t.Error("window larger than history must not trigger")
	}
	if detectLoop(sigs("a", "a", "a", "a"), 0) {
		t.Error("zero window disables detection")
	}
}

func TestDetectLoopOnlyExaminesWindow(t *testing.T) {
	// Old history is varied; only the trailing window repeats.
	history := append(sigs("x", "y", "z"), sigs("a", "a", "a", "a")...)
	if !detectLoop(history, 4) {
		t.Error("expected detection on the trailing window")
	}

	// Trailing window varied even though earlier history repeated.
	history = append(sigs("a", "a", "a", "a"), sigs("x", "y", "z", "w")...)
	if detectLoop(history, 4) {
		t.Error("detection must ignore history before the window")
	}
}
