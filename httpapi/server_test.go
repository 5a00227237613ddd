package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/martinemde/conductor/commands"
	"github.com/martinemde/conductor/jobengine"
	"github.com/martinemde/conductor/modelstream"
)

// scriptedBackend replays fixed turns so jobs complete without a real
// model provider.
type scriptedBackend struct {
	turns [][]modelstream.TurnEvent
}

func (b *scriptedBackend) Converse(ctx context.Context, req modelstream.ConverseRequest) (<-chan modelstream.TurnEvent, error) {
	var turn []modelstream.TurnEvent
	if len(b.turns) > 0 {
		turn = b.turns[0]
		b.turns = b.turns[1:]
	}
	ch := make(chan modelstream.TurnEvent, len(turn)+1)
	for _, ev := range turn {
		ch <- ev
	}
	ch <- modelstream.TurnEvent{Type: modelstream.TurnDone}
	close(ch)
	return ch, nil
}

// ctxCheckedBackend refuses an already-cancelled context the way a real
// provider client does.
type ctxCheckedBackend struct{}

func (ctxCheckedBackend) Converse(ctx context.Context, req modelstream.ConverseRequest) (<-chan modelstream.TurnEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, &modelstream.UnavailableError{BackendError: modelstream.BackendError{
			Message: "context cancelled", Cause: err,
		}}
	}
	ch := make(chan modelstream.TurnEvent, 2)
	ch <- modelstream.TurnEvent{Type: modelstream.TurnText, Text: "ok"}
	ch <- modelstream.TurnEvent{Type: modelstream.TurnDone}
	close(ch)
	return ch, nil
}

type nullDispatcher struct{}

func (nullDispatcher) Execute(ctx context.Context, name string, args json.RawMessage, workingDirectory string) (string, error) {
	return "", nil
}

func (nullDispatcher) Definitions() []modelstream.ToolDefinition { return nil }

func newTestServer(t *testing.T, backend modelstream.Backend) (*httptest.Server, *jobengine.Registry) {
	t.Helper()

	dir := t.TempDir()
	cmd := "---\ndescription: Explore a codebase.\n---\nYou explore codebases.\n"
	if err := os.WriteFile(filepath.Join(dir, "explore.md"), []byte(cmd), 0644); err != nil {
		t.Fatal(err)
	}
	library, err := commands.Load(dir)
	if err != nil {
		t.Fatalf("load commands: %v", err)
	}

	cfg := jobengine.DefaultConfig()
	registry := jobengine.NewRegistry(backend, library, nullDispatcher{}, &cfg)
	t.Cleanup(registry.Close)

	srv := httptest.NewServer(NewServer(registry, library, nil).Router())
	t.Cleanup(srv.Close)
	return srv, registry
}

func submitJob(t *testing.T, srv *httptest.Server, body string) string {
	t.Helper()
	resp, err := http.Post(srv.URL+"/jobs", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out.JobID
}

func waitState(t *testing.T, r *jobengine.Registry, id string, want jobengine.State) jobengine.Snapshot {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		snap, err := r.Get(id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if snap.State == want {
			return snap
		}
		select {
		case <-deadline:
			t.Fatalf("job never reached %s (state=%s)", want, snap.State)
		case <-time.After(time.Millisecond):
		}
	}
}

func TestSubmitReturnsJobID(t *testing.T) {
	srv, registry := newTestServer(t, &scriptedBackend{turns: [][]modelstream.TurnEvent{
		{{Type: modelstream.TurnText, Text: "done"}},
	}})

	id := submitJob(t, srv, `{"command":"explore","prompt":"look around","working_directory":"`+t.TempDir()+`"}`)
	if len(id) != 12 {
		t.Errorf("job id %q: expected 12 characters", id)
	}
	waitState(t, registry, id, jobengine.StateCompleted)
}

func TestSubmittedJobOutlivesRequestContext(t *testing.T) {
	// net/http cancels the request context when the submit handler returns;
	// the engine must run under a detached context or every job fails on
	// its first backend call.
	srv, registry := newTestServer(t, ctxCheckedBackend{})

	id := submitJob(t, srv, `{"command":"explore","prompt":"p","working_directory":"`+t.TempDir()+`"}`)
	snap := waitState(t, registry, id, jobengine.StateCompleted)
	if snap.Error != "" {
		t.Errorf("snapshot error = %q, want none", snap.Error)
	}
}

func TestSubmitRejectsBadRequests(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedBackend{})

	for _, body := range []string{"{not json", `{"prompt":"no command"}`} {
		resp, err := http.Post(srv.URL+"/jobs", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, registry := newTestServer(t, &scriptedBackend{turns: [][]modelstream.TurnEvent{
		{{Type: modelstream.TurnText, Text: "done"}},
	}})

	id := submitJob(t, srv, `{"command":"explore","prompt":"p","working_directory":"`+t.TempDir()+`"}`)
	waitState(t, registry, id, jobengine.StateCompleted)

	resp, err := http.Get(srv.URL + "/jobs/" + id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var snap jobengine.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.ID != id || snap.State != jobengine.StateCompleted {
		t.Errorf("snapshot: %+v", snap)
	}
}

func TestStatusUnknownJob(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedBackend{})

	resp, err := http.Get(srv.URL + "/jobs/doesnotexist")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestCancelEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedBackend{turns: [][]modelstream.TurnEvent{
		{{Type: modelstream.TurnText, Text: "done"}},
	}})

	id := submitJob(t, srv, `{"command":"explore","prompt":"p","working_directory":"`+t.TempDir()+`"}`)

	resp, err := http.Post(srv.URL+"/jobs/"+id+"/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/jobs/doesnotexist/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown job cancel status = %d, want 404", resp.StatusCode)
	}
}

func TestCommandsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedBackend{})

	resp, err := http.Get(srv.URL + "/commands")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var list []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].Name != "explore" || list[0].Description != "Explore a codebase." {
		t.Errorf("commands = %+v", list)
	}
}

func TestCommandDetailEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedBackend{})

	resp, err := http.Get(srv.URL + "/commands/explore")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var cmd struct {
		Name         string `json:"name"`
		Description  string `json:"description"`
		Instructions string `json:"instructions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&cmd); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cmd.Name != "explore" || !strings.Contains(cmd.Instructions, "You explore codebases.") {
		t.Errorf("command = %+v", cmd)
	}

	resp, err = http.Get(srv.URL + "/commands/doesnotexist")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown command status = %d, want 404", resp.StatusCode)
	}
}

func TestEventsStreamReplaysAndCompletes(t *testing.T) {
	srv, registry := newTestServer(t, &scriptedBackend{turns: [][]modelstream.TurnEvent{
		{{Type: modelstream.TurnText, Text: "hello"}, {Type: modelstream.TurnText, Text: " there"}},
	}})

	id := submitJob(t, srv, `{"command":"explore","prompt":"p","working_directory":"`+t.TempDir()+`"}`)
	waitState(t, registry, id, jobengine.StateCompleted)

	// Attaching after completion still replays the full transcript.
	resp, err := http.Get(srv.URL + "/jobs/" + id + "/events")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	var messages, completes int
	var completeData []byte
	scanner := bufio.NewScanner(resp.Body)
	var currentEvent string
	for scanner.Scan() {
		line := scanner.Bytes()
		switch {
		case bytes.HasPrefix(line, []byte("event: ")):
			currentEvent = string(bytes.TrimPrefix(line, []byte("event: ")))
		case bytes.HasPrefix(line, []byte("data: ")):
			data := bytes.TrimPrefix(line, []byte("data: "))
			switch currentEvent {
			case "message":
				messages++
			case "complete":
				completes++
				completeData = append([]byte(nil), data...)
			}
		}
	}

	// Transcript: two text events plus the terminal event.
	if messages != 3 {
		t.Errorf("message events = %d, want 3", messages)
	}
	if completes != 1 {
		t.Fatalf("complete events = %d, want 1", completes)
	}
	var snap jobengine.Snapshot
	if err := json.Unmarshal(completeData, &snap); err != nil {
		t.Fatalf("complete payload: %v", err)
	}
	if snap.State != jobengine.StateCompleted {
		t.Errorf("complete state = %s", snap.State)
	}
}

func TestEventsStreamUnknownJob(t *testing.T) {
	srv, _ := newTestServer(t, &scriptedBackend{})

	resp, err := http.Get(srv.URL + "/jobs/doesnotexist/events")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
