package jobengine

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/martinemde/conductor/modelstream"
)

// SubmitRequest describes one unit of requested work.
type SubmitRequest struct {
	Command          string `json:"command"`
	Prompt           string `json:"prompt"`
	WorkingDirectory string `json:"working_directory"`
}

// Registry is the process-wide job table. It creates jobs, starts one
// engine goroutine per job, and serves status, cancellation, and stream
// attachment. A Registry is constructed on process start and injected into
// the transport layer; it holds no ambient global state.
type Registry struct {
	backend  modelstream.Backend
	commands InstructionSource
	tools    ToolDispatcher
	config   Config

	mu   sync.Mutex
	jobs map[string]*job
	wg   sync.WaitGroup
}

// NewRegistry creates a Registry wired to its collaborators. A nil config
// uses DefaultConfig.
func NewRegistry(backend modelstream.Backend, commands InstructionSource, tools ToolDispatcher, config *Config) *Registry {
	cfg := DefaultConfig()
	if config != nil {
		cfg = config.withDefaults()
	}
	return &Registry{
		backend:  backend,
		commands: commands,
		tools:    tools,
		config:   cfg,
		jobs:     make(map[string]*job),
	}
}

// Submit creates a new job and starts its engine as an independent
// goroutine. It returns the job identifier immediately; ctx bounds the
// whole job run, not just submission.
func (r *Registry) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if req.Command == "" {
		return "", fmt.Errorf("command is required")
	}
	if req.WorkingDirectory == "" {
		return "", fmt.Errorf("working directory is required")
	}

	j := &job{
		id:               newJobID(),
		command:          req.Command,
		prompt:           req.Prompt,
		workingDirectory: req.WorkingDirectory,
		createdAt:        time.Now(),
		state:            StateQueued,
		log:              NewLog(),
		done:             make(chan struct{}),
	}

	r.mu.Lock()
	if _, exists := r.jobs[j.id]; exists {
		// Identifier collisions are a correctness bug, not a recoverable
		// condition.
		r.mu.Unlock()
		panic("jobengine: duplicate job identifier " + j.id)
	}
	r.jobs[j.id] = j
	r.mu.Unlock()

	e := &engine{
		job:      j,
		backend:  r.backend,
		commands: r.commands,
		tools:    r.tools,
		config:   r.config,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		e.run(ctx)
	}()

	return j.id, nil
}

// Get returns the current snapshot of a job, or ErrNotFound.
func (r *Registry) Get(id string) (Snapshot, error) {
	j, err := r.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	return j.snapshot(), nil
}

// Cancel requests cancellation of a running job. The engine stops at its
// next safe checkpoint; an in-flight tool execution is allowed to finish.
// Cancelling a job already in a terminal state is a no-op. Returns
// ErrNotFound for an unknown identifier.
func (r *Registry) Cancel(id string) error {
	j, err := r.lookup(id)
	if err != nil {
		return err
	}
	j.requestCancel()
	return nil
}

// Attach subscribes an observer to a job's transcript: full replay from
// sequence 1, then live delivery until the terminal event. Returns
// ErrNotFound for an unknown identifier. Attaching after the job has ended
// replays the complete transcript and then completes.
func (r *Registry) Attach(id string) (*Subscription, error) {
	j, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return newSubscription(j.log), nil
}

// Run submits a job and blocks until it reaches a terminal state,
// returning the final snapshot and the full transcript. It is implemented
// by attaching an internal observer, not by a second loop.
func (r *Registry) Run(ctx context.Context, req SubmitRequest) (Snapshot, []Event, error) {
	id, err := r.Submit(ctx, req)
	if err != nil {
		return Snapshot{}, nil, err
	}

	sub, err := r.Attach(id)
	if err != nil {
		return Snapshot{}, nil, err
	}
	defer sub.Close()

	var transcript []Event
	for {
		select {
		case e, ok := <-sub.Events():
			if !ok {
				snap, err := r.Get(id)
				return snap, transcript, err
			}
			transcript = append(transcript, e)
		case <-ctx.Done():
			// Caller gave up waiting; the job keeps its own cancellation
			// semantics tied to the submit context.
			snap, _ := r.Get(id)
			return snap, transcript, ctx.Err()
		}
	}
}

// Jobs returns snapshots of all known jobs, in no particular order.
func (r *Registry) Jobs() []Snapshot {
	r.mu.Lock()
	jobs := make([]*job, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	r.mu.Unlock()

	snaps := make([]Snapshot, len(jobs))
	for i, j := range jobs {
		snaps[i] = j.snapshot()
	}
	return snaps
}

// Close cancels all running jobs and waits for their engines to finish.
func (r *Registry) Close() {
	r.mu.Lock()
	for _, j := range r.jobs {
		j.requestCancel()
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// newJobID returns a 12-character lowercase hex identifier.
func newJobID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:6])
}

func (r *Registry) lookup(id string) (*job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return j, nil
}
