package jobengine

import (
	"context"
	"sync"
	"time"
)

// State represents the lifecycle state of a job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Snapshot is a point-in-time view of a job returned by Registry.Get.
type Snapshot struct {
	ID               string        `json:"id"`
	Command          string        `json:"command"`
	Prompt           string        `json:"prompt"`
	WorkingDirectory string        `json:"working_directory"`
	State            State         `json:"state"`
	Error            string        `json:"error,omitempty"`
	Reason           FailureReason `json:"reason,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	EndedAt          time.Time     `json:"ended_at,omitzero"`
	EventCount       int           `json:"event_count"`
}

// job is the registry-owned record for one submitted unit of work. It is
// created once and never reused; a terminal job cannot be restarted.
type job struct {
	id               string
	command          string
	prompt           string
	workingDirectory string
	createdAt        time.Time
	log              *Log

	mu              sync.Mutex
	state           State
	errText         string
	reason          FailureReason
	endedAt         time.Time
	cancelRequested bool
	cancel          context.CancelFunc // interrupts engine waits
	done            chan struct{}      // closed on terminal transition
}

func (j *job) snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Snapshot{
		ID:               j.id,
		Command:          j.command,
		Prompt:           j.prompt,
		WorkingDirectory: j.workingDirectory,
		State:            j.state,
		Error:            j.errText,
		Reason:           j.reason,
		CreatedAt:        j.createdAt,
		EndedAt:          j.endedAt,
		EventCount:       j.log.Len(),
	}
}

// requestCancel flags the job for cancellation and interrupts any engine
// wait. Returns false if the job is already terminal.
func (j *job) requestCancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return false
	}
	j.cancelRequested = true
	if j.cancel != nil {
		j.cancel()
	}
	return true
}

func (j *job) cancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelRequested
}

func (j *job) setRunning() {
	j.mu.Lock()
	j.state = StateRunning
	j.mu.Unlock()
}

// finish records the terminal state exactly once and appends the terminal
// transcript event. Later calls are ignored, which gives cancellation a
// deterministic win over results still arriving from the loop.
func (j *job) finish(state State, reason FailureReason, errText string) {
	j.mu.Lock()
	if j.state.Terminal() {
		j.mu.Unlock()
		return
	}
	j.state = state
	j.reason = reason
	j.errText = errText
	j.endedAt = time.Now()
	close(j.done)
	j.mu.Unlock()

	switch state {
	case StateCompleted:
		j.log.Append(Event{Kind: EventJobCompleted})
	case StateCancelled:
		j.log.Append(Event{Kind: EventJobCancelled})
	case StateFailed:
		j.log.Append(Event{Kind: EventJobFailed, Error: errText, Reason: reason})
	}
}
