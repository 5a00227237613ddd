// Package jobengine implements the job orchestration and streaming engine.
//
// A caller submits a named command plus a prompt against a working
// directory. The engine drives a multi-turn loop between a model backend
// and a tool dispatcher until the job reaches a terminal state, recording
// every step in an append-only per-job event log. Any number of observers
// can attach to a job and receive the full transcript (replay from the
// first event, then live delivery) without ever blocking the loop.
//
// The package is organized around these core concepts:
//
//   - Log: append-only, gap-free event sequence; the unit of truth for
//     what happened in a job.
//   - Subscription: one observer of a job's log; replay plus live tail,
//     completed after the terminal event.
//   - Registry: process-wide job table; owns job lifecycle and spawns one
//     engine goroutine per submitted job.
//   - engine: the turn loop alternating model calls and sequential tool
//     dispatch.
//
// # Quick Start
//
//	reg := jobengine.NewRegistry(backend, library, dispatcher, nil)
//	defer reg.Close()
//
//	id, err := reg.Submit(ctx, jobengine.SubmitRequest{
//	    Command:          "api-generate",
//	    Prompt:           "https://github.com/openshift/enhancements/pull/1234",
//	    WorkingDirectory: "/tmp/repo",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sub, _ := reg.Attach(id)
//	for event := range sub.Events() {
//	    fmt.Printf("[%s] %s\n", event.Kind, event.Text)
//	}
package jobengine
