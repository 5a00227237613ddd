// Package httpapi exposes the job registry over HTTP: job submission,
// status polling, cancellation, and a Server-Sent Events transcript stream
// that replays history before tailing live events.
package httpapi
