package modelstream

import "context"

// Backend is the interface every model backend must implement. Converse
// sends the accumulated conversation and available tool schemas and returns
// a channel of turn events. The channel is closed after TurnDone or
// TurnError. A non-nil error return means the request could not be started
// at all.
type Backend interface {
	Converse(ctx context.Context, req ConverseRequest) (<-chan TurnEvent, error)
}
