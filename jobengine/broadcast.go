package jobengine

import "sync"

// Subscription is one observer of a job's transcript. It first receives
// every event already in the log (replay from sequence 1), then every
// subsequently appended event, in order. The event channel is closed after
// the terminal event has been delivered, or after Close.
//
// Each subscription pumps from the shared log in its own goroutine, so a
// slow or abandoned observer never blocks the engine's append path, it
// only stalls its own pump.
type Subscription struct {
	ch        chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// newSubscription attaches an observer to log, starting at sequence 1.
func newSubscription(log *Log) *Subscription {
	s := &Subscription{
		ch:   make(chan Event, 16),
		done: make(chan struct{}),
	}
	go s.pump(log)
	return s
}

// Events returns the read-only event channel.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close detaches the observer early and releases its pump. Safe to call
// multiple times and safe to call after the channel has completed.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Subscription) pump(log *Log) {
	defer close(s.ch)
	var cursor int64 = 1
	for {
		events, finished, next := log.ReadFrom(cursor)
		for _, e := range events {
			select {
			case s.ch <- e:
			case <-s.done:
				return
			}
		}
		if len(events) > 0 {
			cursor = events[len(events)-1].Sequence + 1
		}
		if finished {
			return
		}
		select {
		case <-next:
		case <-s.done:
			return
		}
	}
}
