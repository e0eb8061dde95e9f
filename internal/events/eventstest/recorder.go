// Package eventstest provides an in-memory publisher for tests.
package eventstest

import (
	"context"
	"sync"

	"github.com/smallbiznis/recyclesim/internal/events"
)

// Recorder keeps every envelope it acknowledges. FailNext makes the next n
// publishes of an event type fail with err.
type Recorder struct {
	mu       sync.Mutex
	envs     []events.Envelope
	failures map[string]failure
}

type failure struct {
	remaining int
	err       error
}

func NewRecorder() *Recorder {
	return &Recorder{failures: make(map[string]failure)}
}

func (r *Recorder) Publish(ctx context.Context, env events.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.failures[env.Type]; ok && f.remaining > 0 {
		f.remaining--
		r.failures[env.Type] = f
		return f.err
	}
	r.envs = append(r.envs, env)
	return nil
}

func (r *Recorder) FailNext(eventType string, n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[eventType] = failure{remaining: n, err: err}
}

func (r *Recorder) Envelopes() []events.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Envelope, len(r.envs))
	copy(out, r.envs)
	return out
}

// Types returns the event types recorded for one delivery, in publish order.
func (r *Recorder) Types(deliveryID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, env := range r.envs {
		if env.DeliveryID == deliveryID {
			out = append(out, env.Type)
		}
	}
	return out
}
