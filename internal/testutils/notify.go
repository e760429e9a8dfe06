package testutils

import (
	"context"
	"sync"

	"procurement/internal/notify"
)

// Recorder is a notify.Sink that keeps notifications in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *Recorder) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

// OfType returns recorded notifications with the given type.
func (r *Recorder) OfType(typ string) []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Notification
	for _, n := range r.sent {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}
