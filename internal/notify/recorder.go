package notify

import (
	"context"
	"sync"
)

// Recorder is a synchronous Notifier that keeps every request in memory.
// It is meant for tests and local tooling.
type Recorder struct {
	mu   sync.Mutex
	reqs []Request
}

// Notify implements Notifier.
func (r *Recorder) Notify(_ context.Context, req Request) {
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	r.mu.Unlock()
}

// Requests returns a copy of everything recorded so far.
func (r *Recorder) Requests() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Request(nil), r.reqs...)
}

// Count returns how many requests of type t were addressed to userID. An
// empty userID matches any recipient.
func (r *Recorder) Count(t Type, userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, q := range r.reqs {
		if q.Type == t && (userID == "" || q.UserID == userID) {
			n++
		}
	}
	return n
}

// Reset clears the recorded requests.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.reqs = nil
	r.mu.Unlock()
}
