// Package notify carries user notifications out of the domain services.
//
// Services build a Request after their transaction commits and hand it to a
// Notifier. The production Notifier is a Dispatcher: a bounded queue drained
// by a small worker pool that fans every request out to a set of Sinks (the
// database inbox, Kafka, the log). Enqueueing never blocks the caller; when
// the queue is full the request is dropped and counted.
package notify

import "context"

// Type names a notification kind. Values are stable and shared with clients.
type Type string

const (
	TenancyProposed          Type = "tenancy_proposed"
	TenancyConfirmed         Type = "tenancy_confirmed"
	ExtensionProposed        Type = "tenancy_extension_proposed"
	ExtensionAccepted        Type = "tenancy_extension_accepted"
	ExtensionRejected        Type = "tenancy_extension_rejected"
	StillLivingCheck         Type = "tenancy_still_living_check"
	ReviewAvailable          Type = "review_available"
	ReviewCounterpartWritten Type = "review_counterpart_submitted"
	ReviewRevealed           Type = "review_revealed"
)

// Request is a single notification addressed to one user.
type Request struct {
	UserID  string            `json:"user_id"`
	Type    Type              `json:"type"`
	Context map[string]string `json:"context,omitempty"`
}

// Notifier accepts notification requests. Implementations must not block on
// delivery and must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, req Request)
}

// Nop discards every request.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Request) {}

// Batch collects requests inside a transaction so they can be emitted only
// once it has committed.
type Batch []Request

// Add appends one request per recipient, skipping empty user ids.
func (b *Batch) Add(t Type, kv map[string]string, userIDs ...string) {
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		*b = append(*b, Request{UserID: id, Type: t, Context: kv})
	}
}

// Send hands every collected request to n. A nil Notifier drops them.
func (b Batch) Send(ctx context.Context, n Notifier) {
	if n == nil {
		return
	}
	for _, r := range b {
		n.Notify(ctx, r)
	}
}
