// Package orders holds the status machine and totals arithmetic shared by
// the sales and purchasing modules.
package orders

import "fmt"

// Status enumerates order lifecycle states.
type Status string

const (
	// StatusDraft is the initial state; only draft orders accept item edits.
	StatusDraft Status = "draft"
	// StatusApproved marks a sales order released for fulfillment.
	StatusApproved Status = "approved"
	// StatusSent marks a purchase order sent to the supplier.
	StatusSent Status = "sent"
	// StatusPartiallyFulfilled means some but not all ordered quantity shipped.
	StatusPartiallyFulfilled Status = "partially_fulfilled"
	// StatusPartiallyReceived means some but not all ordered quantity arrived.
	StatusPartiallyReceived Status = "partially_received"
	// StatusCompleted is terminal: cumulative fulfillment covered the order.
	StatusCompleted Status = "completed"
	// StatusCancelled is terminal and reachable from any non-terminal state.
	StatusCancelled Status = "cancelled"
)

// InvalidStatusTransitionError reports a manual transition the state table
// forbids, with enough context for a user-facing diagnostic.
type InvalidStatusTransitionError struct {
	Entity  string
	Current Status
	Target  Status
}

func (e *InvalidStatusTransitionError) Error() string {
	return fmt.Sprintf("orders: %s cannot move from %s to %s", e.Entity, e.Current, e.Target)
}

// Flow is one instance of the order status machine. Manual transitions go
// through Transition; fulfillment-driven recompute goes through
// ResolveFulfillment and never regresses a terminal state.
type Flow struct {
	entity      string
	released    Status
	partial     Status
	transitions map[Status][]Status
}

// Sales drives sales orders: draft → approved → partially_fulfilled → completed.
var Sales = Flow{
	entity:   "sales_order",
	released: StatusApproved,
	partial:  StatusPartiallyFulfilled,
	transitions: map[Status][]Status{
		StatusDraft:              {StatusApproved, StatusCancelled},
		StatusApproved:           {StatusCancelled},
		StatusPartiallyFulfilled: {StatusCancelled},
		StatusCompleted:          {},
		StatusCancelled:          {},
	},
}

// Purchase drives purchase orders: draft → sent → partially_received → completed.
var Purchase = Flow{
	entity:   "purchase_order",
	released: StatusSent,
	partial:  StatusPartiallyReceived,
	transitions: map[Status][]Status{
		StatusDraft:             {StatusSent, StatusCancelled},
		StatusSent:              {StatusCancelled},
		StatusPartiallyReceived: {StatusCancelled},
		StatusCompleted:         {},
		StatusCancelled:         {},
	},
}

// Entity names the order kind for diagnostics.
func (f Flow) Entity() string {
	return f.entity
}

// Released is the state a draft order enters when explicitly released
// (approved for sales, sent for purchase).
func (f Flow) Released() Status {
	return f.released
}

// Partial is the fulfillment state between zero and complete.
func (f Flow) Partial() Status {
	return f.partial
}

// IsTerminal reports whether no automatic transition leaves the state.
func (f Flow) IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Accepting reports whether the order can take new fulfillment operations.
func (f Flow) Accepting(s Status) bool {
	return s == f.released || s == f.partial
}

// Transition validates an explicit admin transition against the state table.
func (f Flow) Transition(current, target Status) error {
	for _, allowed := range f.transitions[current] {
		if allowed == target {
			return nil
		}
	}
	return &InvalidStatusTransitionError{Entity: f.entity, Current: current, Target: target}
}

// ResolveFulfillment applies the fulfillment-driven rule:
//
//	fulfilled == 0        → status unchanged
//	0 < fulfilled < total → partial
//	fulfilled >= total    → completed (>= so over-receipt still resolves)
//
// Terminal states are never changed by recompute.
func (f Flow) ResolveFulfillment(current Status, totalOrdered, totalFulfilled int64) Status {
	if f.IsTerminal(current) {
		return current
	}
	if totalFulfilled <= 0 {
		return current
	}
	if totalFulfilled < totalOrdered {
		return f.partial
	}
	return StatusCompleted
}
