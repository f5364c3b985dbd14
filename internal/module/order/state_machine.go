package order

import "fmt"

// StateMachine validates order status transitions.
//
// The refund sub-workflow (refund_requested, return_approved, refunded)
// is only reachable through the dedicated approve/deny/refund
// operations; ManualChangeAllowed gates the free-form operator path.
type StateMachine struct {
	transitions map[OrderStatus][]OrderStatus
}

// NewStateMachine creates the order state machine.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		transitions: map[OrderStatus][]OrderStatus{
			OrderStatusPending:         {OrderStatusPaid, OrderStatusFailed, OrderStatusRefundRequested},
			OrderStatusPaid:            {OrderStatusShipped, OrderStatusFailed, OrderStatusRefundRequested},
			OrderStatusShipped:         {OrderStatusRefundRequested},
			OrderStatusRefundRequested: {OrderStatusReturnApproved, OrderStatusPaid},
			OrderStatusReturnApproved:  {OrderStatusRefunded, OrderStatusRefundRequested},
			OrderStatusRefunded:        {}, // Terminal state
			OrderStatusFailed:          {}, // Terminal state
		},
	}
}

// CanTransition checks if a transition from `from` to `to` is valid.
func (sm *StateMachine) CanTransition(from, to OrderStatus) bool {
	allowed, ok := sm.transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Check returns ErrInvalidTransition with current-state context when the
// transition is not an edge of the machine.
func (sm *StateMachine) Check(from, to OrderStatus) error {
	if !sm.CanTransition(from, to) {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// ManualChangeAllowed reports whether the free-form status change path
// may run against an order currently in `from`. Orders inside the
// refund workflow keep their bookkeeping only if every move goes
// through approve/deny/refund.
func (sm *StateMachine) ManualChangeAllowed(from OrderStatus) bool {
	switch from {
	case OrderStatusRefundRequested, OrderStatusReturnApproved, OrderStatusRefunded:
		return false
	}
	return true
}

// AllowedTransitions returns all transitions legal from the given state.
func (sm *StateMachine) AllowedTransitions(from OrderStatus) []OrderStatus {
	allowed, ok := sm.transitions[from]
	if !ok {
		return nil
	}
	result := make([]OrderStatus, len(allowed))
	copy(result, allowed)
	return result
}
