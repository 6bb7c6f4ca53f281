package enums

// orderProgression is the forward fulfillment chain. Cancelled sits outside it.
var orderProgression = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusConfirmed:  1,
	OrderStatusProcessing: 2,
	OrderStatusShipped:    3,
	OrderStatusDelivered:  4,
}

// IsTerminal reports whether no further transition is allowed out of the status.
func (o OrderStatus) IsTerminal() bool {
	return o == OrderStatusCancelled || o == OrderStatusDelivered
}

// IsCancellable reports whether the order may still be cancelled.
func (o OrderStatus) IsCancellable() bool {
	return o == OrderStatusPending || o == OrderStatusConfirmed
}

// CanTransitionTo reports whether moving from o to next is a legal change. Re-entering
// the same status is not a change and returns false.
func (o OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if o == next || o.IsTerminal() {
		return false
	}
	if next == OrderStatusCancelled {
		return o.IsCancellable()
	}
	from, ok := orderProgression[o]
	if !ok {
		return false
	}
	to, ok := orderProgression[next]
	if !ok {
		return false
	}
	return to > from
}

// IsReversal reports whether a payment moves from paid into failed or refunded.
func (p PaymentStatus) IsReversal(next PaymentStatus) bool {
	return p == PaymentStatusPaid && (next == PaymentStatusFailed || next == PaymentStatusRefunded)
}

// CanTransitionTo reports whether the pair is one of the recognised payment transitions.
func (p PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if p == PaymentStatusPending && next == PaymentStatusPaid {
		return true
	}
	return p.IsReversal(next)
}
