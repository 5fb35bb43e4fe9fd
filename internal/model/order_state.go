package model

// OrderState is the lifecycle position of a channel order. The numeric codes
// are part of the public API and stored as-is, so they must never be renumbered.
type OrderState int

const (
	OrderStateCreated  OrderState = 0
	OrderStatePaid     OrderState = 100
	OrderStateRefunded OrderState = 150
	OrderStateURISet   OrderState = 200
	OrderStateOpening  OrderState = 300
	OrderStateClosing  OrderState = 350
	OrderStateGiveUp   OrderState = 400
	OrderStateExpired  OrderState = 410
	OrderStateRejected OrderState = 450
	OrderStateClosed   OrderState = 460
	OrderStateOpen     OrderState = 500
)

func (s OrderState) String() string {
	switch s {
	case OrderStateCreated:
		return "CREATED"
	case OrderStatePaid:
		return "PAID"
	case OrderStateRefunded:
		return "REFUNDED"
	case OrderStateURISet:
		return "URI_SET"
	case OrderStateOpening:
		return "OPENING"
	case OrderStateClosing:
		return "CLOSING"
	case OrderStateGiveUp:
		return "GIVE_UP"
	case OrderStateExpired:
		return "EXPIRED"
	case OrderStateRejected:
		return "REJECTED"
	case OrderStateClosed:
		return "CLOSED"
	case OrderStateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether an order in this state can never change state again.
func (s OrderState) IsTerminal() bool {
	switch s {
	case OrderStateGiveUp, OrderStateExpired, OrderStateRejected, OrderStateRefunded, OrderStateClosed:
		return true
	}
	return false
}
