package statemachine

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/blocktank/channel-backend/internal/events"
	"github.com/blocktank/channel-backend/internal/model"
	"github.com/blocktank/channel-backend/internal/store"
	"github.com/blocktank/channel-backend/internal/utils/logger"
)

// Transition names one legal move through the order lifecycle.
type Transition string

const (
	TransitionPay           Transition = "pay"            // CREATED -> PAID
	TransitionReject        Transition = "reject"         // CREATED -> REJECTED
	TransitionExpire        Transition = "expire"         // CREATED -> EXPIRED
	TransitionClaim         Transition = "claim"          // PAID -> URI_SET
	TransitionRefund        Transition = "refund"         // PAID -> REFUNDED
	TransitionStartOpen     Transition = "start_open"     // URI_SET -> OPENING
	TransitionGiveUp        Transition = "give_up"        // URI_SET, OPENING -> GIVE_UP
	TransitionChannelOpen   Transition = "channel_open"   // OPENING -> OPEN
	TransitionStartClose    Transition = "start_close"    // OPEN -> CLOSING
	TransitionChannelClosed Transition = "channel_closed" // OPENING, OPEN, CLOSING -> CLOSED
)

type edge struct {
	target  model.OrderState
	sources []model.OrderState
}

// transitions is the full set of legal edges. Anything not listed here is
// rejected, so every money-moving state change funnels through this table.
var transitions = map[Transition]edge{
	TransitionPay:       {model.OrderStatePaid, []model.OrderState{model.OrderStateCreated}},
	TransitionReject:    {model.OrderStateRejected, []model.OrderState{model.OrderStateCreated}},
	TransitionExpire:    {model.OrderStateExpired, []model.OrderState{model.OrderStateCreated}},
	TransitionClaim:     {model.OrderStateURISet, []model.OrderState{model.OrderStatePaid}},
	TransitionRefund:    {model.OrderStateRefunded, []model.OrderState{model.OrderStatePaid}},
	TransitionStartOpen: {model.OrderStateOpening, []model.OrderState{model.OrderStateURISet}},
	TransitionGiveUp: {model.OrderStateGiveUp, []model.OrderState{
		model.OrderStateURISet, model.OrderStateOpening,
	}},
	TransitionChannelOpen: {model.OrderStateOpen, []model.OrderState{model.OrderStateOpening}},
	TransitionStartClose:  {model.OrderStateClosing, []model.OrderState{model.OrderStateOpen}},
	TransitionChannelClosed: {model.OrderStateClosed, []model.OrderState{
		model.OrderStateOpening, model.OrderStateOpen, model.OrderStateClosing,
	}},
}

// IllegalTransitionError reports a transition attempted from a state that is
// not one of its legal sources.
type IllegalTransitionError struct {
	OrderID    string
	From       model.OrderState
	Transition Transition
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition %q for order %s: current state %s", e.Transition, e.OrderID, e.From)
}

// StateMachine validates and applies order state transitions, persisting each
// one as a single conditional document update.
type StateMachine struct {
	db        *gorm.DB
	store     *store.Store
	logger    *logger.Logger
	publisher events.IPublisher
}

func New(db *gorm.DB, store *store.Store, logger *logger.Logger, publisher events.IPublisher) *StateMachine {
	return &StateMachine{
		db:        db,
		store:     store,
		logger:    logger,
		publisher: publisher,
	}
}

// Target returns the state a transition produces.
func Target(t Transition) (model.OrderState, bool) {
	e, ok := transitions[t]
	return e.target, ok
}

// CanApply reports whether the transition is legal from the given state.
func CanApply(from model.OrderState, t Transition) bool {
	e, ok := transitions[t]
	if !ok {
		return false
	}
	for _, s := range e.sources {
		if s == from {
			return true
		}
	}
	return false
}

// Apply moves the order through the transition, merging fields into the same
// update. Re-applying a transition whose target state is already persisted is
// a no-op. A transition from any other state fails with IllegalTransitionError.
func (m *StateMachine) Apply(orderID string, t Transition, fields map[string]interface{}) (*model.Order, error) {
	e, ok := transitions[t]
	if !ok {
		return nil, fmt.Errorf("unknown transition %q", t)
	}

	order, err := m.store.Order.GetByID(m.db, orderID)
	if err != nil {
		return nil, err
	}

	if order.State == e.target {
		// Already applied, at-least-once delivery makes this normal.
		return order, nil
	}

	if !CanApply(order.State, t) {
		return nil, &IllegalTransitionError{OrderID: orderID, From: order.State, Transition: t}
	}

	update := map[string]interface{}{}
	for k, v := range fields {
		update[k] = v
	}
	update["state"] = e.target

	fromState := order.State
	changed, err := m.store.Order.UpdateFieldsFromState(m.db, orderID, fromState, update)
	if err != nil {
		return nil, err
	}

	if !changed {
		// Lost a race. Reload: if the winner applied the same transition the
		// re-apply is a no-op, otherwise the transition is now illegal.
		current, err := m.store.Order.GetByID(m.db, orderID)
		if err != nil {
			return nil, err
		}
		if current.State == e.target {
			return current, nil
		}
		return nil, &IllegalTransitionError{OrderID: orderID, From: current.State, Transition: t}
	}

	m.logger.Info(fmt.Sprintf("[StateMachine] order %s: %s -> %s", orderID, fromState, e.target))
	m.publisher.PublishStateChange(orderID, fromState, e.target, string(t))

	return m.store.Order.GetByID(m.db, orderID)
}
