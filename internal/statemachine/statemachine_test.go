package statemachine_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/blocktank/channel-backend/internal/model"
	"github.com/blocktank/channel-backend/internal/statemachine"
	"github.com/blocktank/channel-backend/internal/store"
	"github.com/blocktank/channel-backend/internal/store/order"
	"github.com/blocktank/channel-backend/internal/types/environments"
	"github.com/blocktank/channel-backend/internal/utils/logger"
)

func TestStateMachine(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "StateMachine Suite")
}

// fakeOrderStore is an in-memory order store. beforeUpdate, when set, runs
// just before the conditional update so specs can interleave a competing
// writer.
type fakeOrderStore struct {
	orders       map[string]*model.Order
	beforeUpdate func()
}

var _ order.IStore = (*fakeOrderStore)(nil)

func newFakeOrderStore(orders ...*model.Order) *fakeOrderStore {
	s := &fakeOrderStore{orders: map[string]*model.Order{}}
	for _, o := range orders {
		copied := *o
		s.orders[o.ID] = &copied
	}
	return s
}

func (s *fakeOrderStore) Create(_ *gorm.DB, o *model.Order) (*model.Order, error) {
	copied := *o
	s.orders[o.ID] = &copied
	return o, nil
}

func (s *fakeOrderStore) GetByID(_ *gorm.DB, id string) (*model.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *o
	return &copied, nil
}

func (s *fakeOrderStore) GetByInvoiceID(_ *gorm.DB, _ string) (*model.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeOrderStore) GetByRenewalInvoiceID(_ *gorm.DB, _ string) (*model.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeOrderStore) List(_ *gorm.DB, _ order.ListFilter) ([]model.Order, error) {
	return nil, nil
}

func (s *fakeOrderStore) ListPendingPayment(_ *gorm.DB, _ time.Time, _ time.Duration) ([]model.Order, error) {
	return nil, nil
}

func (s *fakeOrderStore) ListOpenable(_ *gorm.DB, _ time.Time, _ time.Duration, _ int) ([]model.Order, error) {
	return nil, nil
}

func (s *fakeOrderStore) ListWatchable(_ *gorm.DB, _ int) ([]model.Order, error) {
	return nil, nil
}

func (s *fakeOrderStore) ListExpiredOpen(_ *gorm.DB, _ time.Time) ([]model.Order, error) {
	return nil, nil
}

func (s *fakeOrderStore) UpdateFields(_ *gorm.DB, id string, fields map[string]interface{}) error {
	o, ok := s.orders[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	applyOrderFields(o, fields)
	return nil
}

func (s *fakeOrderStore) UpdateFieldsFromState(_ *gorm.DB, id string, fromState model.OrderState, fields map[string]interface{}) (bool, error) {
	if s.beforeUpdate != nil {
		s.beforeUpdate()
	}
	o, ok := s.orders[id]
	if !ok || o.State != fromState {
		return false, nil
	}
	applyOrderFields(o, fields)
	return true, nil
}

func (s *fakeOrderStore) MarkExpired(_ *gorm.DB, _ time.Time) (int64, error) {
	return 0, nil
}

func applyOrderFields(o *model.Order, fields map[string]interface{}) {
	for key, value := range fields {
		switch key {
		case "state":
			o.State = value.(model.OrderState)
		case "amount_received":
			o.AmountReceived = value.(int64)
		case "refund_tx":
			o.RefundTx = value.(string)
		}
	}
}

type publishedEvent struct {
	orderID    string
	from, to   model.OrderState
	transition string
}

type recordingPublisher struct {
	events []publishedEvent
}

func (p *recordingPublisher) PublishStateChange(orderID string, from, to model.OrderState, transition string) {
	p.events = append(p.events, publishedEvent{orderID, from, to, transition})
}

var _ = Describe("StateMachine", func() {
	var (
		orders    *fakeOrderStore
		publisher *recordingPublisher
		sm        *statemachine.StateMachine
	)

	newMachine := func(initial model.OrderState) {
		orders = newFakeOrderStore(&model.Order{ID: "order-1", State: initial, TotalAmount: 100_000})
		publisher = &recordingPublisher{}
		l := logger.New(environments.Test)
		sm = statemachine.New(nil, &store.Store{Order: orders}, l, publisher)
	}

	Describe("Apply", func() {
		It("applies a legal transition and merges fields", func() {
			newMachine(model.OrderStateCreated)

			updated, err := sm.Apply("order-1", statemachine.TransitionPay, map[string]interface{}{
				"amount_received": int64(100_000),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.State).To(Equal(model.OrderStatePaid))
			Expect(updated.AmountReceived).To(Equal(int64(100_000)))

			Expect(publisher.events).To(HaveLen(1))
			Expect(publisher.events[0].from).To(Equal(model.OrderStateCreated))
			Expect(publisher.events[0].to).To(Equal(model.OrderStatePaid))
			Expect(publisher.events[0].transition).To(Equal("pay"))
		})

		It("treats re-applying a reached transition as a no-op", func() {
			newMachine(model.OrderStatePaid)

			updated, err := sm.Apply("order-1", statemachine.TransitionPay, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.State).To(Equal(model.OrderStatePaid))
			Expect(publisher.events).To(BeEmpty())
		})

		It("rejects an illegal transition", func() {
			newMachine(model.OrderStateCreated)

			_, err := sm.Apply("order-1", statemachine.TransitionStartOpen, nil)
			Expect(err).To(HaveOccurred())

			var illegal *statemachine.IllegalTransitionError
			Expect(err).To(BeAssignableToTypeOf(illegal))
			Expect(orders.orders["order-1"].State).To(Equal(model.OrderStateCreated))
		})

		It("rejects an unknown transition", func() {
			newMachine(model.OrderStateCreated)

			_, err := sm.Apply("order-1", statemachine.Transition("teleport"), nil)
			Expect(err).To(HaveOccurred())
		})

		It("returns the winner's order after losing a race to the same transition", func() {
			newMachine(model.OrderStateCreated)
			orders.beforeUpdate = func() {
				// A competing writer lands the same transition first.
				orders.beforeUpdate = nil
				orders.orders["order-1"].State = model.OrderStatePaid
			}

			updated, err := sm.Apply("order-1", statemachine.TransitionPay, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.State).To(Equal(model.OrderStatePaid))
			Expect(publisher.events).To(BeEmpty())
		})

		It("fails after losing a race to a different transition", func() {
			newMachine(model.OrderStateCreated)
			orders.beforeUpdate = func() {
				orders.beforeUpdate = nil
				orders.orders["order-1"].State = model.OrderStateRejected
			}

			_, err := sm.Apply("order-1", statemachine.TransitionPay, nil)
			Expect(err).To(HaveOccurred())

			var illegal *statemachine.IllegalTransitionError
			Expect(err).To(BeAssignableToTypeOf(illegal))
		})

		It("returns the store error for a missing order", func() {
			newMachine(model.OrderStateCreated)

			_, err := sm.Apply("no-such-order", statemachine.TransitionPay, nil)
			Expect(err).To(MatchError(gorm.ErrRecordNotFound))
		})
	})

	Describe("transition table", func() {
		It("maps each transition to its target state", func() {
			targets := map[statemachine.Transition]model.OrderState{
				statemachine.TransitionPay:           model.OrderStatePaid,
				statemachine.TransitionReject:        model.OrderStateRejected,
				statemachine.TransitionExpire:        model.OrderStateExpired,
				statemachine.TransitionClaim:         model.OrderStateURISet,
				statemachine.TransitionRefund:        model.OrderStateRefunded,
				statemachine.TransitionStartOpen:     model.OrderStateOpening,
				statemachine.TransitionGiveUp:        model.OrderStateGiveUp,
				statemachine.TransitionChannelOpen:   model.OrderStateOpen,
				statemachine.TransitionStartClose:    model.OrderStateClosing,
				statemachine.TransitionChannelClosed: model.OrderStateClosed,
			}
			for transition, want := range targets {
				got, ok := statemachine.Target(transition)
				Expect(ok).To(BeTrue(), string(transition))
				Expect(got).To(Equal(want), string(transition))
			}
		})

		It("allows give_up from URI_SET and OPENING only", func() {
			Expect(statemachine.CanApply(model.OrderStateURISet, statemachine.TransitionGiveUp)).To(BeTrue())
			Expect(statemachine.CanApply(model.OrderStateOpening, statemachine.TransitionGiveUp)).To(BeTrue())
			Expect(statemachine.CanApply(model.OrderStateOpen, statemachine.TransitionGiveUp)).To(BeFalse())
			Expect(statemachine.CanApply(model.OrderStateCreated, statemachine.TransitionGiveUp)).To(BeFalse())
		})

		It("allows channel_closed from OPENING, OPEN and CLOSING", func() {
			for _, from := range []model.OrderState{
				model.OrderStateOpening, model.OrderStateOpen, model.OrderStateClosing,
			} {
				Expect(statemachine.CanApply(from, statemachine.TransitionChannelClosed)).To(BeTrue(), from.String())
			}
			Expect(statemachine.CanApply(model.OrderStateCreated, statemachine.TransitionChannelClosed)).To(BeFalse())
		})

		It("permits nothing out of a terminal state", func() {
			terminals := []model.OrderState{
				model.OrderStateGiveUp,
				model.OrderStateExpired,
				model.OrderStateRejected,
				model.OrderStateRefunded,
				model.OrderStateClosed,
			}
			all := []statemachine.Transition{
				statemachine.TransitionPay,
				statemachine.TransitionReject,
				statemachine.TransitionExpire,
				statemachine.TransitionClaim,
				statemachine.TransitionRefund,
				statemachine.TransitionStartOpen,
				statemachine.TransitionGiveUp,
				statemachine.TransitionChannelOpen,
				statemachine.TransitionStartClose,
				statemachine.TransitionChannelClosed,
			}
			for _, from := range terminals {
				Expect(from.IsTerminal()).To(BeTrue(), from.String())
				for _, transition := range all {
					Expect(statemachine.CanApply(from, transition)).To(BeFalse(), from.String()+"/"+string(transition))
				}
			}
		})
	})
})
