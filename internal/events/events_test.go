package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"upline/internal/commission/models"
	"upline/internal/platform/kafka/consumer"
	id "upline/pkg/domain"
	dErrors "upline/pkg/domain-errors"
)

type registrarSpy struct {
	calls []struct {
		node   id.UserID
		parent *id.UserID
	}
	err error
}

func (r *registrarSpy) InsertNode(_ context.Context, node id.UserID, parent *id.UserID) error {
	r.calls = append(r.calls, struct {
		node   id.UserID
		parent *id.UserID
	}{node, parent})
	return r.err
}

type calculatorSpy struct {
	calls  []id.OrderID
	result *models.CalculationResult
	err    error
}

func (c *calculatorSpy) CalculateForOrder(_ context.Context, orderID id.OrderID) (*models.CalculationResult, error) {
	c.calls = append(c.calls, orderID)
	return c.result, c.err
}

type EventsSuite struct {
	suite.Suite
	logger *slog.Logger
}

func TestEventsSuite(t *testing.T) {
	suite.Run(t, new(EventsSuite))
}

func (s *EventsSuite) SetupTest() {
	s.logger = slog.Default()
}

func (s *EventsSuite) message(topic string, payload any) *consumer.Message {
	value, err := json.Marshal(payload)
	s.Require().NoError(err)
	return &consumer.Message{Topic: topic, Value: value}
}

func (s *EventsSuite) TestUserRegisteredHandler() {
	ctx := context.Background()

	s.Run("valid event registers the node under its referrer", func() {
		spy := &registrarSpy{}
		h := NewUserRegisteredHandler(spy, s.logger)

		referrer := uuid.NewString()
		err := h.Handle(ctx, s.message("user.registered", UserRegisteredEvent{
			UserID:     uuid.NewString(),
			ReferrerID: &referrer,
		}))
		s.NoError(err)
		s.Require().Len(spy.calls, 1)
		s.Require().NotNil(spy.calls[0].parent)
		s.Equal(referrer, spy.calls[0].parent.String())
	})

	s.Run("malformed payload is dropped without retry", func() {
		spy := &registrarSpy{}
		h := NewUserRegisteredHandler(spy, s.logger)

		err := h.Handle(ctx, &consumer.Message{Topic: "user.registered", Value: []byte("{broken")})
		s.NoError(err)
		s.Empty(spy.calls)
	})

	s.Run("maintenance conflict is surfaced for redelivery", func() {
		spy := &registrarSpy{err: dErrors.New(dErrors.CodeConflict, "rebuild in progress")}
		h := NewUserRegisteredHandler(spy, s.logger)

		err := h.Handle(ctx, s.message("user.registered", UserRegisteredEvent{UserID: uuid.NewString()}))
		s.Error(err)
	})

	s.Run("validation failure is dropped", func() {
		spy := &registrarSpy{err: dErrors.New(dErrors.CodeValidation, "node cannot refer itself")}
		h := NewUserRegisteredHandler(spy, s.logger)

		err := h.Handle(ctx, s.message("user.registered", UserRegisteredEvent{UserID: uuid.NewString()}))
		s.NoError(err)
	})
}

func (s *EventsSuite) TestOrderCompletedHandler() {
	ctx := context.Background()

	s.Run("valid event triggers a calculation", func() {
		spy := &calculatorSpy{result: &models.CalculationResult{Success: true}}
		h := NewOrderCompletedHandler(spy, s.logger)

		orderID := uuid.NewString()
		err := h.Handle(ctx, s.message("order.completed", OrderCompletedEvent{OrderID: orderID}))
		s.NoError(err)
		s.Require().Len(spy.calls, 1)
		s.Equal(orderID, spy.calls[0].String())
	})

	s.Run("lock conflict commits, the holder covers the event", func() {
		spy := &calculatorSpy{err: dErrors.New(dErrors.CodeConflict, "in progress")}
		h := NewOrderCompletedHandler(spy, s.logger)

		err := h.Handle(ctx, s.message("order.completed", OrderCompletedEvent{OrderID: uuid.NewString()}))
		s.NoError(err)
	})

	s.Run("missing order is retried", func() {
		spy := &calculatorSpy{err: dErrors.New(dErrors.CodeNotFound, "order not found")}
		h := NewOrderCompletedHandler(spy, s.logger)

		err := h.Handle(ctx, s.message("order.completed", OrderCompletedEvent{OrderID: uuid.NewString()}))
		s.Error(err)
	})

	s.Run("non-completed order is dropped", func() {
		spy := &calculatorSpy{err: dErrors.New(dErrors.CodeInvalidState, "order is pending")}
		h := NewOrderCompletedHandler(spy, s.logger)

		err := h.Handle(ctx, s.message("order.completed", OrderCompletedEvent{OrderID: uuid.NewString()}))
		s.NoError(err)
	})
}

func (s *EventsSuite) TestRouter() {
	ctx := context.Background()

	s.Run("routes by topic", func() {
		spy := &calculatorSpy{result: &models.CalculationResult{Success: true}}
		router := NewRouter(s.logger)
		router.Register("order.completed", NewOrderCompletedHandler(spy, s.logger))

		err := router.Handle(ctx, s.message("order.completed", OrderCompletedEvent{OrderID: uuid.NewString()}))
		s.NoError(err)
		s.Len(spy.calls, 1)
	})

	s.Run("unknown topic is dropped", func() {
		router := NewRouter(s.logger)
		err := router.Handle(ctx, &consumer.Message{Topic: "unknown.topic"})
		s.NoError(err)
	})
}
