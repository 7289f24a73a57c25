package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"upline/internal/commission/models"
	"upline/internal/platform/kafka/consumer"
	id "upline/pkg/domain"
	dErrors "upline/pkg/domain-errors"
)

// OrderCompletedEvent is the payload published by the order system when
// an order reaches the completed state.
type OrderCompletedEvent struct {
	OrderID     string    `json:"orderId"`
	CompletedAt time.Time `json:"completedAt"`
}

// Calculator is the slice of the commission engine this handler needs.
type Calculator interface {
	CalculateForOrder(ctx context.Context, orderID id.OrderID) (*models.CalculationResult, error)
}

// OrderCompletedHandler triggers a commission calculation per
// completion event.
type OrderCompletedHandler struct {
	calculator Calculator
	logger     *slog.Logger
}

func NewOrderCompletedHandler(calculator Calculator, logger *slog.Logger) *OrderCompletedHandler {
	return &OrderCompletedHandler{calculator: calculator, logger: logger}
}

func (h *OrderCompletedHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	var event OrderCompletedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.WarnContext(ctx, "dropping malformed order event",
			"key", string(msg.Key), "error", err)
		return nil
	}
	orderID, err := id.ParseOrderID(event.OrderID)
	if err != nil {
		h.logger.WarnContext(ctx, "dropping order event with bad order id",
			"order_id", event.OrderID, "error", err)
		return nil
	}

	result, err := h.calculator.CalculateForOrder(ctx, orderID)
	switch {
	case err == nil:
	case dErrors.HasCode(err, dErrors.CodeConflict):
		// Another worker holds the order lock; its calculation covers
		// this event, committing is safe.
		h.logger.InfoContext(ctx, "order already being calculated",
			"order", orderID.String())
		return nil
	case dErrors.HasCode(err, dErrors.CodeNotFound):
		// The completion event can outrun the order row; let the group
		// redeliver once the order is visible.
		return err
	case dErrors.HasCode(err, dErrors.CodeInvalidState):
		h.logger.WarnContext(ctx, "dropping event for non-completed order",
			"order", orderID.String(), "error", err)
		return nil
	default:
		return err
	}

	if result != nil && !result.Success {
		h.logger.WarnContext(ctx, "calculation emitted no records",
			"order", orderID.String(),
			"errors", result.Errors,
		)
	}
	return nil
}
