package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"upline/internal/platform/kafka/consumer"
	id "upline/pkg/domain"
	dErrors "upline/pkg/domain-errors"
)

// UserRegisteredEvent is the payload published by the account system
// when a user signs up, optionally carrying the referrer.
type UserRegisteredEvent struct {
	UserID       string    `json:"userId"`
	ReferrerID   *string   `json:"referrerId,omitempty"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Registrar is the slice of the referral service this handler needs.
type Registrar interface {
	InsertNode(ctx context.Context, node id.UserID, parent *id.UserID) error
}

// UserRegisteredHandler inserts a closure node per registration event.
type UserRegisteredHandler struct {
	registrar Registrar
	logger    *slog.Logger
}

func NewUserRegisteredHandler(registrar Registrar, logger *slog.Logger) *UserRegisteredHandler {
	return &UserRegisteredHandler{registrar: registrar, logger: logger}
}

func (h *UserRegisteredHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	var event UserRegisteredEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// Malformed payloads never become deliverable; drop them.
		h.logger.WarnContext(ctx, "dropping malformed registration event",
			"key", string(msg.Key), "error", err)
		return nil
	}

	node, err := id.ParseUserID(event.UserID)
	if err != nil {
		h.logger.WarnContext(ctx, "dropping registration event with bad user id",
			"user_id", event.UserID, "error", err)
		return nil
	}
	var parent *id.UserID
	if event.ReferrerID != nil {
		parsed, err := id.ParseUserID(*event.ReferrerID)
		if err != nil {
			h.logger.WarnContext(ctx, "dropping registration event with bad referrer id",
				"referrer_id", *event.ReferrerID, "error", err)
			return nil
		}
		parent = &parsed
	}

	err = h.registrar.InsertNode(ctx, node, parent)
	switch {
	case err == nil:
		return nil
	case dErrors.HasCode(err, dErrors.CodeConflict):
		// Maintenance window; redelivery will land after the rebuild.
		return err
	case dErrors.HasCode(err, dErrors.CodeInvariantViolation):
		// Parent missing or parent mismatch: the parent event may still
		// be in flight, so let the group retry.
		return err
	case dErrors.HasCode(err, dErrors.CodeValidation), dErrors.HasCode(err, dErrors.CodeBadRequest):
		h.logger.WarnContext(ctx, "dropping invalid registration event",
			"user_id", event.UserID, "error", err)
		return nil
	default:
		return err
	}
}
