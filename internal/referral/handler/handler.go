// Package handler exposes the referral graph over the admin HTTP
// surface. Thin by contract: decode, delegate, encode.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"upline/internal/referral/models"
	"upline/internal/transport/http/shared"
	id "upline/pkg/domain"
	dErrors "upline/pkg/domain-errors"
)

// Service is the slice of the referral service the handler needs.
type Service interface {
	InsertNode(ctx context.Context, node id.UserID, parent *id.UserID) error
	Ancestors(ctx context.Context, node id.UserID, minDepth, maxDepth int) ([]models.ClosureEdge, error)
	Descendants(ctx context.Context, node id.UserID, minDepth, maxDepth int) ([]models.ClosureEdge, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/referrals", h.handleRegister)
	r.Get("/referrals/{userID}/ancestors", h.handleAncestors)
	r.Get("/referrals/{userID}/descendants", h.handleDescendants)
}

type registerRequest struct {
	UserID     string  `json:"userId"`
	ReferrerID *string `json:"referrerId,omitempty"`
}

type edgeResponse struct {
	UserID string `json:"userId"`
	Depth  int    `json:"depth"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	node, err := id.ParseUserID(req.UserID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var parent *id.UserID
	if req.ReferrerID != nil {
		parsed, err := id.ParseUserID(*req.ReferrerID)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		parent = &parsed
	}

	if err := h.service.InsertNode(ctx, node, parent); err != nil {
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "register referral node",
				"node", node.String(), "error", err)
		}
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAncestors(w http.ResponseWriter, r *http.Request) {
	h.handleTraversal(w, r, h.service.Ancestors, func(edge models.ClosureEdge) edgeResponse {
		return edgeResponse{UserID: edge.Ancestor.String(), Depth: edge.Depth}
	})
}

func (h *Handler) handleDescendants(w http.ResponseWriter, r *http.Request) {
	h.handleTraversal(w, r, h.service.Descendants, func(edge models.ClosureEdge) edgeResponse {
		return edgeResponse{UserID: edge.Descendant.String(), Depth: edge.Depth}
	})
}

type traversal func(ctx context.Context, node id.UserID, minDepth, maxDepth int) ([]models.ClosureEdge, error)

func (h *Handler) handleTraversal(w http.ResponseWriter, r *http.Request, walk traversal, project func(models.ClosureEdge) edgeResponse) {
	ctx := r.Context()

	node, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	minDepth, err := queryInt(r, "minDepth", 1)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	maxDepth, err := queryInt(r, "maxDepth", 0)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	edges, err := walk(ctx, node, minDepth, maxDepth)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "traverse referral graph",
				"node", node.String(), "error", err)
		}
		shared.WriteError(w, err)
		return
	}

	out := make([]edgeResponse, 0, len(edges))
	for _, edge := range edges {
		out = append(out, project(edge))
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.Newf(dErrors.CodeBadRequest, "%s must be an integer", name)
	}
	return value, nil
}
