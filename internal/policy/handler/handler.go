package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"complyd/internal/platform/middleware"
	"complyd/internal/policy"
	dErrors "complyd/pkg/domain-errors"
	"complyd/pkg/platform/httputil"
)

// Service defines the interface for policy operations.
type Service interface {
	Create(ctx context.Context, orgID, actorID, name string) (policy.Policy, error)
	Update(ctx context.Context, orgID, actorID, id, name string) (policy.Policy, error)
	MarkReviewed(ctx context.Context, orgID, id string) (policy.Policy, error)
	List(ctx context.Context, orgID string) ([]policy.Policy, error)
	ReviewQueue(ctx context.Context, orgID string) ([]policy.Policy, error)
}

// Handler handles policy endpoints.
type Handler struct {
	logger       *slog.Logger
	policies     Service
	jwtValidator middleware.JWTValidator
}

// New creates a new policy Handler.
func New(policies Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		policies:     policies,
		jwtValidator: jwtValidator,
	}
}

// Register registers the policy routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	policyRouter := chi.NewRouter()
	policyRouter.Use(middleware.Recovery(h.logger))
	policyRouter.Use(middleware.RequestID)
	policyRouter.Use(middleware.Logger(h.logger))
	policyRouter.Use(middleware.Timeout(30 * time.Second))
	policyRouter.Use(middleware.Latency())
	policyRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	policyRouter.Post("/policies", h.handleCreate)
	policyRouter.Get("/policies", h.handleList)
	policyRouter.Get("/policies/reviews", h.handleReviewQueue)
	policyRouter.Put("/policies/{policyID}", h.handleUpdate)
	policyRouter.Post("/policies/{policyID}/review", h.handleMarkReviewed)

	r.Mount("/", policyRouter)
}

type policyRequest struct {
	Name string `json:"name"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := middleware.GetOrgID(ctx)
	actorID := middleware.GetActorID(ctx)

	var req policyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	created, err := h.policies.Create(ctx, orgID, actorID, req.Name)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to create policy")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := middleware.GetOrgID(ctx)
	actorID := middleware.GetActorID(ctx)

	var req policyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	updated, err := h.policies.Update(ctx, orgID, actorID, chi.URLParam(r, "policyID"), req.Name)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to update policy")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleMarkReviewed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	reviewed, err := h.policies.MarkReviewed(ctx, middleware.GetOrgID(ctx), chi.URLParam(r, "policyID"))
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to mark policy reviewed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reviewed)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	policies, err := h.policies.List(ctx, middleware.GetOrgID(ctx))
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to list policies")
		return
	}
	if policies == nil {
		policies = []policy.Policy{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"policies": policies})
}

func (h *Handler) handleReviewQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	policies, err := h.policies.ReviewQueue(ctx, middleware.GetOrgID(ctx))
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to list review queue")
		return
	}
	if policies == nil {
		policies = []policy.Policy{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"policies": policies})
}

// writeServiceError passes caller errors through and masks everything else.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, masked string) {
	if dErrors.Is(err, dErrors.CodeBadRequest) || dErrors.Is(err, dErrors.CodeNotFound) {
		httputil.WriteError(w, err)
		return
	}
	h.logger.ErrorContext(ctx, masked,
		"request_id", middleware.GetRequestID(ctx),
		"error", err.Error(),
	)
	httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, masked))
}
