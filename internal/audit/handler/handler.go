package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"complyd/internal/audit"
	"complyd/internal/platform/middleware"
	dErrors "complyd/pkg/domain-errors"
	"complyd/pkg/platform/httputil"
)

// maxEvidenceBytes caps a single evidence upload.
const maxEvidenceBytes = 10 << 20

// Service defines the interface for audit trail operations.
type Service interface {
	Record(ctx context.Context, event audit.Event) (audit.Event, error)
	Complete(ctx context.Context, orgID, actorID, auditID string) (audit.Event, error)
	List(ctx context.Context, orgID string, limit int) ([]audit.Event, error)
	AttachEvidence(ctx context.Context, eventID uuid.UUID, filename, contentType string, data []byte) (string, error)
}

// Handler handles audit trail endpoints.
type Handler struct {
	logger       *slog.Logger
	audits       Service
	jwtValidator middleware.JWTValidator
}

// New creates a new audit Handler.
func New(audits Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		audits:       audits,
		jwtValidator: jwtValidator,
	}
}

// Register registers the audit routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	auditRouter := chi.NewRouter()
	auditRouter.Use(middleware.Recovery(h.logger))
	auditRouter.Use(middleware.RequestID)
	auditRouter.Use(middleware.Logger(h.logger))
	auditRouter.Use(middleware.Timeout(30 * time.Second))
	auditRouter.Use(middleware.Latency())
	auditRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	auditRouter.Post("/audit/events", h.handleRecordEvent)
	auditRouter.Get("/audit/events", h.handleListEvents)
	auditRouter.Post("/audit/events/{eventID}/evidence", h.handleAttachEvidence)
	auditRouter.Post("/audit/completions", h.handleCompleteAudit)

	r.Mount("/", auditRouter)
}

type recordEventRequest struct {
	Action       string         `json:"action"`
	ResourceType string         `json:"resourceType"`
	ResourceID   string         `json:"resourceId"`
	Details      map[string]any `json:"details,omitempty"`
}

func (h *Handler) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	orgID, actorID, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req recordEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid record event request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	event, err := h.audits.Record(ctx, audit.Event{
		OrgID:        orgID,
		ActorID:      actorID,
		Action:       req.Action,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Details:      req.Details,
	})
	if err != nil {
		if dErrors.Is(err, dErrors.CodeBadRequest) {
			httputil.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "failed to record audit event",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to record audit event"))
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, event)
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	orgID, _, ok := h.identity(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be an integer"))
			return
		}
		limit = parsed
	}

	events, err := h.audits.List(ctx, orgID, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit events",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to list audit events"))
		return
	}
	if events == nil {
		events = []audit.Event{}
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) handleAttachEvidence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	if _, _, ok := h.identity(w, r); !ok {
		return
	}

	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid event id"))
		return
	}

	filename := r.URL.Query().Get("filename")
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEvidenceBytes))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "evidence body too large or unreadable"))
		return
	}

	key, err := h.audits.AttachEvidence(ctx, eventID, filename, r.Header.Get("Content-Type"), data)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeBadRequest) {
			httputil.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "failed to attach evidence",
			"request_id", requestID,
			"event_id", eventID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to attach evidence"))
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"key": key})
}

type completeAuditRequest struct {
	AuditID string `json:"auditId"`
}

func (h *Handler) handleCompleteAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	orgID, actorID, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req completeAuditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AuditID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "auditId is required"))
		return
	}

	event, err := h.audits.Complete(ctx, orgID, actorID, req.AuditID)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeBadRequest) {
			httputil.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "failed to complete audit",
			"request_id", requestID,
			"audit_id", req.AuditID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to complete audit"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, event)
}

// identity pulls the authenticated actor and org from the request context.
// RequireAuth guarantees both are set; an empty value means the middleware
// chain is miswired.
func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (orgID, actorID string, ok bool) {
	ctx := r.Context()
	orgID = middleware.GetOrgID(ctx)
	actorID = middleware.GetActorID(ctx)
	if orgID == "" || actorID == "" {
		h.logger.ErrorContext(ctx, "identity missing from context despite auth middleware",
			"request_id", middleware.GetRequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return "", "", false
	}
	return orgID, actorID, true
}
