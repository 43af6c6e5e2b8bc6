package admin

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/barangaylink/barangaylink/internal/audit"
	"github.com/barangaylink/barangaylink/internal/identity"
	"github.com/barangaylink/barangaylink/internal/observability"
	"github.com/barangaylink/barangaylink/internal/platform/httpx"
	"github.com/barangaylink/barangaylink/internal/roles"
)

// Handler wires the admin proxy HTTP endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	auth      *Authenticator
	metrics   *observability.Metrics
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, auth *Authenticator, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		auth:      auth,
		metrics:   metrics,
		validator: validator.New(),
	}
}

// MountRoutes registers the admin routes. Everything requires a valid bearer
// token; all but activate additionally require the superadmin role, checked
// freshly per request.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireAuth)
		r.Patch("/users/{userID}/activate", h.activate)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireAuth, h.auth.RequireSuperadmin)
		r.Get("/users", h.listUsers)
		r.Get("/audit", h.auditTimeline)
		r.Post("/invite", h.invite)
		r.Patch("/users/{userID}/role", h.changeRole)
		r.Patch("/users/{userID}/deactivate", h.deactivate)
		r.Patch("/users/{userID}/reactivate", h.reactivate)
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, records)
}

type inviteRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *Handler) invite(w http.ResponseWriter, r *http.Request) {
	caller := identity.IdentityFromContext(r.Context())
	var req inviteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "email is required")
		return
	}
	err := h.service.Invite(r.Context(), caller.ID, req.Email)
	h.metrics.RecordMutation("invite", err)
	if err != nil {
		h.logger.Error("invite", slog.String("email", req.Email), slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpx.OK(w)
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	caller := identity.IdentityFromContext(r.Context())
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}
	var req changeRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "malformed request body")
		return
	}
	role := roles.Role(req.Role)
	if !role.Valid() {
		httpx.Error(w, http.StatusBadRequest, "invalid role")
		return
	}
	err := h.service.ChangeRole(r.Context(), caller.ID, userID, role)
	h.metrics.RecordMutation("change_role", err)
	if err != nil {
		h.logger.Error("change role", slog.String("user_id", userID.String()), slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpx.OK(w)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	caller := identity.IdentityFromContext(r.Context())
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}
	err := h.service.Deactivate(r.Context(), caller.ID, userID)
	h.metrics.RecordMutation("deactivate", err)
	if err != nil {
		h.logger.Error("deactivate", slog.String("user_id", userID.String()), slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpx.OK(w)
}

func (h *Handler) reactivate(w http.ResponseWriter, r *http.Request) {
	caller := identity.IdentityFromContext(r.Context())
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}
	err := h.service.Reactivate(r.Context(), caller.ID, userID)
	h.metrics.RecordMutation("reactivate", err)
	if err != nil {
		h.logger.Error("reactivate", slog.String("user_id", userID.String()), slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpx.OK(w)
}

// Name fields are optional here; the accept-invitation form validates them
// before submitting.
type activateRequest struct {
	FirstName  string  `json:"first_name"`
	MiddleName *string `json:"middle_name"`
	LastName   string  `json:"last_name"`
}

// activate is the self-service endpoint of the accept-invitation flow: the
// token's subject must equal the path user id; anything else is treated as
// an authentication failure, not a permission one.
func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	caller := identity.IdentityFromContext(r.Context())
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}
	if caller.ID != userID {
		httpx.Error(w, http.StatusUnauthorized, "token subject mismatch")
		return
	}
	var req activateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "malformed request body")
		return
	}
	err := h.service.Activate(r.Context(), userID, caller.Email, req.FirstName, req.MiddleName, req.LastName)
	h.metrics.RecordMutation("activate", err)
	if err != nil {
		h.logger.Error("activate", slog.String("user_id", userID.String()), slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpx.OK(w)
}

func (h *Handler) auditTimeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := audit.TimelineFilters{
		Entity: q.Get("entity"),
		Action: q.Get("action"),
	}
	if raw := q.Get("actor_id"); raw != "" {
		actorID, err := uuid.Parse(raw)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "invalid actor id")
			return
		}
		filters.ActorID = &actorID
	}
	if raw := q.Get("page"); raw != "" {
		filters.Page, _ = strconv.Atoi(raw)
	}
	if raw := q.Get("page_size"); raw != "" {
		filters.PageSize, _ = strconv.Atoi(raw)
	}
	timeline, err := h.service.AuditTimeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, timeline)
}

func (h *Handler) pathUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "userID")
	id, err := uuid.Parse(raw)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid user id")
		return uuid.Nil, false
	}
	return id, true
}
