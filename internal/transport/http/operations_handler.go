package http

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "asyncops/internal/errors"
	"asyncops/internal/middleware"
	"asyncops/internal/operations"
	api "asyncops/pkg/contracts/api/v1"
)

var statusFilters = []string{
	string(operations.StatusPending),
	string(operations.StatusRunning),
	string(operations.StatusCompleted),
	string(operations.StatusFailed),
	string(operations.StatusCancelled),
}

// OperationsHandler handles operation-related HTTP requests
type OperationsHandler struct {
	service   OperationService
	validator *middleware.Validator
	errors    *apierrors.ErrorHandler
	logger    *slog.Logger
}

// NewOperationsHandler creates a new operations handler
func NewOperationsHandler(service OperationService, validator *middleware.Validator, errs *apierrors.ErrorHandler, logger *slog.Logger) *OperationsHandler {
	if service == nil {
		panic("service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OperationsHandler{
		service:   service,
		validator: validator,
		errors:    errs,
		logger:    logger.With(slog.String("handler", "operations")),
	}
}

// Routes returns a chi router for operations endpoints
func (h *OperationsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Register)
	r.Delete("/", h.Clear)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Patch("/", h.Update)
		r.Post("/complete", h.Complete)
		r.Post("/fail", h.Fail)
		r.Post("/cancel", h.Cancel)
		r.Post("/poll", h.StartPolling)
		r.Delete("/poll", h.StopPolling)
	})
	return r
}

// List handles GET /api/operations
func (h *OperationsHandler) List(w http.ResponseWriter, r *http.Request) {
	status, err := middleware.QueryEnum(r, "status", statusFilters, "")
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	ops := h.service.List(r.Context())
	if status != "" {
		ops = slices.DeleteFunc(ops, func(op operations.Operation) bool {
			return string(op.Status) != status
		})
	}
	render.JSON(w, r, api.OperationList{Operations: Snapshots(ops), Count: len(ops)})
}

// Register handles POST /api/operations
func (h *OperationsHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if err := h.validator.DecodeJSON(r, &req, true); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	op, err := h.service.Register(r.Context(), req)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "operation registered via API",
		slog.String("operation_id", op.ID),
		slog.String("request_id", middleware.GetRequestID(r.Context())))
	w.Header().Set("Location", r.URL.Path+"/"+op.ID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, Snapshot(op))
}

// Clear handles DELETE /api/operations
func (h *OperationsHandler) Clear(w http.ResponseWriter, r *http.Request) {
	n := h.service.ClearAll(r.Context())
	render.JSON(w, r, api.ClearResponse{Cleared: n})
}

// Get handles GET /api/operations/{id}
func (h *OperationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	op, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, Snapshot(op))
}

// Update handles PATCH /api/operations/{id}
func (h *OperationsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateRequest
	if err := h.validator.DecodeJSON(r, &req, false); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	h.respond(w, r, func(id string) (operations.Operation, error) {
		return h.service.Update(r.Context(), id, req)
	})
}

// Complete handles POST /api/operations/{id}/complete
func (h *OperationsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req api.CompleteRequest
	if err := h.validator.DecodeJSON(r, &req, true); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	h.respond(w, r, func(id string) (operations.Operation, error) {
		return h.service.Complete(r.Context(), id, req)
	})
}

// Fail handles POST /api/operations/{id}/fail
func (h *OperationsHandler) Fail(w http.ResponseWriter, r *http.Request) {
	var req api.FailRequest
	if err := h.validator.DecodeJSON(r, &req, false); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	h.respond(w, r, func(id string) (operations.Operation, error) {
		return h.service.Fail(r.Context(), id, req)
	})
}

// Cancel handles POST /api/operations/{id}/cancel
func (h *OperationsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func(id string) (operations.Operation, error) {
		return h.service.Cancel(r.Context(), id)
	})
}

// StartPolling handles POST /api/operations/{id}/poll
func (h *OperationsHandler) StartPolling(w http.ResponseWriter, r *http.Request) {
	var req api.PollRequest
	if err := h.validator.DecodeJSON(r, &req, false); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	op, err := h.service.StartPolling(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, Snapshot(op))
}

// StopPolling handles DELETE /api/operations/{id}/poll
func (h *OperationsHandler) StopPolling(w http.ResponseWriter, r *http.Request) {
	if err := h.service.StopPolling(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

func (h *OperationsHandler) respond(w http.ResponseWriter, r *http.Request, fn func(id string) (operations.Operation, error)) {
	op, err := fn(chi.URLParam(r, "id"))
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, Snapshot(op))
}
