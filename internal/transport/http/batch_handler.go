package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "asyncops/internal/errors"
	"asyncops/internal/middleware"
	api "asyncops/pkg/contracts/api/v1"
)

// BatchHandler starts HTTP request batches
type BatchHandler struct {
	batches   BatchSubmitter
	validator *middleware.Validator
	errors    *apierrors.ErrorHandler
	logger    *slog.Logger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(batches BatchSubmitter, validator *middleware.Validator, errs *apierrors.ErrorHandler, logger *slog.Logger) *BatchHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchHandler{
		batches:   batches,
		validator: validator,
		errors:    errs,
		logger:    logger.With(slog.String("handler", "batches")),
	}
}

// Routes returns a chi router for batch endpoints
func (h *BatchHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Submit)
	return r
}

// Submit handles POST /api/batches. The batch runs in the background; its
// progress is observable through the operation with the returned id.
func (h *BatchHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req api.BatchRequest
	if err := h.validator.DecodeJSON(r, &req, false); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	resp, err := h.batches.Submit(r.Context(), req)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/operations/"+resp.ID)
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, resp)
}
