package http

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "asyncops/internal/errors"
	"asyncops/internal/exporter"
	"asyncops/internal/middleware"
	api "asyncops/pkg/contracts/api/v1"
)

// HistoryHandler exports finished operations
type HistoryHandler struct {
	history HistorySource
	errors  *apierrors.ErrorHandler
	logger  *slog.Logger
	now     func() time.Time
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(history HistorySource, errs *apierrors.ErrorHandler, logger *slog.Logger) *HistoryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryHandler{
		history: history,
		errors:  errs,
		logger:  logger.With(slog.String("handler", "history")),
		now:     time.Now,
	}
}

// Routes returns a chi router for history endpoints
func (h *HistoryHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Export)
	return r
}

// Export handles GET /api/history?format=json|csv|xlsx&limit=N.
// limit keeps the most recent N entries.
func (h *HistoryHandler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	format, err := exporter.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.errors.HandleError(w, r, apierrors.ErrValidation("format", err.Error()))
		return
	}
	limit, err := middleware.QueryInt(r, "limit", 0, 100000, 0)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	ops := h.history.Snapshot()
	if limit > 0 && len(ops) > limit {
		ops = ops[len(ops)-limit:]
	}

	if format == exporter.FormatJSON {
		render.JSON(w, r, api.OperationList{Operations: Snapshots(ops), Count: len(ops)})
		return
	}

	// Encode fully before writing so a failure can still produce a problem response.
	var buf bytes.Buffer
	switch format {
	case exporter.FormatCSV:
		err = exporter.WriteCSV(&buf, ops, exporter.CSVOptions{BOMPrefix: true})
	case exporter.FormatXLSX:
		err = exporter.WriteXLSX(&buf, ops)
	}
	if err != nil {
		h.errors.HandleError(w, r, fmt.Errorf("export %s: %w", format, err))
		return
	}

	h.logger.InfoContext(ctx, "history exported",
		slog.String("format", string(format)),
		slog.Int("count", len(ops)))

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, format.Filename(h.now())))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
