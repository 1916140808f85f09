// Package http implements the REST handlers of the orchestrator daemon.
// Handlers stay thin: they decode and validate the request, call a service,
// and render either a contract type or an RFC 7807 problem.
//
// # Request Flow
//
//	HTTP Request → Chi Router → Middleware → Handler → Service → Manager
//	                                              ↓
//	HTTP Response ← Handler ← Service Response ←─┘
//
// # Handler Structure
//
//	func (h *OperationsHandler) Get(w http.ResponseWriter, r *http.Request) {
//	    op, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
//	    if err != nil {
//	        h.errors.HandleError(w, r, err)
//	        return
//	    }
//	    render.JSON(w, r, Snapshot(op))
//	}
//
// Each handler exposes Routes() so the application can mount it under a
// prefix and apply its own middleware.
package http
