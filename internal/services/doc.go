// Package services sits between the HTTP handlers and the operation
// Manager. It turns REST requests into Manager calls, maps lookups on
// unknown or finished operations to API errors, and owns the two
// HTTP-backed workloads the daemon can drive on its own:
//
//	- HTTPProbe polls a remote status endpoint for an operation.
//	- BatchService runs a list of HTTP requests sequentially as one batch.
//
// Handlers never touch the Manager directly:
//
//	op, err := svc.Register(ctx, req)
//	if err != nil {
//	    errorHandler.HandleError(w, r, err)
//	    return
//	}
//
// Errors returned by services are either *errors.APIError values or
// *operations.OperationError values; both are understood by
// errors.ErrorHandler.
package services
