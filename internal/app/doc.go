// Package app wires the orchestrator daemon together and manages its
// lifecycle.
//
// # Initialization Flow
//
//	1. Load configuration (defaults, then YAML, then ASYNCOPS_* environment)
//	2. Initialize logging and OpenTelemetry
//	3. Create the websocket hub and the event bridge
//	4. Create the operation Manager with the bridge as create hook
//	5. Attach the bridge and the history recorder to the event bus
//	6. Build services, handlers and middleware, then the HTTP server
//
// # Usage
//
//	a, err := app.New("")
//	if err != nil {
//	    return err
//	}
//	return a.Run(ctx)
//
// Run returns once ctx is cancelled and shutdown has finished. Shutdown
// drains HTTP requests, cancels running batches, detaches event observers,
// stops every poll, clears the registry and flushes telemetry.
//
// The app never calls os.Exit; errors are returned to main.
package app
