// Package shared holds helpers used by more than one package.
//
// The testutil subpackage captures slog output in tests and provides
// small polling helpers for asynchronous assertions:
//
//	logger, logs := testutil.NewTestLogger(t)
//	m := operations.NewManager(operations.WithLogger(logger))
//	...
//	testutil.AssertLogContains(t, logs, slog.LevelError, "event listener panicked")
//
// Nothing here may import a domain package.
package shared
