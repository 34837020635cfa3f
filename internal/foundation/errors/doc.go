// Package errors provides the classified error primitives shared by the build engine,
// the repository synchronizer and the CLI.
//
// Key features:
//   - ErrorCategory: broad classification (config, render, asset, auth, network, conflict, ...)
//   - ErrorSeverity: impact level (fatal, error, warning, info)
//   - RetryStrategy: whether the caller may retry, and how
//   - ClassifiedError: structured error with category, severity, and context
//   - ErrorBuilder: fluent API for creating classified errors
//   - CLIErrorAdapter: exit codes and user-facing formatting
//
// Example usage:
//
//	err := errors.NewError(errors.CategoryGit, "push failed").
//		WithSeverity(errors.SeverityError).
//		WithContext("branch", branch).
//		WithCause(originalErr).
//		Build()
package errors
