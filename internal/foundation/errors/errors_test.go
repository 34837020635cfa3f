package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryConfig, "invalid configuration").
			WithSeverity(SeverityFatal).
			WithContext("file", "pagepress.yaml").
			Build()

		if err.Category() != CategoryConfig {
			t.Errorf("expected category %s, got %s", CategoryConfig, err.Category())
		}
		if err.Severity() != SeverityFatal {
			t.Errorf("expected severity %s, got %s", SeverityFatal, err.Severity())
		}
		if err.Message() != "invalid configuration" {
			t.Errorf("expected message 'invalid configuration', got %s", err.Message())
		}
		file, exists := err.Context().GetString("file")
		if !exists || file != "pagepress.yaml" {
			t.Errorf("expected context file=pagepress.yaml, got %v", file)
		}
	})

	t.Run("Error detection", func(t *testing.T) {
		err := ConfigError("test error").Build()

		if !IsClassified(err) {
			t.Error("expected error to be classified")
		}
		if !HasCategory(err, CategoryConfig) {
			t.Error("expected error to have config category")
		}
		if !HasSeverity(err, SeverityFatal) {
			t.Error("expected error to have fatal severity")
		}
		if err.CanRetry() {
			t.Error("expected config error to not be retryable")
		}
		if !err.IsFatal() {
			t.Error("expected config error to be fatal")
		}
	})

	t.Run("Detection through fmt wrapping", func(t *testing.T) {
		inner := ConflictError("remote diverged").Build()
		wrapped := fmt.Errorf("publish: %w", inner)

		if !HasCategory(wrapped, CategoryConflict) {
			t.Fatal("expected wrapped error to expose conflict category")
		}
		if GetCategory(wrapped) != CategoryConflict {
			t.Fatalf("expected conflict category, got %s", GetCategory(wrapped))
		}
	})

	t.Run("Nested categories", func(t *testing.T) {
		auth := AuthError("bad token").Build()
		outer := WrapError(auth, CategoryGit, "push failed").Build()

		if !HasCategory(outer, CategoryAuth) {
			t.Fatal("expected nested auth category to be visible")
		}
		if GetCategory(outer) != CategoryGit {
			t.Fatalf("expected outermost category git, got %s", GetCategory(outer))
		}
	})
}

func TestErrorBuilder(t *testing.T) {
	t.Run("Fluent API", func(t *testing.T) {
		originalErr := errors.New("original error")
		err := WrapError(originalErr, CategoryNetwork, "network failure").
			Warning().
			Retryable().
			WithContext("host", "example.com").
			WithContext("port", 443).
			Build()

		if err.Category() != CategoryNetwork {
			t.Errorf("expected category %s, got %s", CategoryNetwork, err.Category())
		}
		if err.Severity() != SeverityWarning {
			t.Errorf("expected severity %s, got %s", SeverityWarning, err.Severity())
		}
		if err.RetryStrategy() != RetryBackoff {
			t.Errorf("expected retry strategy %s, got %s", RetryBackoff, err.RetryStrategy())
		}
		if !errors.Is(err, originalErr) {
			t.Error("expected error to wrap original error")
		}
		host, _ := err.Context().GetString("host")
		if host != "example.com" {
			t.Errorf("expected host context 'example.com', got %s", host)
		}
	})

	t.Run("Convenience constructors", func(t *testing.T) {
		tests := []struct {
			name     string
			builder  *ErrorBuilder
			category ErrorCategory
			severity ErrorSeverity
			retry    RetryStrategy
		}{
			{"ConfigError", ConfigError("test"), CategoryConfig, SeverityFatal, RetryUserAction},
			{"ValidationError", ValidationError("test"), CategoryValidation, SeverityFatal, RetryNever},
			{"RenderError", RenderError("test"), CategoryRender, SeverityFatal, RetryNever},
			{"AssetError", AssetError("test"), CategoryAsset, SeverityWarning, RetryNever},
			{"AuthError", AuthError("test"), CategoryAuth, SeverityError, RetryUserAction},
			{"NetworkError", NetworkError("test"), CategoryNetwork, SeverityError, RetryBackoff},
			{"ConflictError", ConflictError("test"), CategoryConflict, SeverityError, RetryUserAction},
			{"GitError", GitError("test"), CategoryGit, SeverityError, RetryNever},
			{"FileSystemError", FileSystemError("test"), CategoryFileSystem, SeverityError, RetryNever},
			{"InternalError", InternalError("test"), CategoryInternal, SeverityFatal, RetryNever},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := tt.builder.Build()
				if err.Category() != tt.category {
					t.Errorf("expected category %s, got %s", tt.category, err.Category())
				}
				if err.Severity() != tt.severity {
					t.Errorf("expected severity %s, got %s", tt.severity, err.Severity())
				}
				if err.RetryStrategy() != tt.retry {
					t.Errorf("expected retry strategy %s, got %s", tt.retry, err.RetryStrategy())
				}
			})
		}
	})
}

func TestErrorContext(t *testing.T) {
	ctx1 := make(ErrorContext)
	ctx1 = ctx1.Set("key1", "value1")
	ctx1 = ctx1.Set("shared", "original")

	ctx2 := make(ErrorContext)
	ctx2 = ctx2.Set("key2", "value2")
	ctx2 = ctx2.Set("shared", "overridden")

	merged := ctx1.Merge(ctx2)

	value1, _ := merged.GetString("key1")
	value2, _ := merged.GetString("key2")
	shared, _ := merged.GetString("shared")

	if value1 != "value1" || value2 != "value2" {
		t.Errorf("unexpected merged values %q %q", value1, value2)
	}
	if shared != "overridden" {
		t.Errorf("expected shared=overridden, got %s", shared)
	}
	if _, ok := merged.Get("nonexistent"); ok {
		t.Error("expected nonexistent key to not exist")
	}
}
