package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
)

// LoreError is the structured error returned by every lorerank package.
type LoreError struct {
	// Code is the stable error code, e.g. "ERR_402_DIMENSION_MISMATCH".
	Code     string
	Message  string
	Category Category
	Severity Severity
	// Details holds extra key/value context such as the failing search stage.
	Details    map[string]string
	Cause      error
	Retryable  bool
	Suggestion string
}

func (e *LoreError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *LoreError) Unwrap() error {
	return e.Cause
}

// Is matches by code so errors.Is(err, errors.New(code, "", nil)) works.
func (e *LoreError) Is(target error) bool {
	if t, ok := target.(*LoreError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail attaches a key/value pair and returns e for chaining.
func (e *LoreError) WithDetail(key, value string) *LoreError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion attaches a hint for the user and returns e for chaining.
func (e *LoreError) WithSuggestion(suggestion string) *LoreError {
	e.Suggestion = suggestion
	return e
}

// New builds a LoreError; category, severity and retryability derive from code.
func New(code string, message string, cause error) *LoreError {
	return &LoreError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap turns err into a LoreError with the given code, reusing its message.
func Wrap(code string, err error) *LoreError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError reports an invalid configuration value.
func ConfigError(message string, cause error) *LoreError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError reports bad caller input.
func ValidationError(message string, cause error) *LoreError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError reports a bug or an unexpected state.
func InternalError(message string, cause error) *LoreError {
	return New(ErrCodeInternal, message, cause)
}

// DimensionMismatch reports a vector whose length differs from the index dimension.
func DimensionMismatch(want, got int) *LoreError {
	return New(ErrCodeDimensionMismatch,
		fmt.Sprintf("vector dimension mismatch: expected %d, got %d", want, got), nil).
		WithDetail("expected", strconv.Itoa(want)).
		WithDetail("actual", strconv.Itoa(got))
}

// EmptyIndex reports a search against an index holding no vectors.
func EmptyIndex(what string) *LoreError {
	return New(ErrCodeEmptyIndex, what+" index is empty", nil).
		WithSuggestion("Rebuild the index artifacts; a searchable index needs at least one document")
}

// Inconsistent reports corpus and index artifacts that do not describe the same documents.
func Inconsistent(message string) *LoreError {
	return New(ErrCodeIndexInconsistent, message, nil).
		WithSuggestion("Rebuild the vector index, lexical corpus and metadata together from the same crawl")
}

// EncodingError reports a failure of the query embedding function.
// Network causes stay retryable.
func EncodingError(cause error) *LoreError {
	e := New(ErrCodeEmbeddingFailed, "failed to encode query", cause)
	var le *LoreError
	if stderrors.As(cause, &le) && le.Retryable {
		e.Retryable = true
	}
	return e
}

// FromContext converts a done context into a timeout or cancellation error.
// It returns nil while ctx is still live.
func FromContext(ctx context.Context, stage string) *LoreError {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	code := ErrCodeSearchCanceled
	msg := "search canceled"
	if stderrors.Is(err, context.DeadlineExceeded) {
		code = ErrCodeSearchTimeout
		msg = "search deadline exceeded"
	}
	return New(code, msg+" before "+stage, err).WithDetail("stage", stage)
}

// IsRetryable reports whether err (or any LoreError it wraps) is retryable.
func IsRetryable(err error) bool {
	var le *LoreError
	if stderrors.As(err, &le) {
		return le.Retryable
	}
	return false
}

// IsFatal reports whether err carries fatal severity.
func IsFatal(err error) bool {
	var le *LoreError
	if stderrors.As(err, &le) {
		return le.Severity == SeverityFatal
	}
	return false
}

// GetCode returns the code of the first LoreError in err's chain, or "".
func GetCode(err error) string {
	var le *LoreError
	if stderrors.As(err, &le) {
		return le.Code
	}
	return ""
}

// HasCode reports whether err's chain contains a LoreError with code.
func HasCode(err error, code string) bool {
	return GetCode(err) == code
}
