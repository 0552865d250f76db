package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for the pipeline error taxonomy. Call sites wrap errors
// with exactly one marker via Wrap so failures classify deterministically.
var (
	// ErrTransient marks capability timeouts and rate limits. Retried with
	// backoff at the call site; never counted as a rewrite.
	ErrTransient = errors.New("transient failure")
	// ErrContent marks unsupported generated claims. Drives the bounded
	// rewrite loop.
	ErrContent = errors.New("content failure")
	// ErrStructural marks conditions that fail a single segment immediately:
	// empty facts retrieval, malformed capability responses.
	ErrStructural = errors.New("structural failure")
	// ErrFatal marks unrecoverable conditions (authentication failure, index
	// corruption). Aborts the entire job.
	ErrFatal = errors.New("fatal failure")
	// ErrConfiguration marks unusable configuration detected at runtime.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks missing records (job token, document, artifact).
	ErrNotFound = errors.New("not found")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether the error aborts the whole job.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal) || errors.Is(err, ErrConfiguration)
}

// IsTransient reports whether the error is retryable at the call site.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsStructural reports whether the error fails a single segment without
// aborting the job.
func IsStructural(err error) bool {
	return errors.Is(err, ErrStructural)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
