package gateway

import (
	"errors"
	"fmt"
	"time"

	"toolgate/pkg/models"
)

// Terminal errors. Everything else degrades to a structured Result the
// reasoning loop can act on.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnknownTool      = errors.New("unknown tool")
	ErrBadRequest       = errors.New("malformed request")
)

// Result is the structured outcome of one invocation. Exactly one of the
// payload fields is meaningful depending on Status; Message is always a
// human-readable line the reasoning loop can reason over.
type Result struct {
	Status  models.CallStatus `json:"status"`
	Message string            `json:"message,omitempty"`

	// Content is the inline tool result (possibly truncated when offload
	// storage was unavailable).
	Content string `json:"content,omitempty"`
	// Truncated marks Content as an inline fallback cut at the size
	// threshold.
	Truncated bool `json:"truncated,omitempty"`

	// OffloadRef and Preview are set when the result was offloaded.
	Preview    string `json:"preview,omitempty"`
	OffloadRef string `json:"offload_ref,omitempty"`

	// RetryAfter is set on rate-limited calls.
	RetryAfter time.Duration `json:"retry_after,omitempty"`

	// Cached marks a cache hit served without dispatch.
	Cached bool `json:"cached,omitempty"`
}

func rateLimitedResult(toolID string, retryAfter time.Duration) *Result {
	retryAfter = retryAfter.Round(time.Millisecond)
	return &Result{
		Status:     models.CallStatusRateLimited,
		RetryAfter: retryAfter,
		Message: fmt.Sprintf("tool %s is rate limited right now; retry after %s or do something else first",
			toolID, retryAfter),
	}
}

func transportFailureResult(toolID string, err error) *Result {
	return &Result{
		Status: models.CallStatusFailed,
		Message: fmt.Sprintf("tool %s failed: %s; the arguments may be wrong or the backend unavailable, adjust and try a different approach",
			toolID, describeTransportError(err)),
	}
}

func offloadedResult(ref, preview string, size int) *Result {
	return &Result{
		Status:     models.CallStatusOffloaded,
		OffloadRef: ref,
		Preview:    preview,
		Message: fmt.Sprintf("result was too large to return inline (%d bytes) and was offloaded to reference %s; preview: %s; use the code-execution tool to read and filter it",
			size, ref, preview),
	}
}
