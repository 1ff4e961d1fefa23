// Package errs defines the error taxonomy shared by the orchestration and
// ingestion pipelines. Each class carries a distinct propagation policy:
// extraction and tool errors stay inside their scope, retrieval errors trigger
// a fallback, usage errors are logged and dropped, and only provider errors
// with no retry path left reach the end user.
package errs

import "fmt"

// ExtractionError reports a single file that could not be converted to text.
// It never fails the batch; the ingestion pipeline records it as a per-file note.
type ExtractionError struct {
	Filename string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %q: %v", e.Filename, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ProviderError reports a failed completion or embedding call. A top-level
// provider error with no retry path is the only error class surfaced to the user.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ToolError reports a failed tool execution. It is serialized into the tool
// result message for the model, never raised to the caller.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// RetrievalError reports a failed vector or keyword lookup. Callers catch it
// and degrade to the next retrieval strategy or to an empty context block.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// UsageWriteError reports a failed usage-counter write. Accounting is
// best-effort; this error is logged and must never block the response.
type UsageWriteError struct {
	Err error
}

func (e *UsageWriteError) Error() string {
	return fmt.Sprintf("usage write: %v", e.Err)
}

func (e *UsageWriteError) Unwrap() error { return e.Err }
