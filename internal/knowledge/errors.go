package knowledge

import "errors"

// Error kinds shared across the engine. Callers classify failures with
// errors.Is rather than inspecting messages.
var (
	// ErrValidation marks rejected input (empty text/query, non-positive k).
	// Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrUnavailable marks a collaborator failure (embedding, search or
	// summarization service). Callers degrade gracefully; retry policy is
	// theirs to decide.
	ErrUnavailable = errors.New("collaborator unavailable")

	// ErrInvariant marks corpus corruption, e.g. a chunk whose recomputed id
	// no longer matches its stored id. Fatal for the single operation.
	ErrInvariant = errors.New("invariant violation")
)
