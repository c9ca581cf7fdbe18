package knowledge

import (
	"fmt"
	"strings"
	"time"
)

// Recognized metadata keys. Anything else is carried through as an open
// extension but must be non-empty on both sides.
const (
	MetaSessionID  = "session_id"
	MetaRole       = "role"
	MetaTimestamp  = "timestamp"
	MetaCategory   = "category"
	MetaImportance = "importance"
	MetaType       = "type"
)

// Chunk type values used by the memory system.
const (
	TypeKnowledge    = "knowledge"
	TypeConversation = "conversation"
	TypeSummary      = "summary"
)

// Keys reserved by the stored payload encoding. Metadata may not use them:
// a reserved key would be shadowed on write and stripped on read, so the id
// would no longer recompute from the stored record.
const (
	PayloadChunkID     = "chunk_id"
	PayloadContent     = "content"
	PayloadFingerprint = "fingerprint"
	PayloadEntropy     = "entropy_score"
	PayloadCreatedAt   = "created_at"
)

var reservedMetadataKeys = map[string]bool{
	PayloadChunkID:     true,
	PayloadContent:     true,
	PayloadFingerprint: true,
	PayloadEntropy:     true,
	PayloadCreatedAt:   true,
}

// Chunk is a unit of ingested text. Its ID is a pure function of
// (Text, Metadata): re-ingesting identical content with identical metadata
// yields the same ID and is an update-in-place, never a duplicate insert.
// The embedding itself lives in the vector store and is referenced by ID.
type Chunk struct {
	ID           string            `json:"id"`
	Text         string            `json:"text"`
	Fingerprint  string            `json:"fingerprint"`
	EntropyScore float64           `json:"entropy_score"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// NewChunk validates the input and computes identity, fingerprint and
// entropy score. Metadata may be nil.
func NewChunk(text string, metadata map[string]string) (*Chunk, error) {
	if err := ValidateMetadata(metadata); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrValidation)
	}
	return &Chunk{
		ID:           ComputeID(text, metadata),
		Text:         text,
		Fingerprint:  Fingerprint(text),
		EntropyScore: Score(text),
		Metadata:     metadata,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// Verify recomputes the chunk's id and compares with the stored one.
// A mismatch signals corpus corruption (e.g. a metadata edit after ingest).
func (c *Chunk) Verify() error {
	if got := ComputeID(c.Text, c.Metadata); got != c.ID {
		return fmt.Errorf("%w: chunk %s recomputes to %s", ErrInvariant, c.ID, got)
	}
	return nil
}

// ValidateMetadata rejects empty keys, empty values and keys reserved by the
// payload encoding. Other unknown keys are allowed as an open extension bucket.
func ValidateMetadata(metadata map[string]string) error {
	for k, v := range metadata {
		if k == "" {
			return fmt.Errorf("%w: empty metadata key", ErrValidation)
		}
		if v == "" {
			return fmt.Errorf("%w: empty value for metadata key %q", ErrValidation, k)
		}
		if reservedMetadataKeys[k] {
			return fmt.Errorf("%w: metadata key %q is reserved", ErrValidation, k)
		}
	}
	return nil
}
