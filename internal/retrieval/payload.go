package retrieval

import (
	"strconv"
	"time"

	"github.com/nidhogg/recall/internal/knowledge"
)

// Reserved payload keys. Everything else in a point payload is chunk
// metadata. The names are owned by the knowledge package, which rejects them
// as metadata keys at validation so the round-trip stays lossless.
const (
	payloadChunkID     = knowledge.PayloadChunkID
	payloadContent     = knowledge.PayloadContent
	payloadFingerprint = knowledge.PayloadFingerprint
	payloadEntropy     = knowledge.PayloadEntropy
	payloadCreatedAt   = knowledge.PayloadCreatedAt
)

// defaultEntropy is assumed for points written before entropy scoring existed.
const defaultEntropy = 0.5

// EncodePayload flattens a chunk into the string payload stored alongside its
// vector. Metadata keys sit next to the reserved keys, which makes them
// directly filterable in the search store.
func EncodePayload(c *knowledge.Chunk) map[string]string {
	payload := make(map[string]string, len(c.Metadata)+5)
	for k, v := range c.Metadata {
		payload[k] = v
	}
	payload[payloadChunkID] = c.ID
	payload[payloadContent] = c.Text
	payload[payloadFingerprint] = c.Fingerprint
	payload[payloadEntropy] = strconv.FormatFloat(c.EntropyScore, 'f', -1, 64)
	payload[payloadCreatedAt] = c.CreatedAt.UTC().Format(time.RFC3339Nano)
	return payload
}

// DecodePayload rebuilds a chunk from a point payload.
func DecodePayload(payload map[string]string) *knowledge.Chunk {
	c := &knowledge.Chunk{
		ID:           payload[payloadChunkID],
		Text:         payload[payloadContent],
		Fingerprint:  payload[payloadFingerprint],
		EntropyScore: defaultEntropy,
	}
	if s, ok := payload[payloadEntropy]; ok {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			c.EntropyScore = f
		}
	}
	if s, ok := payload[payloadCreatedAt]; ok {
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			c.CreatedAt = ts
		}
	}
	if c.Fingerprint == "" && c.Text != "" {
		c.Fingerprint = knowledge.Fingerprint(c.Text)
	}

	var meta map[string]string
	for k, v := range payload {
		switch k {
		case payloadChunkID, payloadContent, payloadFingerprint, payloadEntropy, payloadCreatedAt:
			continue
		}
		if meta == nil {
			meta = make(map[string]string)
		}
		meta[k] = v
	}
	c.Metadata = meta
	return c
}
