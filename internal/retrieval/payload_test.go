package retrieval

import (
	"reflect"
	"testing"

	"github.com/nidhogg/recall/internal/knowledge"
)

func TestPayloadRoundTrip(t *testing.T) {
	c, err := knowledge.NewChunk("the sky is blue", map[string]string{
		"category":   "weather",
		"session_id": "s1",
	})
	if err != nil {
		t.Fatalf("new chunk: %v", err)
	}

	got := DecodePayload(EncodePayload(c))
	if got.ID != c.ID {
		t.Errorf("id changed: %q vs %q", got.ID, c.ID)
	}
	if got.Text != c.Text {
		t.Errorf("text changed: %q vs %q", got.Text, c.Text)
	}
	if got.Fingerprint != c.Fingerprint {
		t.Errorf("fingerprint changed: %q vs %q", got.Fingerprint, c.Fingerprint)
	}
	if got.EntropyScore != c.EntropyScore {
		t.Errorf("entropy changed: %v vs %v", got.EntropyScore, c.EntropyScore)
	}
	if !reflect.DeepEqual(got.Metadata, c.Metadata) {
		t.Errorf("metadata changed: %v vs %v", got.Metadata, c.Metadata)
	}
	// The round-tripped chunk must still recompute to its own id.
	if err := got.Verify(); err != nil {
		t.Errorf("round-tripped chunk failed verification: %v", err)
	}
}

func TestDecodePayloadDefaults(t *testing.T) {
	// Points written before entropy scoring existed carry no entropy field.
	got := DecodePayload(map[string]string{
		payloadChunkID: "abc123",
		payloadContent: "some stored text",
	})
	if got.EntropyScore != defaultEntropy {
		t.Errorf("entropy default = %v, want %v", got.EntropyScore, defaultEntropy)
	}
	if got.Fingerprint != knowledge.Fingerprint("some stored text") {
		t.Errorf("fingerprint not recomputed: %q", got.Fingerprint)
	}
	if got.Metadata != nil {
		t.Errorf("unexpected metadata: %v", got.Metadata)
	}
}
