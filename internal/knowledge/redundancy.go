package knowledge

// RedundancyFilter tracks accepted fingerprints and suppresses near-duplicate
// text. Best effort: near-identical restatements are treated as duplicates,
// a missed duplicate is acceptable.
type RedundancyFilter struct {
	accepted map[string]string // fingerprint -> first accepted chunk id
}

// NewRedundancyFilter returns an empty filter.
func NewRedundancyFilter() *RedundancyFilter {
	return &RedundancyFilter{accepted: make(map[string]string)}
}

// IsDuplicate reports whether the fingerprint was already accepted.
func (f *RedundancyFilter) IsDuplicate(fingerprint string) bool {
	_, ok := f.accepted[fingerprint]
	return ok
}

// Accept records a fingerprint with the chunk id that claimed it. Returns
// false with the earlier id when the fingerprint was already taken.
func (f *RedundancyFilter) Accept(fingerprint, chunkID string) (string, bool) {
	if id, ok := f.accepted[fingerprint]; ok {
		return id, false
	}
	f.accepted[fingerprint] = chunkID
	return chunkID, true
}

// FirstID returns the chunk id that first claimed the fingerprint.
func (f *RedundancyFilter) FirstID(fingerprint string) (string, bool) {
	id, ok := f.accepted[fingerprint]
	return id, ok
}

// Len returns the number of distinct fingerprints accepted.
func (f *RedundancyFilter) Len() int {
	return len(f.accepted)
}
