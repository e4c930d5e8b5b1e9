package config

// NewDedupForTest builds a Dedup config without going through CLI flags
func NewDedupForTest(threshold float64, serializeCreates bool) *Dedup {
	return &Dedup{
		threshold:        threshold,
		serializeCreates: serializeCreates,
	}
}
