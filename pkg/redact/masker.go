// Package redact applies tiered, fail-closed redaction to evidence text
// before it is allowed into an LLM enrichment request. It is adapted from
// the teacher's MCP tool-result masking service, narrowed to a single
// global redactor driven by a pattern-group tier instead of per-server
// configuration (Tarka has no MCP servers).
package redact

// Masker is the interface for code-based redactors that need structural
// awareness beyond regex pattern matching, e.g. parsing YAML/JSON to mask
// Kubernetes Secret data fields while leaving ConfigMaps untouched.
type Masker interface {
	// Name returns the unique identifier for this masker. Must match a key
	// in config.GetBuiltinConfig().CodeMaskers.
	Name() string

	// AppliesTo performs a lightweight check on whether this masker should
	// process the data. Should be fast (string contains, not full parsing).
	AppliesTo(data string) bool

	// Mask applies masking logic and returns the masked result. Must be
	// defensive: return the original data on parse/processing errors.
	Mask(data string) string
}
