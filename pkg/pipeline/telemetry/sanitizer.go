// Package telemetry implements spec.md §4.10/§6: the structured pipeline
// event schema layered on internal/observability, and the payload
// sanitizer that keeps verbose stage data (large arrays, embeddings, deep
// objects) out of logs without losing their shape.
package telemetry

import (
	"fmt"
	"reflect"
	"sort"
	"time"
)

const (
	DefaultMaxStringLength = 500
	DefaultMaxArrayLength  = 3
	DefaultMaxDepth        = 3
)

// embeddingLengths are the array lengths spec.md §4.10 recognizes as
// likely vector-embedding dimensions, independent of the >100 fallback.
var embeddingLengths = map[int]bool{384: true, 512: true, 768: true, 1024: true, 1536: true, 3072: true}

// preserveKeys are never truncated, regardless of length.
var preserveKeys = map[string]bool{
	"id": true, "score": true, "event": true, "component": true, "traceId": true, "spanId": true,
}

// truncateKeys are always rendered through the truncation path, even when
// shorter than maxStringLength — these are the fields most likely to carry
// an accidental full payload dump (raw vectors, upstream responses).
var truncateKeys = map[string]bool{
	"embedding": true, "vector": true, "payload": true, "results": true, "rawResponse": true, "fullParams": true,
}

// SanitizerConfig configures a Sanitizer's thresholds. The zero value is
// replaced with the spec.md §4.10 defaults by NewSanitizer.
type SanitizerConfig struct {
	MaxStringLength int
	MaxArrayLength  int
	MaxDepth        int
}

func (c SanitizerConfig) withDefaults() SanitizerConfig {
	if c.MaxStringLength <= 0 {
		c.MaxStringLength = DefaultMaxStringLength
	}
	if c.MaxArrayLength <= 0 {
		c.MaxArrayLength = DefaultMaxArrayLength
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = DefaultMaxDepth
	}
	return c
}

// Sanitizer reshapes arbitrary stage payloads for safe logging, per
// spec.md §4.10's truncation/embedding-detection/depth-limiting contract.
// There's no ecosystem library in the corpus for this — masq (used by
// internal/observability for field-name redaction) has no notion of array
// length, embedding dimension, or object depth — so this is hand-written
// against the spec's own algorithm.
type Sanitizer struct {
	cfg SanitizerConfig
}

// NewSanitizer builds a Sanitizer, applying spec.md §4.10's defaults for
// any unset threshold.
func NewSanitizer(cfg SanitizerConfig) *Sanitizer {
	return &Sanitizer{cfg: cfg.withDefaults()}
}

// Sanitize reshapes v for logging under key (the field name v would be
// logged as, which governs the preserve/truncate key overrides).
func (s *Sanitizer) Sanitize(v any, key string) any {
	return s.sanitize(v, key, 0)
}

func (s *Sanitizer) sanitize(v any, key string, depth int) any {
	if v == nil {
		return nil
	}

	switch val := v.(type) {
	case error:
		return sanitizeError(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case string:
		return s.sanitizeString(val, key)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return s.sanitizeSequence(rv, key, depth)
	case reflect.Map:
		return s.sanitizeMap(rv, depth)
	case reflect.Struct:
		return s.sanitizeStruct(rv, depth)
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return s.sanitize(rv.Elem().Interface(), key, depth)
	case reflect.Func:
		return fmt.Sprintf("[Function: %s]", rv.Type())
	default:
		return v
	}
}

func (s *Sanitizer) sanitizeString(str, key string) any {
	if preserveKeys[key] {
		return str
	}
	if truncateKeys[key] || len(str) > s.cfg.MaxStringLength {
		return truncateString(str, s.cfg.MaxStringLength)
	}
	return str
}

func truncateString(str string, limit int) string {
	if len(str) <= limit {
		return str
	}
	return fmt.Sprintf("%s... [truncated, total length: %d]", str[:limit], len(str))
}

func (s *Sanitizer) sanitizeSequence(rv reflect.Value, key string, depth int) any {
	n := rv.Len()
	if isEmbedding(rv, n) {
		return formatEmbedding(rv, n)
	}

	if n <= s.cfg.MaxArrayLength {
		out := make([]any, n)
		for i := 0; i < n; i++ {
			out[i] = s.sanitize(rv.Index(i).Interface(), key, depth+1)
		}
		return out
	}

	showing := s.cfg.MaxArrayLength
	items := make([]any, showing)
	for i := 0; i < showing; i++ {
		items[i] = s.sanitize(rv.Index(i).Interface(), key, depth+1)
	}
	return map[string]any{
		"__arrayInfo__": map[string]any{
			"length":  n,
			"showing": showing,
			"items":   items,
		},
	}
}

// isEmbedding reports whether rv is a slice/array of numeric values whose
// length matches a known embedding dimension or exceeds 100, per
// spec.md §4.10.
func isEmbedding(rv reflect.Value, n int) bool {
	if n == 0 {
		return false
	}
	if !embeddingLengths[n] && n <= 100 {
		return false
	}
	elemKind := rv.Type().Elem().Kind()
	switch elemKind {
	case reflect.Float32, reflect.Float64,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}

func formatEmbedding(rv reflect.Value, n int) string {
	sampleN := 3
	if n < sampleN {
		sampleN = n
	}
	samples := make([]string, sampleN)
	for i := 0; i < sampleN; i++ {
		samples[i] = fmt.Sprintf("%.3f", toFloat(rv.Index(i)))
	}
	return fmt.Sprintf("[Embedding: dim=%d, sample=[%s, ...]]", n, joinComma(samples))
}

func toFloat(v reflect.Value) float64 {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint())
	default:
		return 0
	}
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

func (s *Sanitizer) sanitizeMap(rv reflect.Value, depth int) any {
	if depth >= s.cfg.MaxDepth {
		return depthExceeded(mapKeyNames(rv))
	}
	out := make(map[string]any, rv.Len())
	for _, k := range rv.MapKeys() {
		ks := fmt.Sprint(k.Interface())
		out[ks] = s.sanitize(rv.MapIndex(k).Interface(), ks, depth+1)
	}
	return out
}

func (s *Sanitizer) sanitizeStruct(rv reflect.Value, depth int) any {
	t := rv.Type()
	if depth >= s.cfg.MaxDepth {
		names := make([]string, 0, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			if t.Field(i).IsExported() {
				names = append(names, t.Field(i).Name)
			}
		}
		return depthExceeded(names)
	}
	out := make(map[string]any, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		out[f.Name] = s.sanitize(rv.Field(i).Interface(), f.Name, depth+1)
	}
	return out
}

func mapKeyNames(rv reflect.Value) []string {
	keys := make([]string, 0, rv.Len())
	for _, k := range rv.MapKeys() {
		keys = append(keys, fmt.Sprint(k.Interface()))
	}
	sort.Strings(keys)
	return keys
}

func depthExceeded(keys []string) map[string]any {
	return map[string]any{
		"__keys__": keys,
		"__depth__": "max depth exceeded",
	}
}

// sanitizedError is the {name, message, stack} shape spec.md §4.10
// requires for logged errors. Go errors don't carry a captured stack
// trace the way a thrown exception does, so stack is left empty rather
// than fabricated.
type sanitizedError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Stack   string `json:"stack"`
}

func sanitizeError(err error) sanitizedError {
	return sanitizedError{
		Name:    fmt.Sprintf("%T", err),
		Message: err.Error(),
	}
}
