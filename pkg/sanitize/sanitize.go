// Package sanitize keeps secrets out of log output. A process-wide registry
// of sensitive literals and patterns backs Sanitize/SanitizeAny, and
// WrapLogger installs a slog handler that redacts every logged string.
package sanitize

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
)

// Redacted replaces every sensitive match.
const Redacted = "[REDACTED]"

// Placeholders for values that cannot be rendered.
const (
	circularPlaceholder = "[Circular]"
	functionPlaceholder = "[Function]"
)

// minSecretLength guards against registering strings so short that redaction
// would mangle ordinary output.
const minSecretLength = 4

// Sanitizer is a registry of sensitive literals and regex patterns.
// Thread-safe; the zero value is not usable, use New or the package default.
type Sanitizer struct {
	mu       sync.RWMutex
	literals []string
	patterns []*regexp.Regexp
}

// New creates an empty sanitizer.
func New() *Sanitizer {
	return &Sanitizer{}
}

var defaultSanitizer = New()

// Default returns the process-wide sanitizer instance.
func Default() *Sanitizer { return defaultSanitizer }

// RegisterSecret adds a literal sensitive string. Too-short values are
// ignored.
func (s *Sanitizer) RegisterSecret(secret string) {
	if len(secret) < minSecretLength {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.literals {
		if existing == secret {
			return
		}
	}
	s.literals = append(s.literals, secret)
}

// RegisterPattern adds a regex whose matches are redacted.
func (s *Sanitizer) RegisterPattern(pattern *regexp.Regexp) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns = append(s.patterns, pattern)
}

// Sanitize replaces every registered literal and pattern match in text with
// the redaction marker.
func (s *Sanitizer) Sanitize(text string) string {
	if text == "" {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, lit := range s.literals {
		text = strings.ReplaceAll(text, lit, Redacted)
	}
	for _, re := range s.patterns {
		text = re.ReplaceAllString(text, Redacted)
	}
	return text
}

// SanitizeAny walks an arbitrary value depth-first and returns a copy with
// every string sanitized. Cycles are replaced with "[Circular]", functions
// with "[Function]"; nil values pass through unchanged.
func (s *Sanitizer) SanitizeAny(value any) any {
	return s.sanitizeValue(reflect.ValueOf(value), make(map[uintptr]bool))
}

func (s *Sanitizer) sanitizeValue(v reflect.Value, visited map[uintptr]bool) any {
	if !v.IsValid() {
		return nil
	}

	switch v.Kind() {
	case reflect.String:
		return s.Sanitize(v.String())

	case reflect.Func:
		return functionPlaceholder

	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return s.sanitizeValue(v.Elem(), visited)

	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		ptr := v.Pointer()
		if visited[ptr] {
			return circularPlaceholder
		}
		visited[ptr] = true
		defer delete(visited, ptr)
		return s.sanitizeValue(v.Elem(), visited)

	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		ptr := v.Pointer()
		if visited[ptr] {
			return circularPlaceholder
		}
		visited[ptr] = true
		defer delete(visited, ptr)
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			key := fmt.Sprintf("%v", iter.Key().Interface())
			out[s.Sanitize(key)] = s.sanitizeValue(iter.Value(), visited)
		}
		return out

	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		ptr := v.Pointer()
		if visited[ptr] {
			return circularPlaceholder
		}
		visited[ptr] = true
		defer delete(visited, ptr)
		return s.sanitizeSequence(v, visited)

	case reflect.Array:
		return s.sanitizeSequence(v, visited)

	case reflect.Struct:
		out := make(map[string]any, v.NumField())
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			out[t.Field(i).Name] = s.sanitizeValue(v.Field(i), visited)
		}
		return out

	default:
		// Numbers, booleans, channels and the like carry no text to redact.
		if v.CanInterface() {
			return v.Interface()
		}
		return nil
	}
}

func (s *Sanitizer) sanitizeSequence(v reflect.Value, visited map[uintptr]bool) []any {
	out := make([]any, v.Len())
	for i := 0; i < v.Len(); i++ {
		out[i] = s.sanitizeValue(v.Index(i), visited)
	}
	return out
}

// Package-level helpers on the default sanitizer.

// RegisterSecret adds a literal to the process-wide registry.
func RegisterSecret(secret string) { defaultSanitizer.RegisterSecret(secret) }

// RegisterPattern adds a pattern to the process-wide registry.
func RegisterPattern(pattern *regexp.Regexp) { defaultSanitizer.RegisterPattern(pattern) }

// Sanitize redacts with the process-wide registry.
func Sanitize(text string) string { return defaultSanitizer.Sanitize(text) }

// SanitizeAny walks with the process-wide registry.
func SanitizeAny(value any) any { return defaultSanitizer.SanitizeAny(value) }
