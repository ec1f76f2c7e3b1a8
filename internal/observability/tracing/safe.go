package tracing

import (
	"errors"
	"regexp"

	"go.opentelemetry.io/otel/attribute"
)

var sensitiveKeyPattern = regexp.MustCompile(`(?i)(token|secret|password|credential|authorization|code_verifier)`)

// SafeAttributes drops attributes whose keys suggest credential material.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	safe := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if sensitiveKeyPattern.MatchString(string(attr.Key)) {
			continue
		}
		safe = append(safe, attr)
	}
	return safe
}

// SafeError redacts errors whose text looks like credential material.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	if sensitiveKeyPattern.MatchString(err.Error()) {
		return errors.New("redacted error")
	}
	return err
}
