package metrics

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("repository", "docs"),
		attribute.String("user_id", "456"),
		attribute.String("grant_type", "authorization_code"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "repository" && attrs[1].Key != "repository" {
		t.Fatalf("expected repository to be retained")
	}
	if attrs[0].Key != "grant_type" && attrs[1].Key != "grant_type" {
		t.Fatalf("expected grant_type to be retained")
	}
}
