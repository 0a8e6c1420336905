package runtime

import (
	"strings"

	"github.com/goliatone/go-slug"
	"github.com/google/uuid"
)

// PermissionKey derives the authorization key guarding one transition:
// origin, optional context scope, then the transition key. Enforcement
// belongs to the surrounding application layer; the engine only derives
// the key.
func PermissionKey(origin string, contextKind *string, contextID *uuid.UUID, transitionKey string) string {
	parts := []string{"workflow", normalizePart(origin)}
	if contextKind != nil && strings.TrimSpace(*contextKind) != "" {
		parts = append(parts, normalizePart(*contextKind))
		if contextID != nil {
			parts = append(parts, contextID.String())
		}
	}
	parts = append(parts, normalizePart(transitionKey))
	return strings.Join(parts, ":")
}

func normalizePart(value string) string {
	trimmed := strings.TrimSpace(value)
	if normalized, err := slug.Normalize(trimmed); err == nil && normalized != "" {
		return normalized
	}
	return strings.ToLower(trimmed)
}
