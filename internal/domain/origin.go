package domain

import "strings"

// Origin identifies the kind of business entity a workflow governs.
type Origin string

const (
	// OriginMovement governs movement headers.
	OriginMovement Origin = "movement"
	// OriginMovementItem governs movement line items.
	OriginMovementItem Origin = "movement_item"
)

// NormalizeOrigin coerces arbitrary origin strings into canonical form.
func NormalizeOrigin(input string) Origin {
	return Origin(strings.ToLower(strings.TrimSpace(input)))
}

// KnownOrigin reports whether the origin is a registered entity kind.
// Registries may extend the set at wiring time; these are the built-ins.
func KnownOrigin(input string) bool {
	switch NormalizeOrigin(input) {
	case OriginMovement, OriginMovementItem:
		return true
	default:
		return false
	}
}
