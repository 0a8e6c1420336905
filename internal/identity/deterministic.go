package identity

import (
	"fmt"
	"strings"

	hashid "github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// UUID derives a deterministic UUID from a stable key using go-hashid.
//
// Callers must ensure key construction prevents cross-entity collisions (prefix by domain/type).
func UUID(key string) uuid.UUID {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return uuid.Nil
	}
	uid, err := hashid.NewUUID(trimmed, hashid.WithHashAlgorithm(hashid.SHA256), hashid.WithNormalization(true))
	if err != nil || uid == uuid.Nil {
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(trimmed))
	}
	return uid
}

// StateKey generates the opaque, immutable key for a state row. Keys are
// scoped by definition so every republish yields a fresh set.
func StateKey(definitionID uuid.UUID, ordinal int) string {
	return "st_" + compact(UUID(fmt.Sprintf("go-flows:state:%s:%d", definitionID, ordinal)))
}

// TransitionKey generates the opaque key for a transition row within one definition.
func TransitionKey(definitionID uuid.UUID, ordinal int) string {
	return "tr_" + compact(UUID(fmt.Sprintf("go-flows:transition:%s:%d", definitionID, ordinal)))
}

// ExecutionKey derives the deterministic idempotency key for a side-effect
// attempt. Re-running the same transition for the same instance position
// reproduces the same key.
func ExecutionKey(actionType string, entityID uuid.UUID, transitionKey string, definitionVersion int) string {
	return fmt.Sprintf("%s:%s:%s:v%d", strings.ToLower(strings.TrimSpace(actionType)), entityID, transitionKey, definitionVersion)
}

func compact(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")
}
