package core

import "github.com/google/uuid"

// MemoryID uniquely identifies a stored memory.
type MemoryID string

// TenantID identifies a tenant's isolated engine instance.
type TenantID string

// NewMemoryID mints a fresh random memory identifier.
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

// NewEpisodeID mints a fresh random episode identifier, shared by every
// memory grouped into the same temporal episode.
func NewEpisodeID() string {
	return uuid.New().String()
}

// ContentHash returns a stable, deduplication-friendly hash of content plus
// the cue set it was written with. It is not the memory's primary key —
// writes are never deduped (see Testable Properties, "idempotent write") —
// and the consolidator's idempotency check keys on a cluster's sorted cue
// union rather than on this hash.
func ContentHash(content string, cues []string) string {
	joined := content + "\x00"
	for _, c := range cues {
		joined += c + "\x00"
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(joined)).String()
}
