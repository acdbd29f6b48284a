package client

import (
	"github.com/krew-solutions/whizbang-go/coordinator"
	"github.com/krew-solutions/whizbang-go/session/identitymap"
)

// CheckpointCache is a read-your-writes cache of the last PerspectiveOutcome
// this client reported for a (stream, perspective) pair, so host code that
// just flushed a checkpoint doesn't need to round-trip to
// wh_perspective_checkpoint to see its own write. Grounded on the teacher's
// session/identitymap package, reused unchanged — spec.md §10.1 calls this
// out explicitly as still needing a concrete home in this module.
type CheckpointCache struct {
	m *identitymap.IdentityMap
}

func newCheckpointCache(size int) *CheckpointCache {
	return &CheckpointCache{m: identitymap.New(size, identitymap.Serializable)}
}

type checkpointKey struct {
	identitymap.IdentityKeyBase[coordinator.PerspectiveOutcome]
	streamID string
	name     string
}

// Record stores the outcome of the most recent checkpoint flush for its
// (stream, perspective) pair.
func (c *CheckpointCache) Record(outcome coordinator.PerspectiveOutcome) {
	key := checkpointKey{streamID: outcome.StreamId.String(), name: outcome.PerspectiveName}
	identitymap.Add(c.m, key, outcome)
}

// Lookup returns the last outcome recorded for (streamID, name), if any.
func (c *CheckpointCache) Lookup(streamID, name string) (coordinator.PerspectiveOutcome, bool) {
	key := checkpointKey{streamID: streamID, name: name}
	val, err := identitymap.Get(c.m, key)
	if err != nil {
		return coordinator.PerspectiveOutcome{}, false
	}
	return val, true
}
