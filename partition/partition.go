// Package partition implements the consistent-hash mapping from a stream
// identifier to a partition number described in spec.md §4.1. The function
// must be deterministic, uniform, and stable across every process and run
// — the fair-share and orphan-claim steps of the Work Coordinator procedure
// depend on every instance agreeing on it.
package partition

import (
	"hash/fnv"

	"github.com/krew-solutions/whizbang-go/ids"
)

// DefaultCount is P, the default partition-space size (spec.md §6).
const DefaultCount = 10000

// Of returns the partition number in [0, count) for a set stream id.
func Of(streamID ids.StreamId, count int) int {
	return hashInto(streamID.UUID().String(), count)
}

// OfMessage returns the partition number for a message with no stream id,
// derived from the message id so it still lands somewhere stable, without
// implying any cross-stream ordering (spec.md §4.1).
func OfMessage(messageID ids.MessageId, count int) int {
	return hashIntoBytes(messageID.SyntheticMessageStreamSeed(), count)
}

func hashInto(s string, count int) int {
	return hashIntoBytes([]byte(s), count)
}

func hashIntoBytes(b []byte, count int) int {
	if count <= 0 {
		panic("partition: count must be positive")
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	sum := h.Sum64()

	// Reduce via a second independent derivation pass to cancel FNV's known
	// low-bit clustering before taking the modulus, matching the 64-bit
	// avalanche mix used by several of the hashers in the pack.
	sum ^= sum >> 33
	sum *= 0xff51afd7ed558ccd
	sum ^= sum >> 33

	return int(sum % uint64(count))
}
