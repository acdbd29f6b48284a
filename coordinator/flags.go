package coordinator

// MessageProcessingStatus is a bit-flag set recording everything that has
// happened to an outbox/inbox row so far. Bits only ever accumulate via
// bitwise OR (spec.md §3.1, "Monotone status" invariant) — a flush never
// clears a bit, it only sets new ones or deletes the row outright at its
// terminal transition.
type MessageProcessingStatus uint32

const (
	StatusStored        MessageProcessingStatus = 1 << 0 // 1
	StatusEventStored    MessageProcessingStatus = 1 << 1 // 2
	StatusPublished      MessageProcessingStatus = 1 << 2 // 4
	StatusHandlerInvoked MessageProcessingStatus = 1 << 3 // 8
	StatusFailed         MessageProcessingStatus = 1 << 15 // 0x8000
)

// Has reports whether every bit in want is set in s.
func (s MessageProcessingStatus) Has(want MessageProcessingStatus) bool {
	return s&want == want
}

// WorkBatchFlags annotates a single row of a returned WorkBatch with why it
// is present: newly inserted this flush, reclaimed from an expired lease,
// or running under DebugMode retention.
type WorkBatchFlags uint32

const (
	BatchFlagNewlyStored WorkBatchFlags = 1 << 0 // 1
	BatchFlagOrphaned    WorkBatchFlags = 1 << 1 // 2
	BatchFlagDebugMode   WorkBatchFlags = 1 << 2 // 4
)

// ConfigFlags mirrors spec.md §6's "flags" configuration bitset.
type ConfigFlags uint32

const (
	// FlagDebugMode retains completed rows instead of deleting them.
	FlagDebugMode ConfigFlags = 1 << 1
)

func (f ConfigFlags) has(want ConfigFlags) bool { return f&want == want }
