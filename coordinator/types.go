package coordinator

import (
	"time"

	"github.com/krew-solutions/whizbang-go/ids"
	"github.com/krew-solutions/whizbang-go/option"
)

// Identity is the caller's self-description, upserted into the
// ServiceInstance registry on every call (spec.md §4.3 step 1).
type Identity struct {
	InstanceId  ids.InstanceId
	ServiceName string
	HostName    string
	ProcessId   int
	Metadata    option.Option[map[string]any]
}

// Completion reports that a previously leased row reached (at least) the
// given status bits, per spec.md §4.3 step 5.
type Completion struct {
	MessageId ids.MessageId
	Status    MessageProcessingStatus
}

// Failure reports a terminal or transient error for a previously leased
// row, per spec.md §4.3 step 6.
type Failure struct {
	MessageId       ids.MessageId
	CompletedStatus MessageProcessingStatus
	Error           string
}

// ReceptorOutcome updates a ReceptorProcessingLog row (spec.md §4.3 step 7).
type ReceptorOutcome struct {
	EventId      ids.MessageId
	ReceptorName string
	Status       string
	Error        string // empty on success
}

// PerspectiveOutcome updates a PerspectiveCheckpoint row (spec.md §4.3 step 7).
type PerspectiveOutcome struct {
	StreamId        ids.StreamId
	PerspectiveName string
	LastEventId     ids.MessageId
	Status          string
	Error           string // empty on success
}

// NewOutboxMessage is a message to be stored via spec.md §4.3 step 9.
type NewOutboxMessage struct {
	MessageId   ids.MessageId
	Destination string
	MessageType string
	Payload     []byte
	Metadata    []byte
	StreamId    ids.StreamId
	IsEvent     bool
	// AggregateId/AggregateType/EventType are only consulted when IsEvent is
	// true, to populate the EventStore row (spec.md §3.2).
	AggregateId   string
	AggregateType string
	EventType     string
}

// NewInboxMessage is a message to be ingested idempotently via spec.md §4.3
// step 10.
type NewInboxMessage struct {
	MessageId     ids.MessageId
	HandlerName   string
	MessageType   string
	Payload       []byte
	Metadata      []byte
	StreamId      ids.StreamId
	IsEvent       bool
	AggregateId   string
	AggregateType string
	EventType     string
}

// Completions bundles every completion list a single flush may report.
type Completions struct {
	Outbox      []Completion
	Inbox       []Completion
	Receptor    []ReceptorOutcome
	Perspective []PerspectiveOutcome
}

// Failures bundles every failure list a single flush may report.
type Failures struct {
	Outbox      []Failure
	Inbox       []Failure
	Receptor    []ReceptorOutcome
	Perspective []PerspectiveOutcome
}

// NewMessages bundles newly produced messages a single flush may submit.
type NewMessages struct {
	Outbox []NewOutboxMessage
	Inbox  []NewInboxMessage
}

// LeaseRenewals names rows whose lease should be extended without
// relinquishing ownership (spec.md §4.3 step 8).
type LeaseRenewals struct {
	Outbox []ids.MessageId
	Inbox  []ids.MessageId
}

// Config carries the per-call tuning knobs of spec.md §6.
type Config struct {
	LeaseSeconds             int
	StaleThresholdSeconds    int
	Flags                    ConfigFlags
	PartitionCount           int
	MaxPartitionsPerInstance option.Option[int]

	// DebugRetention bounds how long DebugMode-retained terminal rows live
	// before CollectDebugRows will delete them. Zero means keep forever.
	// spec.md leaves this policy to host configuration (§9 open question).
	DebugRetention time.Duration
}

// DefaultConfig matches the defaults spec.md §6 documents.
func DefaultConfig() Config {
	return Config{
		LeaseSeconds:          300,
		StaleThresholdSeconds: 600,
		PartitionCount:        10000,
	}
}

func (c Config) leaseDuration() time.Duration {
	return time.Duration(c.LeaseSeconds) * time.Second
}

func (c Config) staleThreshold() time.Duration {
	return time.Duration(c.StaleThresholdSeconds) * time.Second
}

func (c Config) debugMode() bool {
	return c.Flags.has(FlagDebugMode)
}

// WorkItem is a single row of a returned WorkBatch (spec.md §4.2).
type WorkItem struct {
	MessageId     ids.MessageId
	Destination   string // outbox destination, or inbox handler name
	MessageType   string
	Payload       []byte
	Metadata      []byte
	StreamId      ids.StreamId
	Partition     int
	Attempts      int
	Status        MessageProcessingStatus
	BatchFlags    WorkBatchFlags
	SequenceOrder time.Time
}

// BatchStats reports the partition-rebalancing state observed during one
// ProcessWorkBatch call, for hosts that want to export it as metrics
// without re-deriving it (spec.md's Non-goals never exclude observability).
type BatchStats struct {
	LiveInstances    int
	ThisInstanceRank int
	FairShare        int
	OwnedPartitions  int
}

// WorkBatch is the ordered result of a single ProcessWorkBatch call.
type WorkBatch struct {
	OutboxWork []WorkItem
	InboxWork  []WorkItem
	Stats      BatchStats
}
