// Package ids provides the three identifier types the Work Coordinator
// reasons about: MessageId (time-ordered, monotonic within a process),
// StreamId and InstanceId (opaque 128-bit keys).
package ids

import (
	"crypto/rand"
	"database/sql/driver"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// MessageId is a time-ordered 128-bit identifier. Two ids minted by the same
// generator are guaranteed monotonic; ids from different hosts are ordered
// by millisecond timestamp only.
type MessageId struct {
	v ulid.ULID
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewMessageId mints a new, monotonic-within-process MessageId.
func NewMessageId() MessageId {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return MessageId{v: ulid.MustNew(ulid.Timestamp(time.Now()), entropy)}
}

// MessageIdFromString parses the canonical ULID text form.
func MessageIdFromString(s string) (MessageId, error) {
	v, err := ulid.ParseStrict(s)
	if err != nil {
		return MessageId{}, fmt.Errorf("ids: invalid message id %q: %w", s, err)
	}
	return MessageId{v: v}, nil
}

// SyntheticMessageStreamSeed derives a value suitable for partitioning
// messages that carry no StreamId. It is NOT a StreamId — it only needs to
// be deterministic per message so the message lands in a stable partition
// and is never cross-stream-ordered (spec.md §4.1).
func (m MessageId) SyntheticMessageStreamSeed() []byte {
	b := m.v
	return b[:]
}

func (m MessageId) String() string          { return m.v.String() }
func (m MessageId) Bytes() []byte           { return m.v[:] }
func (m MessageId) IsZero() bool            { return m.v == (ulid.ULID{}) }
func (m MessageId) Time() time.Time         { return ulid.Time(m.v.Time()) }
func (m MessageId) Compare(other MessageId) int { return m.v.Compare(other.v) }

func (m MessageId) Value() (driver.Value, error) { return m.v.String(), nil }

func (m *MessageId) Scan(src any) error {
	switch v := src.(type) {
	case string:
		parsed, err := ulid.ParseStrict(v)
		if err != nil {
			return err
		}
		m.v = parsed
		return nil
	case []byte:
		parsed, err := ulid.ParseStrict(string(v))
		if err != nil {
			return err
		}
		m.v = parsed
		return nil
	default:
		return fmt.Errorf("ids: cannot scan %T into MessageId", src)
	}
}

// StreamId groups messages into an ordered sequence with its own event
// store history. The zero value represents "unset" (∅ in spec.md §3.1).
type StreamId struct {
	v    uuid.UUID
	isSet bool
}

// NewStreamId mints a fresh random StreamId.
func NewStreamId() StreamId {
	return StreamId{v: uuid.New(), isSet: true}
}

// StreamIdFromUUID wraps an existing uuid.UUID as a StreamId.
func StreamIdFromUUID(u uuid.UUID) StreamId {
	return StreamId{v: u, isSet: true}
}

// StreamIdFromString parses the canonical UUID text form.
func StreamIdFromString(s string) (StreamId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return StreamId{}, fmt.Errorf("ids: invalid stream id %q: %w", s, err)
	}
	return StreamId{v: u, isSet: true}, nil
}

// NoStream is the explicit "∅" stream id.
func NoStream() StreamId { return StreamId{} }

func (s StreamId) IsSet() bool   { return s.isSet }
func (s StreamId) String() string {
	if !s.isSet {
		return ""
	}
	return s.v.String()
}
func (s StreamId) UUID() uuid.UUID { return s.v }

func (s StreamId) Equal(other StreamId) bool {
	return s.isSet == other.isSet && s.v == other.v
}

func (s StreamId) Value() (driver.Value, error) {
	if !s.isSet {
		return nil, nil
	}
	return s.v.String(), nil
}

func (s *StreamId) Scan(src any) error {
	if src == nil {
		*s = StreamId{}
		return nil
	}
	switch v := src.(type) {
	case string:
		u, err := uuid.Parse(v)
		if err != nil {
			return err
		}
		*s = StreamId{v: u, isSet: true}
		return nil
	case []byte:
		u, err := uuid.Parse(string(v))
		if err != nil {
			return err
		}
		*s = StreamId{v: u, isSet: true}
		return nil
	default:
		return fmt.Errorf("ids: cannot scan %T into StreamId", src)
	}
}

// InstanceId is the per-process identity generated once at startup.
type InstanceId struct {
	v uuid.UUID
}

// NewInstanceId mints a fresh random InstanceId. Call once per process.
func NewInstanceId() InstanceId {
	return InstanceId{v: uuid.New()}
}

func InstanceIdFromString(s string) (InstanceId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return InstanceId{}, fmt.Errorf("ids: invalid instance id %q: %w", s, err)
	}
	return InstanceId{v: u}, nil
}

func (i InstanceId) String() string      { return i.v.String() }
func (i InstanceId) UUID() uuid.UUID     { return i.v }
func (i InstanceId) Equal(o InstanceId) bool { return i.v == o.v }

func (i InstanceId) Value() (driver.Value, error) { return i.v.String(), nil }

func (i *InstanceId) Scan(src any) error {
	switch v := src.(type) {
	case string:
		u, err := uuid.Parse(v)
		if err != nil {
			return err
		}
		i.v = u
		return nil
	case []byte:
		u, err := uuid.Parse(string(v))
		if err != nil {
			return err
		}
		i.v = u
		return nil
	default:
		return fmt.Errorf("ids: cannot scan %T into InstanceId", src)
	}
}
