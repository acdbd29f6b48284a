package partition_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krew-solutions/whizbang-go/ids"
	"github.com/krew-solutions/whizbang-go/partition"
)

func TestOfIsStableAcrossCalls(t *testing.T) {
	s, err := ids.StreamIdFromString("550e8400-e29b-41d4-a716-446655440000")
	require.NoError(t, err)

	first := partition.Of(s, 10000)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, partition.Of(s, 10000))
	}
}

func TestOfIsWithinRange(t *testing.T) {
	for i := 0; i < 500; i++ {
		s := ids.NewStreamId()
		p := partition.Of(s, 10)
		assert.GreaterOrEqual(t, p, 0)
		assert.Less(t, p, 10)
	}
}

func TestOfDistributesRoughlyUniformly(t *testing.T) {
	const count = 16
	buckets := make([]int, count)
	for i := 0; i < 16000; i++ {
		p := partition.Of(ids.NewStreamId(), count)
		buckets[p]++
	}
	for _, c := range buckets {
		assert.Greater(t, c, 500, "bucket should receive a reasonable share of uniformly random streams")
	}
}

func TestOfMessageHasNoStreamOrderingImplication(t *testing.T) {
	m1 := ids.NewMessageId()
	m2 := ids.NewMessageId()
	p1 := partition.OfMessage(m1, 10000)
	p2 := partition.OfMessage(m2, 10000)
	assert.GreaterOrEqual(t, p1, 0)
	assert.GreaterOrEqual(t, p2, 0)
}
