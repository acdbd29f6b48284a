package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageProcessingStatus_HasRequiresEveryBit(t *testing.T) {
	s := StatusStored | StatusPublished
	assert.True(t, s.Has(StatusStored))
	assert.True(t, s.Has(StatusPublished))
	assert.True(t, s.Has(StatusStored|StatusPublished))
	assert.False(t, s.Has(StatusEventStored))
	assert.False(t, s.Has(StatusStored|StatusEventStored))
}

func TestMessageProcessingStatus_MonotoneOrAccumulates(t *testing.T) {
	var s MessageProcessingStatus
	s |= StatusStored
	s |= StatusHandlerInvoked
	assert.True(t, s.Has(StatusStored))
	assert.True(t, s.Has(StatusHandlerInvoked))
	assert.False(t, s.Has(StatusPublished))

	// setting a bit that is already set is a no-op
	before := s
	s |= StatusStored
	assert.Equal(t, before, s)
}

func TestConfigFlags_Has(t *testing.T) {
	var f ConfigFlags
	assert.False(t, f.has(FlagDebugMode))
	f |= FlagDebugMode
	assert.True(t, f.has(FlagDebugMode))
}

func TestDefaultConfig_MatchesDocumentedDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 300, cfg.LeaseSeconds)
	assert.Equal(t, 600, cfg.StaleThresholdSeconds)
	assert.Equal(t, 10000, cfg.PartitionCount)
	assert.False(t, cfg.debugMode())
	assert.False(t, cfg.MaxPartitionsPerInstance.IsSome())
}
