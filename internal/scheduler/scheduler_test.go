package scheduler

import (
	"testing"

	"smartfolio/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestNewParsesPushSources(t *testing.T) {
	s := New(nil, 60, 300, "portsummary, VOLUME ,NOPE,")
	assert.Equal(t, []domain.SourceType{domain.SourcePortSummary, domain.SourceVolume}, s.pushSources)
}

func TestNewDefaultsPushSources(t *testing.T) {
	s := New(nil, 60, 300, "")
	assert.Equal(t, []domain.SourceType{domain.SourcePortSummary}, s.pushSources)
}

func TestBusyGuardSkipsOverlappingRuns(t *testing.T) {
	s := New(nil, 60, 300, "")

	assert.True(t, s.monitorBusy.CompareAndSwap(false, true), "空闲时可以进入")
	assert.False(t, s.monitorBusy.CompareAndSwap(false, true), "在跑时拒绝重入")
	s.monitorBusy.Store(false)
	assert.True(t, s.monitorBusy.CompareAndSwap(false, true))
}
