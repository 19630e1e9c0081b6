package bandwidth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestDirection() *Direction {
	return &Direction{gatewayID: "gw-1", logger: nil}
}

func TestObserve_FirstCallOnlyRecordsBaseline(t *testing.T) {
	d := newTestDirection()
	next, topUp := d.observe(1<<30, defaultPeerTimeoutCheck)
	assert.False(t, topUp)
	assert.Equal(t, defaultPeerTimeoutCheck, next)
}

func TestObserve_ZeroRateAssumesRecentTopUp(t *testing.T) {
	d := newTestDirection()
	d.observe(1<<30, defaultPeerTimeoutCheck)
	next, topUp := d.observe(1<<30, defaultPeerTimeoutCheck) // unchanged -> rate 0
	assert.False(t, topUp)
	assert.Equal(t, defaultPeerTimeoutCheck, next)
}

func TestObserve_LowBandwidthTriggersImmediateTopUp(t *testing.T) {
	d := newTestDirection()
	d.observe(600*1024*1024, defaultPeerTimeoutCheck)
	_, topUp := d.observe(400*1024*1024, defaultPeerTimeoutCheck)
	assert.True(t, topUp, "current below 500 MiB must trigger top-up regardless of rate")
}

func TestObserve_FewChecksRemainingTriggersImmediateTopUp(t *testing.T) {
	d := newTestDirection()
	// Drain fast: depletion rate implies fewer than 10 checks remain.
	d.observe(1<<30, defaultPeerTimeoutCheck)
	_, topUp := d.observe(1<<30-50*1024*1024*1024/100, defaultPeerTimeoutCheck)
	assert.True(t, topUp)
}

func TestObserve_HealthyRateCapsNextPeriod(t *testing.T) {
	d := newTestDirection()
	d.observe(10<<30, defaultPeerTimeoutCheck) // 10 GiB baseline
	next, topUp := d.observe(10<<30-1024*1024, defaultPeerTimeoutCheck) // tiny drain, long runway
	assert.False(t, topUp)
	assert.GreaterOrEqual(t, next, defaultPeerTimeoutCheck)
	assert.LessOrEqual(t, next, defaultPeerTimeoutCheck*maxPeriodMultiplier)
}

func TestDirectionLabel(t *testing.T) {
	assert.Equal(t, "entry", directionLabel(0))
}
