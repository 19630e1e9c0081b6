package mixnetproc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipeTun struct {
	mu      sync.Mutex
	written [][]byte
	reads   chan []byte
}

func newPipeTun() *pipeTun {
	return &pipeTun{reads: make(chan []byte, 16)}
}

func (t *pipeTun) Read(p []byte) (int, error) {
	pkt := <-t.reads
	n := copy(p, pkt)
	return n, nil
}

func (t *pipeTun) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := make([]byte, len(p))
	copy(cp, p)
	t.written = append(t.written, cp)
	return len(p), nil
}

func (t *pipeTun) writtenPackets() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.written))
	copy(out, t.written)
	return out
}

type fakeSender struct {
	mu      sync.Mutex
	bundles [][]byte
	laneLen int
}

func (s *fakeSender) Send(_ context.Context, bundle []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundles = append(s.bundles, bundle)
	return nil
}

func (s *fakeSender) GeneralLaneQueueLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.laneLen
}

func (s *fakeSender) setLaneLength(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.laneLen = n
}

func (s *fakeSender) sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.bundles))
	copy(out, s.bundles)
	return out
}

func ipv4Packet(totalLen int) []byte {
	pkt := make([]byte, totalLen)
	pkt[0] = 0x45
	pkt[2] = byte(totalLen >> 8)
	pkt[3] = byte(totalLen)
	return pkt
}

func TestProcessor_FlushesOnTimeoutWhenQueueNonEmpty(t *testing.T) {
	tun := newPipeTun()
	sender := &fakeSender{}
	p := New(tun, sender, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx, make(chan []byte))

	tun.reads <- ipv4Packet(20)

	require.Eventually(t, func() bool {
		return len(sender.sent()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestProcessor_FlushesImmediatelyAtMaxPackets(t *testing.T) {
	tun := newPipeTun()
	sender := &fakeSender{}
	p := New(tun, sender, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx, make(chan []byte))

	for i := 0; i < maxBundlePackets; i++ {
		tun.reads <- ipv4Packet(20)
	}

	require.Eventually(t, func() bool {
		return len(sender.sent()) >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestProcessor_SkipsTimeoutFlushWhileGeneralLaneBacklogged(t *testing.T) {
	tun := newPipeTun()
	sender := &fakeSender{}
	sender.setLaneLength(1)
	p := New(tun, sender, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx, make(chan []byte))

	tun.reads <- ipv4Packet(20)

	// The buffer timeout fires well before this, and with the lane
	// backlogged the flush must be skipped rather than sending an
	// undersized bundle.
	time.Sleep(2 * bufferTimeout)
	assert.Empty(t, sender.sent())

	sender.setLaneLength(0)
	require.Eventually(t, func() bool {
		return len(sender.sent()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSplitBundle_RecoversIndividualIPv4Packets(t *testing.T) {
	a := ipv4Packet(20)
	b := ipv4Packet(30)
	bundle := append(append([]byte{}, a...), b...)

	packets := splitBundle(bundle)
	require.Len(t, packets, 2)
	assert.Len(t, packets[0], 20)
	assert.Len(t, packets[1], 30)
}

func TestProcessor_InboundWritesNonBeaconPacketsToTun(t *testing.T) {
	tun := newPipeTun()
	sender := &fakeSender{}
	p := New(tun, sender, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inbound := make(chan []byte, 1)
	go p.Run(ctx, inbound)

	pkt := ipv4Packet(20)
	inbound <- pkt

	require.Eventually(t, func() bool {
		return len(tun.writtenPackets()) == 1
	}, time.Second, 5*time.Millisecond)
}
