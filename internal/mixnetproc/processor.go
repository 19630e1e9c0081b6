// Package mixnetproc implements the Mixnet Processor of spec §4.9: bundles
// outbound IP packets read off a tun device into sphinx-sized chunks on a
// flush timer, and demultiplexes inbound mixnet traffic back onto the tun
// device, matching ICMP beacon probes against in-flight connectivity
// checks. Grounded on grimm-is-flywall/internal/services/dhcp/relay.go's
// read-loop-plus-goroutine-per-direction shape, generalized from UDP
// packet relay to tun-device packet bundling.
package mixnetproc

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	nymerrors "go.nymvpn.network/core/internal/errors"
	"go.nymvpn.network/core/internal/logging"
)

const (
	// bufferTimeout matches nym-vpn-lib's mixnet processor bundling
	// window (spec §4.9).
	bufferTimeout = 500 * time.Millisecond
	maxBundlePackets = 4
	maxBundleBytes   = 1500 // sphinx payload size limit, conservatively
)

// MixnetSender is the bundling codec's outbound sink: one Sphinx-sized
// bundle per Send call. GeneralLaneQueueLength reports how many packets
// are already idling in the mixnet client's own General transmission
// lane (its Poisson-process send queue), the congestion signal the
// buffer-timeout flush checks before topping up (spec §4.9).
type MixnetSender interface {
	Send(ctx context.Context, bundle []byte) error
	GeneralLaneQueueLength() int
}

// TunDevice is the minimal tun.Device surface the processor pumps.
type TunDevice interface {
	io.ReadWriter
}

// BeaconWaiter is notified of inbound ICMP echo replies so connectivity
// checks elsewhere in the daemon can match them by (id, seq).
type BeaconWaiter interface {
	MatchEchoReply(id, seq int) bool
}

// Processor pumps packets between a tun device and the mixnet client in
// both directions.
type Processor struct {
	tun    TunDevice
	sender MixnetSender
	beacon BeaconWaiter
	logger *logging.Logger

	mu     sync.Mutex
	queue  bytes.Buffer
	queued int
}

func New(tun TunDevice, sender MixnetSender, beacon BeaconWaiter, logger *logging.Logger) *Processor {
	if logger == nil {
		logger = logging.Default().WithComponent("mixnetproc")
	}
	return &Processor{tun: tun, sender: sender, beacon: beacon, logger: logger}
}

// Run pumps outbound (tun -> mixnet) and inbound (mixnet -> tun) traffic
// until ctx is cancelled, then returns once both pumps have stopped.
func (p *Processor) Run(ctx context.Context, inbound <-chan []byte) error {
	var wg sync.WaitGroup
	wg.Add(2)

	var outErr, inErr error
	go func() {
		defer wg.Done()
		outErr = p.pumpOutbound(ctx)
	}()
	go func() {
		defer wg.Done()
		inErr = p.pumpInbound(ctx, inbound)
	}()

	wg.Wait()
	if outErr != nil {
		return outErr
	}
	return inErr
}

// pumpOutbound reads packets off the tun device, bundles them, and
// flushes on the earlier of maxBundlePackets/maxBundleBytes or
// bufferTimeout. The flush-skip rule: if the mixnet client's own General
// lane already has packets queued for transmission when the timer fires,
// skip this flush; the queued packets go out at the next timer expiry
// whose check passes, or earlier if the size cap is reached, so a
// trickle of packets doesn't fragment into
// undersized bundles while the mixnet client is still working through a
// backlog.
func (p *Processor) pumpOutbound(ctx context.Context) error {
	packets := make(chan []byte, 16)
	readErrCh := make(chan error, 1)

	go func() {
		buf := make([]byte, 65535)
		for {
			n, err := p.tun.Read(buf)
			if err != nil {
				readErrCh <- err
				return
			}
			pkt := make([]byte, n)
			copy(pkt, buf[:n])
			select {
			case packets <- pkt:
			case <-ctx.Done():
				return
			}
		}
	}()

	timer := time.NewTimer(bufferTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErrCh:
			return nymerrors.Wrap(err, nymerrors.KindUnavailable, "read from tun device")
		case pkt := <-packets:
			p.mu.Lock()
			p.queue.Write(pkt)
			p.queued++
			full := p.queued >= maxBundlePackets || p.queue.Len() >= maxBundleBytes
			p.mu.Unlock()
			if full {
				if err := p.flush(ctx); err != nil {
					return err
				}
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(bufferTimeout)
			}
		case <-timer.C:
			skip := p.sender.GeneralLaneQueueLength() > 0
			if !skip {
				if err := p.flush(ctx); err != nil {
					return err
				}
			}
			timer.Reset(bufferTimeout)
		}
	}
}

func (p *Processor) flush(ctx context.Context) error {
	p.mu.Lock()
	if p.queued == 0 {
		p.mu.Unlock()
		return nil
	}
	bundle := make([]byte, p.queue.Len())
	copy(bundle, p.queue.Bytes())
	p.queue.Reset()
	p.queued = 0
	p.mu.Unlock()

	if err := p.sender.Send(ctx, bundle); err != nil {
		return nymerrors.Wrap(err, nymerrors.KindUnavailable, "send mixnet bundle")
	}
	return nil
}

// pumpInbound writes bundles arriving from the mixnet client back onto
// the tun device, intercepting ICMP echo replies destined for an active
// connectivity-check beacon instead of forwarding them.
func (p *Processor) pumpInbound(ctx context.Context, inbound <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case bundle, ok := <-inbound:
			if !ok {
				return nil
			}
			for _, pkt := range splitBundle(bundle) {
				if p.beacon != nil && p.isMatchedBeaconReply(pkt) {
					continue
				}
				if _, err := p.tun.Write(pkt); err != nil {
					return nymerrors.Wrap(err, nymerrors.KindUnavailable, "write to tun device")
				}
			}
		}
	}
}

// isMatchedBeaconReply parses pkt as an IPv4 ICMP echo reply and reports
// whether it matched (and thus was consumed by) an in-flight
// connectivity check.
func (p *Processor) isMatchedBeaconReply(pkt []byte) bool {
	header, err := ipv4.ParseHeader(pkt)
	if err != nil || header.Protocol != 1 { // 1 = ICMP
		return false
	}
	if len(pkt) < header.Len {
		return false
	}
	msg, err := icmp.ParseMessage(1, pkt[header.Len:])
	if err != nil {
		return false
	}
	echo, ok := msg.Body.(*icmp.Echo)
	if !ok {
		return false
	}
	return p.beacon.MatchEchoReply(echo.ID, echo.Seq)
}

// splitBundle reverses the outbound bundling: each packet in a bundle is
// a complete IPv4/IPv6 datagram, so its own header's total-length field
// delimits it.
func splitBundle(bundle []byte) [][]byte {
	var packets [][]byte
	for len(bundle) > 0 {
		n := packetLength(bundle)
		if n <= 0 || n > len(bundle) {
			break
		}
		packets = append(packets, bundle[:n])
		bundle = bundle[n:]
	}
	return packets
}

// packetLength returns the IPv4 total-length or IPv6 payload-length (+40
// byte header) of the packet starting at b, or 0 if it cannot be parsed.
func packetLength(b []byte) int {
	if len(b) < 1 {
		return 0
	}
	switch b[0] >> 4 {
	case 4:
		if len(b) < 4 {
			return 0
		}
		return int(b[2])<<8 | int(b[3])
	case 6:
		if len(b) < 6 {
			return 0
		}
		return 40 + (int(b[4])<<8 | int(b[5]))
	default:
		return 0
	}
}
