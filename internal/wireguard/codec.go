package wireguard

import (
	"encoding/binary"
	"io"

	"github.com/fxamacker/cbor/v2"

	nymerrors "go.nymvpn.network/core/internal/errors"
)

// outgoingFrame is the per-version wire envelope a frameBuilder produces:
// spec §4.2 versions the authenticator protocol as V2-V5 on the wire shape
// of every message, not just during version negotiation.
type outgoingFrame struct {
	Version Version `cbor:"version"`
	Kind    string  `cbor:"kind"`
	Payload any     `cbor:"payload"`
}

// incomingFrame mirrors outgoingFrame for decoding; Payload stays raw
// until the caller knows which concrete type to decode it into.
type incomingFrame struct {
	Version Version         `cbor:"version"`
	Kind    string          `cbor:"kind"`
	Payload cbor.RawMessage `cbor:"payload"`
}

// frameBuilder wraps a payload in the envelope a gateway running that
// authenticator version expects, and reports whether that version
// supports the TopUp message (V2 predates top-ups; see v2.go).
type frameBuilder interface {
	version() Version
	supportsTopUp() bool
	wrap(kind string, payload any) outgoingFrame
}

func builderFor(v Version) frameBuilder {
	switch v {
	case V2:
		return v2Builder{}
	case V3:
		return v3Builder{}
	case V4:
		return v4Builder{}
	case V5:
		return v5Builder{}
	default:
		return nil
	}
}

// writeFrame writes a length-prefixed CBOR-encoded message wrapped in b's
// version envelope, the wire shape named in spec §6.
func writeFrame(w io.Writer, b frameBuilder, kind string, v any) error {
	frame := b.wrap(kind, v)
	body, err := cbor.Marshal(frame)
	if err != nil {
		return nymerrors.Wrap(err, nymerrors.KindInternal, "encode authenticator message")
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return nymerrors.Wrap(err, nymerrors.KindUnavailable, "write authenticator frame length")
	}
	if _, err := w.Write(body); err != nil {
		return nymerrors.Wrap(err, nymerrors.KindUnavailable, "write authenticator frame body")
	}
	return nil
}

// readFrame reads one length-prefixed CBOR envelope and decodes its
// payload into v. The envelope's own Version/Kind fields are not
// validated against the caller's expectations here: a gateway answering
// Initial with Registered directly (already-registered) is a normal,
// version-independent short-circuit handled by the caller.
func readFrame(r io.Reader, v any) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nymerrors.Wrap(err, nymerrors.KindUnavailable, "read authenticator frame length")
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nymerrors.Wrap(err, nymerrors.KindUnavailable, "read authenticator frame body")
	}
	var frame incomingFrame
	if err := cbor.Unmarshal(body, &frame); err != nil {
		return nymerrors.Wrap(err, nymerrors.KindInternal, "decode authenticator frame envelope")
	}
	if err := cbor.Unmarshal(frame.Payload, v); err != nil {
		return nymerrors.Wrap(err, nymerrors.KindInternal, "decode authenticator message")
	}
	return nil
}
