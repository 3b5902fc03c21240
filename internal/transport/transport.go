// Package transport defines the two external collaborators spec.md leaves
// as interfaces only — the Router (radio channel I/O) and the Frame Codec
// (link-layer framing) — plus concrete adapters good enough to run the
// protocol end to end over a real UDP socket or an in-process loopback, the
// way the teacher's serverudp/clientudp packages talked directly to a
// net.PacketConn. Neither adapter implements AX.25 framing or FCS; they
// exist so cmd/hamserver and cmd/hamclient are runnable without a real
// router/parser service, matching §6's "external collaborators, interfaces
// only" scope.
package transport

import (
	"context"
	"fmt"
	"net"
)

// Frame is one opaque on-air byte sequence, post-serialization.
type Frame struct {
	Payload []byte
}

// UI carries a UI-frame's protocol ID and payload (§6, §9 glossary).
type UI struct {
	PID     byte
	Payload []byte
}

// Packet is the link-layer-agnostic envelope the Frame Codec serializes and
// parses (§6).
type Packet struct {
	Src, Dst string
	SetFCS   bool
	UI       UI
}

// Router is the radio-channel collaborator (§6).
type Router interface {
	// Send transmits one link-layer frame.
	Send(ctx context.Context, f Frame) error
	// StreamFrames returns a channel of all inbound frames; closed when ctx
	// is cancelled or the underlying transport is torn down.
	StreamFrames(ctx context.Context) (<-chan Frame, error)
}

// FrameCodec is the link-layer framing collaborator (§6).
type FrameCodec interface {
	Serialize(p Packet) (Frame, error)
	Parse(f Frame, checkFCS bool) (Packet, error)
}

// SimpleCodec is a minimal, non-AX.25 Frame Codec: src/dst as length-prefixed
// strings, then the PID byte, then the payload. It exists purely so the
// local adapters below can round-trip a Packet; it makes no claim to match
// any real amateur-radio framing and carries no FCS.
type SimpleCodec struct{}

// Serialize implements FrameCodec.
func (SimpleCodec) Serialize(p Packet) (Frame, error) {
	if len(p.Src) > 255 || len(p.Dst) > 255 {
		return Frame{}, fmt.Errorf("transport: callsign too long")
	}
	buf := make([]byte, 0, 2+len(p.Src)+len(p.Dst)+1+len(p.UI.Payload))
	buf = append(buf, byte(len(p.Src)))
	buf = append(buf, p.Src...)
	buf = append(buf, byte(len(p.Dst)))
	buf = append(buf, p.Dst...)
	buf = append(buf, p.UI.PID)
	buf = append(buf, p.UI.Payload...)
	return Frame{Payload: buf}, nil
}

// Parse implements FrameCodec. checkFCS is accepted for interface
// conformance but unused: SimpleCodec carries no FCS to verify.
func (SimpleCodec) Parse(f Frame, checkFCS bool) (Packet, error) {
	b := f.Payload
	if len(b) < 1 {
		return Packet{}, fmt.Errorf("transport: frame too short")
	}
	srcLen := int(b[0])
	b = b[1:]
	if len(b) < srcLen+1 {
		return Packet{}, fmt.Errorf("transport: frame truncated at src")
	}
	src := string(b[:srcLen])
	b = b[srcLen:]
	dstLen := int(b[0])
	b = b[1:]
	if len(b) < dstLen+1 {
		return Packet{}, fmt.Errorf("transport: frame truncated at dst")
	}
	dst := string(b[:dstLen])
	b = b[dstLen:]
	pid := b[0]
	payload := append([]byte(nil), b[1:]...)
	return Packet{Src: src, Dst: dst, UI: UI{PID: pid, Payload: payload}}, nil
}

// LoopbackRouter is an in-process Router backed by a buffered channel,
// suitable for unit tests exercising C5/C6 without a real socket.
type LoopbackRouter struct {
	inbound chan Frame
}

// NewLoopbackRouter returns a Router whose StreamFrames replays whatever is
// handed to Send, optionally through a peer (see Pair).
func NewLoopbackRouter(capacity int) *LoopbackRouter {
	return &LoopbackRouter{inbound: make(chan Frame, capacity)}
}

// Send implements Router by delivering directly to this router's own
// inbound queue (single-endpoint echo; use Pair for two endpoints).
func (r *LoopbackRouter) Send(ctx context.Context, f Frame) error {
	select {
	case r.inbound <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliver injects a frame as if received from the channel, used by a paired
// peer's Send.
func (r *LoopbackRouter) Deliver(ctx context.Context, f Frame) error {
	select {
	case r.inbound <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StreamFrames implements Router.
func (r *LoopbackRouter) StreamFrames(ctx context.Context) (<-chan Frame, error) {
	out := make(chan Frame)
	go func() {
		defer close(out)
		for {
			select {
			case f, ok := <-r.inbound:
				if !ok {
					return
				}
				select {
				case out <- f:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// PairedRouter wraps a LoopbackRouter so that Send delivers to a peer's
// queue instead of its own, modeling two endpoints of one broadcast medium.
type PairedRouter struct {
	self *LoopbackRouter
	peer *LoopbackRouter
}

// Pair builds two PairedRouters that deliver into each other, for
// client/server integration tests without any socket.
func Pair(capacity int) (a, b *PairedRouter) {
	ra := NewLoopbackRouter(capacity)
	rb := NewLoopbackRouter(capacity)
	return &PairedRouter{self: ra, peer: rb}, &PairedRouter{self: rb, peer: ra}
}

// Send implements Router by delivering to the peer's inbound queue.
func (p *PairedRouter) Send(ctx context.Context, f Frame) error {
	return p.peer.Deliver(ctx, f)
}

// StreamFrames implements Router.
func (p *PairedRouter) StreamFrames(ctx context.Context) (<-chan Frame, error) {
	return p.self.StreamFrames(ctx)
}

// UDPRouter is a real-socket Router for local runnability: Send writes a
// datagram to a fixed peer address, StreamFrames reads datagrams off the
// bound socket. It has no notion of broadcast beyond whatever the OS/UDP
// address allows (e.g. a broadcast or multicast address), mirroring how the
// teacher's serverudp/clientudp talked to net.PacketConn directly.
type UDPRouter struct {
	conn *net.UDPConn
	peer *net.UDPAddr
}

// NewUDPRouter binds a UDP socket at listenAddr and targets sends at
// peerAddr. Pass an empty listenAddr ("") to pick an ephemeral port.
func NewUDPRouter(listenAddr, peerAddr string) (*UDPRouter, error) {
	laddr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve listen addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen: %w", err)
	}
	var peer *net.UDPAddr
	if peerAddr != "" {
		peer, err = net.ResolveUDPAddr("udp", peerAddr)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("transport: resolve peer addr: %w", err)
		}
	}
	return &UDPRouter{conn: conn, peer: peer}, nil
}

// Send implements Router.
func (u *UDPRouter) Send(ctx context.Context, f Frame) error {
	if u.peer == nil {
		return fmt.Errorf("transport: no peer address configured")
	}
	_, err := u.conn.WriteToUDP(f.Payload, u.peer)
	return err
}

// SetPeer updates the destination address sends are targeted at.
func (u *UDPRouter) SetPeer(addr *net.UDPAddr) { u.peer = addr }

// LocalAddr exposes the bound socket's address.
func (u *UDPRouter) LocalAddr() net.Addr { return u.conn.LocalAddr() }

const udpReadBufferSize = 65535

// StreamFrames implements Router, reading datagrams until ctx is cancelled.
func (u *UDPRouter) StreamFrames(ctx context.Context) (<-chan Frame, error) {
	out := make(chan Frame)
	go func() {
		defer close(out)
		buf := make([]byte, udpReadBufferSize)
		for {
			if dl, ok := ctx.Deadline(); ok {
				u.conn.SetReadDeadline(dl)
			}
			n, _, err := u.conn.ReadFromUDP(buf)
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					continue
				}
				return
			}
			payload := make([]byte, n)
			copy(payload, buf[:n])
			select {
			case out <- Frame{Payload: payload}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close releases the underlying socket.
func (u *UDPRouter) Close() error { return u.conn.Close() }
