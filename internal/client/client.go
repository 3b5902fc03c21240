// Package client implements the Client Engine (C6): list, meta, and
// download operations driven over a shared inbound frame stream, with the
// download operation running the REQUESTING/RECEIVING/VERIFY state machine
// of §4.6.
package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ThomasHabets/hamtransfer/internal/codec"
	"github.com/ThomasHabets/hamtransfer/internal/command"
	"github.com/ThomasHabets/hamtransfer/internal/config"
	"github.com/ThomasHabets/hamtransfer/internal/framer"
	"github.com/ThomasHabets/hamtransfer/internal/herr"
	"github.com/ThomasHabets/hamtransfer/internal/logging"
	"github.com/ThomasHabets/hamtransfer/internal/metrics"
	"github.com/ThomasHabets/hamtransfer/internal/transport"
)

// Engine is the client-side protocol state: a Router/Frame Codec pair, the
// inbound frame dispatcher (§5), and the operation tunables of §6.
type Engine struct {
	router transport.Router
	codec  transport.FrameCodec
	source string // this client's callsign (Packet.Src on every send)
	dst    string // server's callsign (Packet.Dst on every send), default "CQ"

	timeout  time.Duration
	dropRate float32

	log     *logging.Logger
	metrics *metrics.Client

	rng     *rand.Rand
	inbound chan transport.Packet
	g       *errgroup.Group
}

// New constructs a client Engine. dst is the server callsign to address
// requests to (§6 --dst, default "CQ"); timeout and dropRate are the
// per-frame receive deadline and the test-hook simulated loss probability
// (§4.6, §6 --timeout/--packet_loss).
func New(router transport.Router, fc transport.FrameCodec, source, dst string, timeout time.Duration, dropRate float32, log *logging.Logger, m *metrics.Client) *Engine {
	return &Engine{
		router:   router,
		codec:    fc,
		source:   source,
		dst:      dst,
		timeout:  timeout,
		dropRate: dropRate,
		log:      log,
		metrics:  m,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		inbound:  make(chan transport.Packet, config.InboundQueueCapacity),
	}
}

// Start launches the inbound-frame dispatcher (§5): one producer goroutine
// reads the Router's stream and demultiplexes UI frames into the bounded
// queue consumed by List/Meta/Download. Call once before any operation.
func (e *Engine) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	frames, err := e.router.StreamFrames(gctx)
	if err != nil {
		return &herr.TransportFailure{Op: "stream_frames", Err: err}
	}
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case f, ok := <-frames:
				if !ok {
					return nil
				}
				if e.dropRate > 0 && e.rng.Float32() < e.dropRate {
					continue
				}
				pkt, err := e.codec.Parse(f, true)
				if err != nil {
					continue
				}
				if pkt.UI.PID != 0xF0 {
					continue
				}
				select {
				case e.inbound <- pkt:
				case <-gctx.Done():
					return nil
				}
			}
		}
	})
	e.g = g
	return nil
}

// Wait blocks until the dispatcher goroutine exits (normally on ctx
// cancellation) and returns its error, if any.
func (e *Engine) Wait() error {
	if e.g == nil {
		return nil
	}
	return e.g.Wait()
}

func (e *Engine) send(ctx context.Context, payload string) error {
	pkt := transport.Packet{
		Src:    e.source,
		Dst:    e.dst,
		SetFCS: true,
		UI:     transport.UI{PID: 0xF0, Payload: []byte(payload)},
	}
	frame, err := e.codec.Serialize(pkt)
	if err != nil {
		return &herr.TransportFailure{Op: "serialize", Err: err}
	}
	if err := e.router.Send(ctx, frame); err != nil {
		return &herr.TransportFailure{Op: "send", Err: err}
	}
	return nil
}

func (e *Engine) randomTag() uint16 { return uint16(e.rng.Intn(1 << 16)) }

// List issues LIST and returns the directory listing, or nil for an empty
// directory. There is no timeout-driven retry (§4.6: "list is considered
// optional").
func (e *Engine) List(ctx context.Context) ([]command.ListEntry, error) {
	tag := e.randomTag()
	if err := e.send(ctx, command.FormatList(tag)); err != nil {
		return nil, err
	}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case pkt := <-e.inbound:
			entries, sentinelOnly, ok := command.ParseListPayload(string(pkt.UI.Payload), tag)
			if !ok {
				continue
			}
			if sentinelOnly {
				return nil, nil
			}
			return entries, nil
		}
	}
}

// Meta issues META and returns (K, size) for hash, retrying on the same
// per-frame timeout as download (§4.6: "implementations may add one").
func (e *Engine) Meta(ctx context.Context, hash string) (command.MetaReply, error) {
	if err := e.send(ctx, command.FormatMeta(hash)); err != nil {
		return command.MetaReply{}, err
	}
	timer := time.NewTimer(e.timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return command.MetaReply{}, ctx.Err()
		case <-timer.C:
			if err := e.send(ctx, command.FormatMeta(hash)); err != nil {
				return command.MetaReply{}, err
			}
			timer.Reset(e.timeout)
		case pkt := <-e.inbound:
			reply, ok := command.ParseMetaReply(string(pkt.UI.Payload), hash)
			if !ok {
				continue
			}
			return reply, nil
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// Download drives the REQUESTING/RECEIVING/VERIFY state machine of §4.6 to
// completion, returning the verified file bytes. The initial request is
// GET-META (§4.4 GM, resolved as META-then-GET per the SUPPLEMENTED
// FEATURES in the expanded design) so K is known before any symbol needs
// interpreting and the zero-size case (§4.6) can be short-circuited without
// ever entering RECEIVING.
func (e *Engine) Download(ctx context.Context, hash string) ([]byte, error) {
	tag := e.randomTag()
	if err := e.send(ctx, command.FormatGetMeta(tag, 0, 0, hash)); err != nil {
		return nil, err
	}

	var (
		haveMeta bool
		meta     command.MetaReply
		dec      *codec.Decoder
	)
	bytesReceived := 0

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timer.C:
			e.metrics.Timeouts.Inc()
			e.metrics.Resends.Inc()
			var resend string
			if haveMeta {
				resend = command.FormatGet(tag, bytesReceived, hash)
			} else {
				resend = command.FormatGetMeta(tag, 0, bytesReceived, hash)
			}
			if err := e.send(ctx, resend); err != nil {
				return nil, err
			}
			resetTimer(timer, e.timeout)

		case pkt := <-e.inbound:
			payload := pkt.UI.Payload

			if !haveMeta {
				if reply, ok := command.ParseMetaReply(string(payload), hash); ok {
					meta = reply
					haveMeta = true
					if meta.K == 0 {
						return []byte{}, nil
					}
					d, err := codec.NewDecoder(meta.K)
					if err != nil {
						return nil, fmt.Errorf("client: %w", err)
					}
					dec = d
					resetTimer(timer, e.timeout)
					continue
				}
			}

			f, err := framer.Unmarshal(payload)
			if err != nil || f.Tag != tag {
				continue
			}
			if dec == nil {
				// A data symbol arrived before our META reply; without K
				// there's nowhere to put it (§4.6 requires K to size the
				// decoder). Drop it; the resend cycle will recover it.
				continue
			}

			resetTimer(timer, e.timeout)
			bytesReceived += len(f.Payload)
			e.metrics.BytesReceived.Add(float64(len(f.Payload)))
			e.metrics.SymbolsReceived.Inc()
			dec.Push(f.Payload, uint32(f.ESI))

			limit := meta.K * dec.ShardSize()
			if limit > 0 && bytesReceived > limit*2 && !dec.FullySpecified() {
				return nil, &herr.MalformedStream{Received: bytesReceived, Limit: limit}
			}

			if dec.FullySpecified() {
				return e.verify(dec, meta, hash)
			}
		}
	}
}

func (e *Engine) verify(dec *codec.Decoder, meta command.MetaReply, hash string) ([]byte, error) {
	padded, err := dec.Decode(meta.K * dec.ShardSize())
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	size := meta.Size
	if int64(len(padded)) < size {
		return nil, &herr.ProtocolViolation{Detail: "decoded block shorter than reported size"}
	}
	out := padded[:size]
	sum := sha256.Sum256(out)
	got := hex.EncodeToString(sum[:])
	if got != hash {
		return nil, &herr.ChecksumMismatch{Expected: hash, Actual: got}
	}
	return out, nil
}
