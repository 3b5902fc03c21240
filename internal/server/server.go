// Package server implements the Server Engine (C5): a single receive loop
// dispatching LIST/META/GET/GET-META requests against a Directory Index and
// a Symbol Codec, replying over a Router/Frame Codec pair (§4.5).
package server

import (
	"context"
	"math"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ThomasHabets/hamtransfer/internal/codec"
	"github.com/ThomasHabets/hamtransfer/internal/command"
	"github.com/ThomasHabets/hamtransfer/internal/config"
	"github.com/ThomasHabets/hamtransfer/internal/directory"
	"github.com/ThomasHabets/hamtransfer/internal/framer"
	"github.com/ThomasHabets/hamtransfer/internal/herr"
	"github.com/ThomasHabets/hamtransfer/internal/logging"
	"github.com/ThomasHabets/hamtransfer/internal/metrics"
	"github.com/ThomasHabets/hamtransfer/internal/transport"
	"github.com/google/uuid"
)

// pacingRate converts the §4.5 "sleep 8000*L/9600 ms between symbols"
// formula into a bytes/sec token-bucket rate: 1000*baud/bitsPerByte.
func pacingRate(bitsPerByte, baud int) rate.Limit {
	return rate.Limit(1000 * float64(baud) / float64(bitsPerByte))
}

// Engine is the server-side protocol state: an immutable Directory Index, a
// Router/Frame Codec pair, and the per-transfer codec parameters.
type Engine struct {
	dir    *directory.Index
	router transport.Router
	codec  transport.FrameCodec
	pacer  *rate.Limiter

	source     string
	packetSize int
	repair     int

	log     *logging.Logger
	metrics *metrics.Server

	rng *rand.Rand
}

// New constructs a server Engine. packetSize is L, repair is R beyond K
// (§6 --packet-size/--repair).
func New(dir *directory.Index, router transport.Router, fc transport.FrameCodec, source string, packetSize, repair int, log *logging.Logger, m *metrics.Server) *Engine {
	return &Engine{
		dir:        dir,
		router:     router,
		codec:      fc,
		source:     source,
		packetSize: packetSize,
		repair:     repair,
		log:        log,
		metrics:    m,
		pacer:      rate.NewLimiter(pacingRate(config.PacingBitsPerByte, config.PacingBaud), packetSize),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run drives the receive loop until ctx is cancelled, serializing all
// request handling (§4.5 "no internal parallelism is assumed").
func (e *Engine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.loop(gctx) })
	return g.Wait()
}

func (e *Engine) loop(ctx context.Context) error {
	frames, err := e.router.StreamFrames(ctx)
	if err != nil {
		return &herr.TransportFailure{Op: "stream_frames", Err: err}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			e.handleFrame(ctx, f)
		}
	}
}

func (e *Engine) handleFrame(ctx context.Context, f transport.Frame) {
	reqID := uuid.NewString()
	log := e.log.WithField("req", reqID)

	pkt, err := e.codec.Parse(f, true)
	if err != nil {
		log.Debug("dropping unparseable frame: %v", err)
		return
	}
	if pkt.UI.PID != 0xF0 {
		return
	}
	kind, req := command.ParseRequest(string(pkt.UI.Payload))
	switch kind {
	case command.KindList:
		e.handleList(ctx, log, pkt.Src, req.(command.ListRequest))
	case command.KindMeta:
		e.handleMeta(ctx, log, pkt.Src, req.(command.MetaRequest))
	case command.KindGet:
		e.handleGet(ctx, log, pkt.Src, req.(command.GetRequest))
	case command.KindGetMeta:
		gm := req.(command.GetMetaRequest)
		e.handleMeta(ctx, log, pkt.Src, command.MetaRequest{Hash: gm.Hash})
		e.handleGet(ctx, log, pkt.Src, command.GetRequest{Tag: gm.Tag, Existing: gm.Existing, Hash: gm.Hash})
	default:
		log.Debug("dropping unrecognized payload")
	}
}

func (e *Engine) reply(ctx context.Context, dst, payload string) error {
	pkt := transport.Packet{
		Src:    e.source,
		Dst:    dst,
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

func (e *Engine) replyData(ctx context.Context, dst string, tag, esi uint16, symbol []byte) error {
	pkt := transport.Packet{
		Src:    e.source,
		Dst:    dst,
		SetFCS: true,
		UI:     transport.UI{PID: 0xF0, Payload: framer.Marshal(tag, esi, symbol)},
	}
	frame, err := e.codec.Serialize(pkt)
	if err != nil {
		return &herr.TransportFailure{Op: "serialize", Err: err}
	}
	if err := e.router.Send(ctx, frame); err != nil {
		return &herr.TransportFailure{Op: "send", Err: err}
	}
	e.metrics.BytesSent.Add(float64(len(symbol)))
	e.metrics.SymbolsSent.Inc()
	return nil
}

func (e *Engine) handleList(ctx context.Context, log *logging.Logger, dst string, req command.ListRequest) {
	e.metrics.RequestsHandled.WithLabelValues("LIST").Inc()
	entries := e.dir.List()
	if len(entries) == 0 {
		if err := e.reply(ctx, dst, command.ListSentinel(req.Tag)); err != nil {
			log.Warn("list sentinel reply failed: %v", err)
		}
		return
	}
	lines := command.ListSentinel(req.Tag)
	for _, en := range entries {
		lines += "\n" + command.ListEntryLine(en.Hash, en.Filename)
	}
	if err := e.reply(ctx, dst, lines); err != nil {
		log.Warn("list entries reply failed: %v", err)
		return
	}
	if err := e.reply(ctx, dst, command.ListSentinel(req.Tag)); err != nil {
		log.Warn("list sentinel reply failed: %v", err)
	}
}

// symbolCount computes K = ceil(size/L), guarding the §4.6 zero-size case.
func symbolCount(size int64, packetSize int) int {
	if size <= 0 {
		return 0
	}
	return int(math.Ceil(float64(size) / float64(packetSize)))
}

func (e *Engine) handleMeta(ctx context.Context, log *logging.Logger, dst string, req command.MetaRequest) {
	e.metrics.RequestsHandled.WithLabelValues("META").Inc()
	entry, ok := e.dir.Lookup(req.Hash)
	if !ok {
		e.metrics.HashNotFound.Inc()
		log.Warn("unknown block %s", req.Hash)
		return
	}
	k := symbolCount(entry.Size, e.packetSize)
	reply := command.MetaReply{Hash: req.Hash, K: k, Size: entry.Size}
	if err := e.reply(ctx, dst, reply.String()); err != nil {
		log.Warn("meta reply failed: %v", err)
	}
}

func (e *Engine) handleGet(ctx context.Context, log *logging.Logger, dst string, req command.GetRequest) {
	e.metrics.RequestsHandled.WithLabelValues("GET").Inc()
	e.metrics.ActiveTransfers.Inc()
	defer e.metrics.ActiveTransfers.Dec()

	data, ok, err := e.dir.GetBlock(req.Hash)
	if err != nil {
		log.Warn("read failed for %s: %v", req.Hash, (&herr.IOFailure{Op: "get_block", Err: err}).Error())
		return
	}
	if !ok {
		e.metrics.HashNotFound.Inc()
		log.Warn("unknown block %s", req.Hash)
		return
	}
	if len(data) == 0 {
		// K=0: nothing to encode or emit (§4.6 zero-size guard).
		return
	}

	k := symbolCount(int64(len(data)), e.packetSize)
	padded := make([]byte, k*e.packetSize)
	copy(padded, data)

	enc, err := codec.NewEncoder(padded, k, e.repair)
	if err != nil {
		log.Warn("encoder construction failed for %s: %v", req.Hash, err)
		return
	}

	nEmit := int(math.Floor(float64(len(padded))/float64(e.packetSize)*config.OverheadFactor)) + config.OverheadConstant
	total := enc.NumSymbols()
	order := e.rng.Perm(total)
	if nEmit > total {
		nEmit = total
	}

	for i, esi := range order[:nEmit] {
		symbol, err := enc.Symbol(uint32(esi))
		if err != nil {
			log.Warn("symbol lookup failed for esi %d: %v", esi, err)
			return
		}
		if i > 0 {
			if err := e.pacer.WaitN(ctx, len(symbol)); err != nil {
				log.Warn("pacing wait failed: %v", err)
				return
			}
		}
		if err := e.replyData(ctx, dst, req.Tag, uint16(esi), symbol); err != nil {
			log.Warn("data send failed: %v", err)
			return
		}
	}
}
