// Package metrics exposes the counters the teacher's hand-rolled
// serverudp.Metrics/Snapshot used to track (bytes sent, segments emitted,
// retransmissions, active transfers) as real Prometheus collectors, scoped
// to a private registry per Server/Client instance so tests don't collide
// on the global default registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Server aggregates server-side counters (§4.5, §8).
type Server struct {
	Registry *prometheus.Registry

	BytesSent       prometheus.Counter
	SymbolsSent     prometheus.Counter
	RequestsHandled *prometheus.CounterVec // labeled by command: LIST, META, GET (a GET-META counts under META and GET)
	HashNotFound    prometheus.Counter
	ActiveTransfers prometheus.Gauge
}

// NewServer constructs a Server metrics bundle registered against a fresh
// registry.
func NewServer() *Server {
	reg := prometheus.NewRegistry()
	s := &Server{
		Registry: reg,
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hamtransfer_server_bytes_sent_total",
			Help: "Total symbol bytes emitted in DataPDUs, excluding the 4-byte tag/ESI prefix.",
		}),
		SymbolsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hamtransfer_server_symbols_sent_total",
			Help: "Total fountain-encoded symbols emitted across all GETs.",
		}),
		RequestsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hamtransfer_server_requests_total",
			Help: "Requests handled, by command.",
		}, []string{"command"}),
		HashNotFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hamtransfer_server_hash_not_found_total",
			Help: "GET/META requests for a hash absent from the directory index.",
		}),
		ActiveTransfers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hamtransfer_server_active_transfers",
			Help: "In-flight GET emissions (at most 1: the server loop is serialized).",
		}),
	}
	reg.MustRegister(s.BytesSent, s.SymbolsSent, s.RequestsHandled, s.HashNotFound, s.ActiveTransfers)
	return s
}

// Client aggregates client-side counters (§4.6, §8).
type Client struct {
	Registry *prometheus.Registry

	BytesReceived   prometheus.Counter
	SymbolsReceived prometheus.Counter
	Resends         prometheus.Counter
	Timeouts        prometheus.Counter
}

// NewClient constructs a Client metrics bundle registered against a fresh
// registry.
func NewClient() *Client {
	reg := prometheus.NewRegistry()
	c := &Client{
		Registry: reg,
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hamtransfer_client_bytes_received_total",
			Help: "Total symbol payload bytes received for the active transfer.",
		}),
		SymbolsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hamtransfer_client_symbols_received_total",
			Help: "Total DataPDUs accepted into the decoder (duplicates included).",
		}),
		Resends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hamtransfer_client_resends_total",
			Help: "GET resends triggered by a per-frame timeout.",
		}),
		Timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hamtransfer_client_timeouts_total",
			Help: "Per-frame receive timeouts observed during RECEIVING.",
		}),
	}
	reg.MustRegister(c.BytesReceived, c.SymbolsReceived, c.Resends, c.Timeouts)
	return c
}
