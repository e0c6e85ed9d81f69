// Package metrics exposes the node's Prometheus gauges/counters, served on
// /metrics alongside the gossip TCP listener.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChainHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "blockchain",
		Name:      "chain_height",
		Help:      "Height of the local chain tip.",
	})

	MempoolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "blockchain",
		Name:      "mempool_size",
		Help:      "Number of unconfirmed transactions held locally.",
	})

	KnownPeers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "blockchain",
		Name:      "known_peers",
		Help:      "Number of peer addresses known to this node.",
	})

	BlocksMined = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "blockchain",
		Name:      "blocks_mined_total",
		Help:      "Total blocks mined by this node.",
	})

	BlocksRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "blockchain",
		Name:      "blocks_rejected_total",
		Help:      "Total peer blocks rejected as invalid.",
	})
)

func init() {
	prometheus.MustRegister(
		ChainHeight,
		MempoolSize,
		KnownPeers,
		BlocksMined,
		BlocksRejected,
	)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
