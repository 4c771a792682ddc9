package heymac

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors the LNK machine updates as
// it runs.
type Metrics struct {
	FramesRx       prometheus.Counter
	FramesTx       prometheus.Counter
	CodecErrors    *prometheus.CounterVec
	Neighbors      prometheus.Gauge
	DialogsActive  prometheus.GaugeFunc
	DialogOutcomes *prometheus.CounterVec
}

// NewMetrics constructs and registers a Metrics bundle against reg. reg
// may be prometheus.DefaultRegisterer, or a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer, dialogsActiveFn func() float64) *Metrics {
	m := &Metrics{
		FramesRx: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heymac_frames_rx_total",
			Help: "Total number of Heymac frames successfully parsed from the PHY.",
		}),
		FramesTx: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heymac_frames_tx_total",
			Help: "Total number of Heymac frames handed to the PHY for transmission.",
		}),
		CodecErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "heymac_codec_errors_total",
			Help: "Total number of frame or command codec errors, by error kind.",
		}, []string{"kind"}),
		Neighbors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "heymac_neighbors",
			Help: "Current number of entries in the neighbor table.",
		}),
		DialogOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "heymac_dialog_outcomes_total",
			Help: "Total number of concluded Associate dialogs, by outcome reason.",
		}, []string{"reason"}),
	}
	m.DialogsActive = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "heymac_dialogs_active",
		Help: "Current number of in-progress Associate dialogs.",
	}, dialogsActiveFn)

	reg.MustRegister(m.FramesRx, m.FramesTx, m.CodecErrors, m.Neighbors, m.DialogOutcomes, m.DialogsActive)
	return m
}
