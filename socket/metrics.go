package socket

import "github.com/prometheus/client_golang/prometheus"

// metricVecs are registered once per Registry and shared by every
// Socket metrics are enabled for on that Registry, each Socket
// identified by its "socket" label, one vec set per Registry since a
// Context may run many sockets.
type metricVecs struct {
	pipesAttached  *prometheus.GaugeVec
	framesIn       *prometheus.CounterVec
	framesOut      *prometheus.CounterVec
	wouldBlockHits *prometheus.CounterVec
}

// registerOrReuse registers c on reg, or if an equivalent collector is
// already registered (a second socket sharing the same Registry), returns
// the existing one instead.
func registerOrReuse[C prometheus.Collector](reg *prometheus.Registry, c C) C {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func newMetricVecs(reg *prometheus.Registry) *metricVecs {
	v := &metricVecs{
		pipesAttached: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sockfix_pipes_attached",
			Help: "Number of pipes currently attached to a socket.",
		}, []string{"socket"}),
		framesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sockfix_frames_in_total",
			Help: "Total frames received by a socket.",
		}, []string{"socket"}),
		framesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sockfix_frames_out_total",
			Help: "Total frames sent by a socket.",
		}, []string{"socket"}),
		wouldBlockHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sockfix_would_block_total",
			Help: "Total Send/Recv calls that returned ErrWouldBlock.",
		}, []string{"socket"}),
	}
	v.pipesAttached = registerOrReuse(reg, v.pipesAttached)
	v.framesIn = registerOrReuse(reg, v.framesIn)
	v.framesOut = registerOrReuse(reg, v.framesOut)
	v.wouldBlockHits = registerOrReuse(reg, v.wouldBlockHits)
	return v
}

// Metrics is a Socket's handle onto its labeled series in a shared
// Registry. Nil-safe: every method is a no-op when m is nil, so a
// Socket created without Options.Registry just skips instrumentation.
type Metrics struct {
	socket string
	vecs   *metricVecs
}

func newMetrics(reg *prometheus.Registry, socketID string) *Metrics {
	if reg == nil {
		return nil
	}
	return &Metrics{socket: socketID, vecs: newMetricVecs(reg)}
}

func (m *Metrics) setPipes(n int) {
	if m == nil {
		return
	}
	m.vecs.pipesAttached.WithLabelValues(m.socket).Set(float64(n))
}

func (m *Metrics) incFramesIn() {
	if m == nil {
		return
	}
	m.vecs.framesIn.WithLabelValues(m.socket).Inc()
}

func (m *Metrics) incFramesOut() {
	if m == nil {
		return
	}
	m.vecs.framesOut.WithLabelValues(m.socket).Inc()
}

func (m *Metrics) incWouldBlock() {
	if m == nil {
		return
	}
	m.vecs.wouldBlockHits.WithLabelValues(m.socket).Inc()
}
