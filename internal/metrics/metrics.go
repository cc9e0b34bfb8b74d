// Package metrics exposes VMAccel's operational counters as Prometheus
// collectors, reached through the Observer interface so that manager and
// compute-context code never imports prometheus directly.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer is called at the points in the manager/compute-context
// pipeline where an operation's outcome and latency are known. A
// pluggable Observer keeps those packages free of any particular
// metrics backend.
type Observer interface {
	ObserveAlloc(units uint64, latency time.Duration, success bool)
	ObserveFree(units uint64, success bool)
	ObserveUpload(bytes uint64, latency time.Duration, success bool)
	ObserveDownload(bytes uint64, latency time.Duration, success bool)
	ObserveDispatch(latency time.Duration, success bool)
	ObserveQueueDepth(contextID int64, depth int)
}

// NoOp discards every observation. Used when a caller constructs a
// Manager/ComputeContext without metrics wiring.
type NoOp struct{}

func (NoOp) ObserveAlloc(uint64, time.Duration, bool)    {}
func (NoOp) ObserveFree(uint64, bool)                    {}
func (NoOp) ObserveUpload(uint64, time.Duration, bool)   {}
func (NoOp) ObserveDownload(uint64, time.Duration, bool) {}
func (NoOp) ObserveDispatch(time.Duration, bool)         {}
func (NoOp) ObserveQueueDepth(int64, int)                {}

// latencyBuckets spans 10us to ~42s (1e-5 * 4^11), matching the order of magnitude of
// a dispatch/fence round-trip described in spec §5.
var latencyBuckets = prometheus.ExponentialBuckets(1e-5, 4, 12)

// Prometheus is the production Observer, registering a small family of
// counters/histograms/gauges on the supplied registerer.
type Prometheus struct {
	allocOps     *prometheus.CounterVec
	allocUnits   prometheus.Counter
	allocLatency prometheus.Histogram
	freeOps      *prometheus.CounterVec
	freeUnits    prometheus.Counter
	uploadOps    *prometheus.CounterVec
	uploadBytes  prometheus.Counter
	uploadLat    prometheus.Histogram
	downloadOps  *prometheus.CounterVec
	downloadByt  prometheus.Counter
	downloadLat  prometheus.Histogram
	dispatchOps  *prometheus.CounterVec
	dispatchLat  prometheus.Histogram
	queueDepth   *prometheus.GaugeVec
}

// NewPrometheus constructs and registers a Prometheus-backed Observer.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Prometheus{
		allocOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vmaccel",
			Name:      "alloc_ops_total",
			Help:      "Allocator.Alloc calls by outcome.",
		}, []string{"result"}),
		allocUnits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vmaccel", Name: "alloc_units_total",
			Help: "Units successfully allocated.",
		}),
		allocLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vmaccel", Name: "alloc_latency_seconds",
			Help: "Allocator.Alloc latency.", Buckets: latencyBuckets,
		}),
		freeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vmaccel", Name: "free_ops_total",
			Help: "Allocator.Free calls by outcome.",
		}, []string{"result"}),
		freeUnits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vmaccel", Name: "free_units_total",
			Help: "Units freed.",
		}),
		uploadOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vmaccel", Name: "upload_ops_total",
			Help: "Surface upload calls by outcome.",
		}, []string{"result"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vmaccel", Name: "upload_bytes_total",
			Help: "Bytes uploaded to surfaces.",
		}),
		uploadLat: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vmaccel", Name: "upload_latency_seconds",
			Help: "Surface upload latency.", Buckets: latencyBuckets,
		}),
		downloadOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vmaccel", Name: "download_ops_total",
			Help: "Surface download calls by outcome.",
		}, []string{"result"}),
		downloadByt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vmaccel", Name: "download_bytes_total",
			Help: "Bytes downloaded from surfaces.",
		}),
		downloadLat: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vmaccel", Name: "download_latency_seconds",
			Help: "Surface download latency.", Buckets: latencyBuckets,
		}),
		dispatchOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vmaccel", Name: "dispatch_ops_total",
			Help: "ComputeContext.Dispatch calls by outcome.",
		}, []string{"result"}),
		dispatchLat: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vmaccel", Name: "dispatch_latency_seconds",
			Help: "Dispatch latency including fence wait.", Buckets: latencyBuckets,
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vmaccel", Name: "queue_depth",
			Help: "Pending commands per compute context queue.",
		}, []string{"context"}),
	}
	reg.MustRegister(p.allocOps, p.allocUnits, p.allocLatency, p.freeOps, p.freeUnits,
		p.uploadOps, p.uploadBytes, p.uploadLat, p.downloadOps, p.downloadByt, p.downloadLat,
		p.dispatchOps, p.dispatchLat, p.queueDepth)
	return p
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func (p *Prometheus) ObserveAlloc(units uint64, latency time.Duration, success bool) {
	p.allocOps.WithLabelValues(result(success)).Inc()
	p.allocLatency.Observe(latency.Seconds())
	if success {
		p.allocUnits.Add(float64(units))
	}
}

func (p *Prometheus) ObserveFree(units uint64, success bool) {
	p.freeOps.WithLabelValues(result(success)).Inc()
	if success {
		p.freeUnits.Add(float64(units))
	}
}

func (p *Prometheus) ObserveUpload(bytes uint64, latency time.Duration, success bool) {
	p.uploadOps.WithLabelValues(result(success)).Inc()
	p.uploadLat.Observe(latency.Seconds())
	if success {
		p.uploadBytes.Add(float64(bytes))
	}
}

func (p *Prometheus) ObserveDownload(bytes uint64, latency time.Duration, success bool) {
	p.downloadOps.WithLabelValues(result(success)).Inc()
	p.downloadLat.Observe(latency.Seconds())
	if success {
		p.downloadByt.Add(float64(bytes))
	}
}

func (p *Prometheus) ObserveDispatch(latency time.Duration, success bool) {
	p.dispatchOps.WithLabelValues(result(success)).Inc()
	p.dispatchLat.Observe(latency.Seconds())
}

func (p *Prometheus) ObserveQueueDepth(contextID int64, depth int) {
	p.queueDepth.WithLabelValues(strconv.FormatInt(contextID, 10)).Set(float64(depth))
}

var _ Observer = (*NoOp)(nil)
var _ Observer = (*Prometheus)(nil)
