package core

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ringSlots is the size of the per-second ring used for the rolling
// events-per-minute estimate.
const ringSlots = 60

// Stats holds the pipeline's monotonic counters and the rolling delivery
// rate. Counters are mirrored to Prometheus so the health endpoint can
// expose them.
type Stats struct {
	total     atomic.Int64
	delivered atomic.Int64
	deduped   atomic.Int64
	filtered  atomic.Int64

	mu    sync.Mutex
	slots [ringSlots]int64
	stamp [ringSlots]int64 // unix second each slot last counted

	promTotal     prometheus.Counter
	promDelivered prometheus.Counter
	promDeduped   prometheus.Counter
	promFiltered  prometheus.Counter
	promRate      prometheus.Gauge
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	Total         int64   `json:"total"`
	Delivered     int64   `json:"delivered"`
	Deduped       int64   `json:"deduped"`
	Filtered      int64   `json:"filtered"`
	RatePerMinute float64 `json:"ratePerMinute"`
}

// NewStats creates the counter set and registers its Prometheus mirrors with
// reg (pass nil to skip registration, e.g. in tests).
func NewStats(reg prometheus.Registerer) *Stats {
	s := &Stats{
		promTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alphastream_events_total",
			Help: "Raw frames seen by the pipeline.",
		}),
		promDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alphastream_events_delivered_total",
			Help: "Events delivered to at least one topic.",
		}),
		promDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alphastream_events_deduped_total",
			Help: "Events suppressed by the dedup cache.",
		}),
		promFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alphastream_events_filtered_total",
			Help: "Events rejected by normalization or filters.",
		}),
		promRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alphastream_events_per_minute",
			Help: "Rolling delivered-events-per-minute estimate.",
		}),
	}
	if reg != nil {
		reg.MustRegister(s.promTotal, s.promDelivered, s.promDeduped, s.promFiltered, s.promRate)
	}
	return s
}

// MarkTotal counts a raw frame entering the pipeline.
func (s *Stats) MarkTotal() {
	s.total.Add(1)
	s.promTotal.Inc()
}

// MarkDelivered counts a delivered event and feeds the rate ring.
func (s *Stats) MarkDelivered() {
	s.delivered.Add(1)
	s.promDelivered.Inc()

	now := time.Now().Unix()
	idx := now % ringSlots
	s.mu.Lock()
	if s.stamp[idx] != now {
		s.stamp[idx] = now
		s.slots[idx] = 0
	}
	s.slots[idx]++
	s.mu.Unlock()
}

// MarkDeduped counts a suppressed duplicate.
func (s *Stats) MarkDeduped() {
	s.deduped.Add(1)
	s.promDeduped.Inc()
}

// MarkFiltered counts a rejected or filtered frame.
func (s *Stats) MarkFiltered() {
	s.filtered.Add(1)
	s.promFiltered.Inc()
}

// RatePerMinute sums the ring slots that fall within the last minute.
func (s *Stats) RatePerMinute() float64 {
	now := time.Now().Unix()
	var sum int64
	s.mu.Lock()
	for i := 0; i < ringSlots; i++ {
		if now-s.stamp[i] < ringSlots {
			sum += s.slots[i]
		}
	}
	s.mu.Unlock()
	return float64(sum)
}

// Snapshot returns the current counter values and re-samples the rate gauge.
func (s *Stats) Snapshot() Snapshot {
	rate := s.RatePerMinute()
	s.promRate.Set(rate)
	return Snapshot{
		Total:         s.total.Load(),
		Delivered:     s.delivered.Load(),
		Deduped:       s.deduped.Load(),
		Filtered:      s.filtered.Load(),
		RatePerMinute: rate,
	}
}
