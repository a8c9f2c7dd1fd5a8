package sinks

import (
	"context"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/autoplay-crawler/internal/progress"
)

// PrometheusSink exports session and item counters.
type PrometheusSink struct {
	sessionsStarted   prometheus.Counter
	sessionsCompleted *prometheus.CounterVec
	items             *prometheus.CounterVec
	adChecks          prometheus.Counter
	adSkips           prometheus.Counter
	itemWait          prometheus.Histogram
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autoplay_sessions_started_total",
			Help: "Crawl sessions started.",
		}),
		sessionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoplay_sessions_completed_total",
			Help: "Crawl sessions finished, partitioned by result.",
		}, []string{"result"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoplay_items_total",
			Help: "Items that passed the readiness gate, partitioned by enrichment outcome.",
		}, []string{"enriched"}),
		adChecks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autoplay_ad_checks_total",
			Help: "Times the player reported an ad while waiting for content.",
		}),
		adSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autoplay_ad_skips_total",
			Help: "Skip-ad controls clicked.",
		}),
		itemWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autoplay_item_wait_seconds",
			Help:    "Time from advance to genuine playback.",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		}),
	}
	for _, c := range []prometheus.Collector{
		s.sessionsStarted,
		s.sessionsCompleted,
		s.items,
		s.adChecks,
		s.adSkips,
		s.itemWait,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageSessionStart:
			s.sessionsStarted.Inc()
		case progress.StageSessionDone:
			s.sessionsCompleted.WithLabelValues("success").Inc()
		case progress.StageSessionError:
			s.sessionsCompleted.WithLabelValues("error").Inc()
		case progress.StageItemReady:
			s.items.WithLabelValues(strconv.FormatBool(evt.Enriched)).Inc()
			s.adChecks.Add(float64(evt.AdChecks))
			s.adSkips.Add(float64(evt.AdSkips))
			if evt.Dur > 0 {
				s.itemWait.Observe(evt.Dur.Seconds())
			}
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
