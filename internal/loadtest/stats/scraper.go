package stats

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Server metric names read by the scraper.
const (
	metricConnections = "suddenconnect_connections_total"
	metricQueueSize   = "suddenconnect_queue_size"
	metricActivePairs = "suddenconnect_active_pairs"
	metricMatches     = "suddenconnect_matches_total"
	metricTimeouts    = "suddenconnect_queue_timeouts_total"
	metricMatchWait   = "suddenconnect_match_wait_seconds"
	metricMatchScore  = "suddenconnect_match_score"
)

// Snapshot is the server state at one scrape. Counters with labels are
// summed over all series.
type Snapshot struct {
	At          time.Time
	Connections float64
	QueueSize   float64
	ActivePairs float64
	Matches     float64
	Timeouts    float64
	WaitSum     float64
	WaitCount   float64
	ScoreSum    float64
	ScoreCount  float64
}

// Scraper periodically reads the server's Prometheus endpoint during a load
// test.
type Scraper struct {
	metricsURL string
	interval   time.Duration
	client     *http.Client

	mu        sync.Mutex
	snapshots []Snapshot

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScraper creates a Scraper for metricsURL.
func NewScraper(metricsURL string, interval time.Duration) *Scraper {
	return &Scraper{
		metricsURL: metricsURL,
		interval:   interval,
		client:     &http.Client{Timeout: 5 * time.Second},
		done:       make(chan struct{}),
	}
}

// Start scrapes once immediately and then every interval until ctx ends or
// Stop is called. A final scrape runs on the way out.
func (s *Scraper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.scrapeOnce()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.scrapeOnce()
				return
			case <-ticker.C:
				s.scrapeOnce()
			}
		}
	}()
}

// Stop ends scraping and waits for the final scrape.
func (s *Scraper) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

// Snapshots returns a copy of everything scraped so far.
func (s *Scraper) Snapshots() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Snapshot(nil), s.snapshots...)
}

func (s *Scraper) scrapeOnce() {
	snap, err := s.Fetch()
	if err != nil {
		// The server may not be up yet.
		return
	}
	s.mu.Lock()
	s.snapshots = append(s.snapshots, snap)
	s.mu.Unlock()
}

// Fetch reads the metrics endpoint once.
func (s *Scraper) Fetch() (Snapshot, error) {
	resp, err := s.client.Get(s.metricsURL)
	if err != nil {
		return Snapshot{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("stats: scrape %s: %s", s.metricsURL, resp.Status)
	}

	snap := Snapshot{At: time.Now()}
	dec := expfmt.NewDecoder(resp.Body, expfmt.ResponseFormat(resp.Header))
	for {
		var mf dto.MetricFamily
		if err := dec.Decode(&mf); err != nil {
			if errors.Is(err, io.EOF) {
				return snap, nil
			}
			return snap, fmt.Errorf("stats: decode metrics: %w", err)
		}
		snap.apply(&mf)
	}
}

func (snap *Snapshot) apply(mf *dto.MetricFamily) {
	for _, m := range mf.GetMetric() {
		switch mf.GetName() {
		case metricConnections:
			snap.Connections = m.GetGauge().GetValue()
		case metricQueueSize:
			snap.QueueSize = m.GetGauge().GetValue()
		case metricActivePairs:
			snap.ActivePairs = m.GetGauge().GetValue()
		case metricMatches:
			snap.Matches += m.GetCounter().GetValue()
		case metricTimeouts:
			snap.Timeouts += m.GetCounter().GetValue()
		case metricMatchWait:
			snap.WaitSum += m.GetHistogram().GetSampleSum()
			snap.WaitCount += float64(m.GetHistogram().GetSampleCount())
		case metricMatchScore:
			snap.ScoreSum += m.GetHistogram().GetSampleSum()
			snap.ScoreCount += float64(m.GetHistogram().GetSampleCount())
		}
	}
}

// Report writes initial, final, delta and peak values of the server gauges
// and the averages of the histograms over the test.
func (s *Scraper) Report(w io.Writer) {
	snaps := s.Snapshots()
	if len(snaps) == 0 {
		fmt.Fprintln(w, "\n--- Server Metrics (no data collected) ---")
		return
	}
	first, last := snaps[0], snaps[len(snaps)-1]

	fmt.Fprintln(w, "\n--- Server Metrics (Prometheus) ---")
	fmt.Fprintf(w, "  Scrape count:  %d snapshots over %s\n",
		len(snaps), last.At.Sub(first.At).Round(time.Second))

	rows := []struct {
		label string
		value func(Snapshot) float64
	}{
		{"Connections", func(s Snapshot) float64 { return s.Connections }},
		{"Queue Size", func(s Snapshot) float64 { return s.QueueSize }},
		{"Active Pairs", func(s Snapshot) float64 { return s.ActivePairs }},
		{"Matches", func(s Snapshot) float64 { return s.Matches }},
		{"Timeouts", func(s Snapshot) float64 { return s.Timeouts }},
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-16s %10s %10s %10s %10s\n", "Metric", "Initial", "Final", "Delta", "Peak")
	for _, r := range rows {
		initial, final := r.value(first), r.value(last)
		fmt.Fprintf(w, "  %-16s %10.0f %10.0f %10.0f %10.0f\n",
			r.label, initial, final, final-initial, Peak(snaps, r.value))
	}

	fmt.Fprintln(w)
	printAverage(w, "Match Wait (s)", last.WaitSum-first.WaitSum, last.WaitCount-first.WaitCount)
	printAverage(w, "Match Score", last.ScoreSum-first.ScoreSum, last.ScoreCount-first.ScoreCount)
}

func printAverage(w io.Writer, label string, sum, count float64) {
	if count <= 0 {
		fmt.Fprintf(w, "  %-16s avg: N/A  (no observations)\n", label)
		return
	}
	fmt.Fprintf(w, "  %-16s avg: %.4f  (%.0f observations)\n", label, sum/count, count)
}

// Peak returns the largest value of the series across snapshots.
func Peak(snaps []Snapshot, value func(Snapshot) float64) float64 {
	peak := math.Inf(-1)
	for _, s := range snaps {
		if v := value(s); v > peak {
			peak = v
		}
	}
	return peak
}
