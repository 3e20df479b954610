// Package monitor exposes acquisition diagnostics over HTTP: a JSON status
// snapshot and Prometheus gauges.  It is an operator aid, not a data path;
// rows only ever go to the output stream.
package monitor

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/daqio/acquire/stream"
)

// StatusSource is anything that can report session counters; in practice a
// *stream.Session.
type StatusSource interface {
	Status() stream.Counters
}

// NewRouter builds a chi router serving GET /status (JSON counters) and
// GET /metrics (Prometheus).  The gauges read through to the source on
// each scrape.
func NewRouter(src StatusSource) (chi.Router, error) {
	reg := prometheus.NewRegistry()
	gauges := []struct {
		name string
		help string
		get  func(stream.Counters) float64
	}{
		{"daq_buffer_front_bytes", "Logical bytes made available by the device so far.",
			func(c stream.Counters) float64 { return float64(c.Front) }},
		{"daq_buffer_back_bytes", "Logical bytes acknowledged by the consumer so far.",
			func(c stream.Counters) float64 { return float64(c.Back) }},
		{"daq_samples_total", "Raw samples decoded and converted.",
			func(c stream.Counters) float64 { return float64(c.Samples) }},
		{"daq_scans_total", "Scans reassembled.",
			func(c stream.Counters) float64 { return float64(c.Scans) }},
		{"daq_rows_total", "Output rows emitted.",
			func(c stream.Counters) float64 { return float64(c.Rows) }},
		{"daq_scan_period_ns", "Authoritative scan period in nanoseconds.",
			func(c stream.Counters) float64 { return float64(c.PeriodNS) }},
	}
	for _, g := range gauges {
		get := g.get
		err := reg.Register(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			func() float64 { return get(src.Status()) },
		))
		if err != nil {
			return nil, err
		}
	}

	r := chi.NewRouter()
	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(src.Status()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	r.Get("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP)
	return r, nil
}

// Serve runs the diagnostics server on addr until the listener fails.  Run
// it in its own goroutine; it never touches the acquisition loop beyond
// reading counters.
func Serve(addr string, src StatusSource) error {
	r, err := NewRouter(src)
	if err != nil {
		return err
	}
	return http.ListenAndServe(addr, r)
}
