package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hotelbooking"

type Recorder struct {
	operations *prometheus.CounterVec
	lockWait   prometheus.Histogram
	inFlight   *prometheus.GaugeVec

	registerOnce sync.Once
	registerErr  error
}

func New() *Recorder {
	//nolint:exhaustruct
	return &Recorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_operations_total",
			Help:      "Booking mutations by operation and outcome",
		}, []string{"operation", "outcome"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "hotel_lock_wait_seconds",
			Help:      "Time spent waiting for a hotel lock",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "booking_operations_in_flight",
			Help:      "Booking mutations currently waiting for or holding a hotel lock",
		}, []string{"operation"}),
	}
}

// Register adds the collectors to reg. Repeated calls return the first result.
func (r *Recorder) Register(reg prometheus.Registerer) error {
	r.registerOnce.Do(func() {
		for _, c := range []prometheus.Collector{r.operations, r.lockWait, r.inFlight} {
			if err := reg.Register(c); err != nil {
				r.registerErr = err

				return
			}
		}
	})

	return r.registerErr
}

func (r *Recorder) OperationStarted(operation string) func() {
	g := r.inFlight.WithLabelValues(operation)
	g.Inc()

	var once sync.Once

	return func() {
		once.Do(g.Dec)
	}
}

func (r *Recorder) ObserveOutcome(operation, outcome string) {
	r.operations.WithLabelValues(operation, outcome).Inc()
}

func (r *Recorder) ObserveLockWait(d time.Duration) {
	r.lockWait.Observe(d.Seconds())
}

func Handler(g prometheus.Gatherer) http.Handler {
	//nolint:exhaustruct
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
