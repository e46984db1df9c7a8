package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "walletrank"

// Write failure kinds.
const (
	FailureSnapshot   = "snapshot"
	FailureRankedList = "ranked_list"
	FailureArchive    = "archive"
	FailurePublish    = "publish"
)

// Collector holds the analyzer's prometheus series on a private registry.
type Collector struct {
	registry *prometheus.Registry

	Batches             prometheus.Counter
	BatchFailures       prometheus.Counter
	Transactions        prometheus.Counter
	Trades              prometheus.Counter
	WalletsAggregated   prometheus.Counter
	AggregationFailures prometheus.Counter
	WriteFailures       *prometheus.CounterVec
	BatchDuration       prometheus.Histogram
	Phase               *prometheus.GaugeVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		Batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "batches_total",
			Help: "Completed analysis batches.",
		}),
		BatchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "batch_failures_total",
			Help: "Batches abandoned before ranking.",
		}),
		Transactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "transactions_processed_total",
			Help: "Transactions fetched from the chain.",
		}),
		Trades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "trades_decoded_total",
			Help: "Transactions recognised as trades.",
		}),
		WalletsAggregated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "wallets_aggregated_total",
			Help: "Wallet snapshots computed.",
		}),
		AggregationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "aggregation_failures_total",
			Help: "Wallets excluded because aggregation failed.",
		}),
		WriteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "write_failures_total",
			Help: "Failed writes by destination.",
		}, []string{"kind"}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "batch_duration_seconds",
			Help:    "Wall time of one batch.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		Phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "phase",
			Help: "1 for the orchestrator's current phase.",
		}, []string{"phase"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.Batches,
		c.BatchFailures,
		c.Transactions,
		c.Trades,
		c.WalletsAggregated,
		c.AggregationFailures,
		c.WriteFailures,
		c.BatchDuration,
		c.Phase,
	)
	return c
}

// SetPhase marks phase as current and clears the previous one.
func (c *Collector) SetPhase(previous, current string) {
	if previous != "" && previous != current {
		c.Phase.WithLabelValues(previous).Set(0)
	}
	c.Phase.WithLabelValues(current).Set(1)
}

func (c *Collector) ObserveBatch(d time.Duration) {
	c.BatchDuration.Observe(d.Seconds())
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}
