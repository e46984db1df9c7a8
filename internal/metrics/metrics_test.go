package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_Counters(t *testing.T) {
	c := New()

	c.Batches.Inc()
	c.Trades.Add(3)
	c.WriteFailures.WithLabelValues(FailureSnapshot).Inc()
	c.WriteFailures.WithLabelValues(FailureSnapshot).Inc()
	c.ObserveBatch(120 * time.Millisecond)

	if got := testutil.ToFloat64(c.Batches); got != 1 {
		t.Fatalf("expected 1 batch, got %f", got)
	}
	if got := testutil.ToFloat64(c.Trades); got != 3 {
		t.Fatalf("expected 3 trades, got %f", got)
	}
	if got := testutil.ToFloat64(c.WriteFailures.WithLabelValues(FailureSnapshot)); got != 2 {
		t.Fatalf("expected 2 snapshot failures, got %f", got)
	}
	if got := testutil.CollectAndCount(c.BatchDuration); got != 1 {
		t.Fatalf("expected one histogram series, got %d", got)
	}
}

func TestCollector_SetPhase(t *testing.T) {
	c := New()

	c.SetPhase("", "fetching")
	c.SetPhase("fetching", "ranking")

	if got := testutil.ToFloat64(c.Phase.WithLabelValues("fetching")); got != 0 {
		t.Fatalf("previous phase should be cleared, got %f", got)
	}
	if got := testutil.ToFloat64(c.Phase.WithLabelValues("ranking")); got != 1 {
		t.Fatalf("current phase should be set, got %f", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.Transactions.Add(7)

	server := httptest.NewServer(c.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	if !strings.Contains(string(body), "walletrank_transactions_processed_total 7") {
		t.Fatalf("expected transactions series in exposition, got:\n%s", body)
	}
}
