package storage

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/coldbell/walletrank/backend/internal/model"
	"github.com/google/go-cmp/cmp"
)

func TestRebindPostgresPlaceholders(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{name: "plain", query: "SELECT * FROM t WHERE a = ? AND b = ?", want: "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{name: "quoted question mark", query: "SELECT '?' , ? FROM t", want: "SELECT '?' , $1 FROM t"},
		{name: "escaped quote", query: "SELECT 'it''s ?' WHERE x = ?", want: "SELECT 'it''s ?' WHERE x = $1"},
		{name: "no placeholders", query: "SELECT 1", want: "SELECT 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rebindPostgresPlaceholders(tt.query); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch target := d.(type) {
		case *string:
			*target = r.values[i].(string)
		case *float64:
			*target = r.values[i].(float64)
		case *int64:
			*target = r.values[i].(int64)
		}
	}
	return nil
}

func TestScanWalletMetrics(t *testing.T) {
	got, err := scanWalletMetrics(fakeRow{values: []any{"W", 5.0, 50.0, 150.0, int64(2), int64(1_700_000_000)}})
	if err != nil {
		t.Fatalf("scanWalletMetrics: %v", err)
	}
	want := model.WalletMetrics{Address: "W", TotalProfitLoss: 5, WinRate: 50, AvgTradeSize: 150, TradeCount: 2, LastUpdated: 1_700_000_000}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("scan mismatch (-want +got):\n%s", diff)
	}

	if _, err := scanWalletMetrics(fakeRow{err: sql.ErrNoRows}); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows passthrough, got %v", err)
	}
}
