package dashboard

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/coldbell/walletrank/backend/internal/model"
	"github.com/fatih/color"
	"github.com/google/go-cmp/cmp"
)

func TestGenerate(t *testing.T) {
	wallets := []model.WalletMetrics{
		{Address: "A", TotalProfitLoss: 1500, WinRate: 75, AvgTradeSize: 20000, TradeCount: 4},
		{Address: "B", TotalProfitLoss: 100, WinRate: 50, AvgTradeSize: 1000, TradeCount: 2},
		{Address: "C", TotalProfitLoss: 0, WinRate: 40, AvgTradeSize: 99.5, TradeCount: 2},
		{Address: "D", TotalProfitLoss: -200, WinRate: 10, AvgTradeSize: 500, TradeCount: 10},
	}

	data := Generate(wallets)

	wantSummary := Summary{
		TotalWallets:     4,
		AvgProfitLoss:    350,
		AvgWinRate:       43.75,
		TotalTradeVolume: 80000 + 2000 + 199 + 5000,
	}
	if diff := cmp.Diff(wantSummary, data.Summary); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}

	want := Distribution{
		ProfitLoss: []Bucket{{"Loss", 1}, {"0-100", 1}, {"100-1000", 1}, {">1000", 1}},
		WinRate:    []Bucket{{"<40%", 1}, {"40-50%", 1}, {"50-60%", 1}, {">60%", 1}},
		TradeSize:  []Bucket{{"<100", 1}, {"100-1000", 1}, {"1000-10000", 1}, {">10000", 1}},
	}
	if diff := cmp.Diff(want, data.Distribution); diff != "" {
		t.Fatalf("distribution mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wallets, data.TopWallets); diff != "" {
		t.Fatalf("top wallets should keep input order:\n%s", diff)
	}
}

func TestGenerate_Empty(t *testing.T) {
	data := Generate(nil)

	if data.Summary != (Summary{}) {
		t.Fatalf("expected zero summary, got %+v", data.Summary)
	}
	if len(data.TopWallets) != 0 || data.TopWallets == nil {
		t.Fatalf("expected empty non-nil top wallets")
	}
	for _, bucket := range data.Distribution.WinRate {
		if bucket.Count != 0 {
			t.Fatalf("expected empty bucket, got %+v", bucket)
		}
	}
	if len(data.Distribution.ProfitLoss) != 4 {
		t.Fatalf("empty buckets should still be listed")
	}
}

func TestRender(t *testing.T) {
	color.NoColor = true

	var wallets []model.WalletMetrics
	for i := range 12 {
		wallets = append(wallets, model.WalletMetrics{
			Address:         fmt.Sprintf("wallet-%02d", i),
			TotalProfitLoss: float64(100 - i),
			WinRate:         60,
			AvgTradeSize:    10,
			TradeCount:      3,
		})
	}

	var out bytes.Buffer
	if err := Render(&out, Generate(wallets)); err != nil {
		t.Fatalf("Render: %v", err)
	}
	text := out.String()

	for _, want := range []string{
		"=== Solana Wallet Performance Dashboard ===",
		"Total Wallets Analyzed: 12",
		"Average Win Rate: 60.00%",
		"wallet-09",
		">60%      : " + strings.Repeat("█", 12) + " 12",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "wallet-10") {
		t.Fatalf("only the first %d wallets should be rendered", renderedRows)
	}
	if strings.Contains(text, "\x1b[") {
		t.Fatalf("expected no escape codes with colour disabled")
	}
}
