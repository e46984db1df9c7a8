package dashboard

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

const renderedRows = 10

var (
	title   = color.New(color.Bold)
	heading = color.New(color.Bold, color.Underline)
	gain    = color.New(color.FgGreen)
	loss    = color.New(color.FgRed)
)

// Render writes a text dashboard. Colour follows color.NoColor.
func Render(w io.Writer, data Data) error {
	var b strings.Builder

	title.Fprintln(&b, "=== Solana Wallet Performance Dashboard ===")
	fmt.Fprintln(&b)

	heading.Fprintln(&b, "Performance Summary")
	fmt.Fprintf(&b, "Total Wallets Analyzed: %d\n", data.Summary.TotalWallets)
	fmt.Fprintf(&b, "Average Profit/Loss: %.2f SOL\n", data.Summary.AvgProfitLoss)
	fmt.Fprintf(&b, "Average Win Rate: %.2f%%\n", data.Summary.AvgWinRate)
	fmt.Fprintf(&b, "Total Trade Volume: %.2f SOL\n", data.Summary.TotalTradeVolume)
	fmt.Fprintln(&b)

	heading.Fprintln(&b, "Top Performing Wallets")
	fmt.Fprintf(&b, "%-44s %12s %10s %12s\n", "Wallet", "Profit/Loss", "Win Rate", "Trade Count")
	fmt.Fprintln(&b, strings.Repeat("=", 80))
	for _, wallet := range data.TopWallets[:min(len(data.TopWallets), renderedRows)] {
		pnl := gain
		if wallet.TotalProfitLoss < 0 {
			pnl = loss
		}
		fmt.Fprintf(&b, "%-44s %s %9.1f%% %12d\n",
			wallet.Address,
			pnl.Sprintf("%12.2f", wallet.TotalProfitLoss),
			wallet.WinRate,
			wallet.TradeCount,
		)
	}
	fmt.Fprintln(&b)

	heading.Fprintln(&b, "Metric Distributions")
	writeBars(&b, "Profit/Loss Distribution:", data.Distribution.ProfitLoss)
	writeBars(&b, "Win Rate Distribution:", data.Distribution.WinRate)
	writeBars(&b, "Trade Size Distribution:", data.Distribution.TradeSize)

	_, err := io.WriteString(w, b.String())
	return err
}

func writeBars(b *strings.Builder, label string, buckets []Bucket) {
	fmt.Fprintf(b, "\n%s\n", label)
	for _, bucket := range buckets {
		fmt.Fprintf(b, "%-10s: %s %d\n", bucket.Label, strings.Repeat("█", bucket.Count), bucket.Count)
	}
}
