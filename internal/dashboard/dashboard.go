package dashboard

import "github.com/coldbell/walletrank/backend/internal/model"

type Summary struct {
	TotalWallets     int     `json:"total_wallets_analyzed"`
	AvgProfitLoss    float64 `json:"average_profit_loss"`
	AvgWinRate       float64 `json:"average_win_rate"`
	TotalTradeVolume float64 `json:"total_trade_volume"`
}

type Bucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Distribution buckets are always present and in ascending order, empty ones
// included.
type Distribution struct {
	ProfitLoss []Bucket `json:"profit_loss_ranges"`
	WinRate    []Bucket `json:"win_rate_ranges"`
	TradeSize  []Bucket `json:"trade_size_ranges"`
}

type Data struct {
	TopWallets   []model.WalletMetrics `json:"top_wallets"`
	Summary      Summary               `json:"performance_summary"`
	Distribution Distribution          `json:"metrics_distribution"`
}

// bucketEdges maps a value to the first label whose upper bound it is below;
// the last label catches everything else.
type bucketEdges struct {
	bounds []float64
	labels []string
}

var (
	profitLossEdges = bucketEdges{bounds: []float64{0, 100, 1000}, labels: []string{"Loss", "0-100", "100-1000", ">1000"}}
	winRateEdges    = bucketEdges{bounds: []float64{40, 50, 60}, labels: []string{"<40%", "40-50%", "50-60%", ">60%"}}
	tradeSizeEdges  = bucketEdges{bounds: []float64{100, 1000, 10000}, labels: []string{"<100", "100-1000", "1000-10000", ">10000"}}
)

func (e bucketEdges) index(v float64) int {
	for i, bound := range e.bounds {
		if v < bound {
			return i
		}
	}
	return len(e.bounds)
}

func (e bucketEdges) empty() []Bucket {
	out := make([]Bucket, len(e.labels))
	for i, label := range e.labels {
		out[i].Label = label
	}
	return out
}

// Generate summarises wallets, which are expected in leaderboard order.
func Generate(wallets []model.WalletMetrics) Data {
	data := Data{
		TopWallets: append([]model.WalletMetrics{}, wallets...),
		Summary:    Summary{TotalWallets: len(wallets)},
		Distribution: Distribution{
			ProfitLoss: profitLossEdges.empty(),
			WinRate:    winRateEdges.empty(),
			TradeSize:  tradeSizeEdges.empty(),
		},
	}

	var totalPNL, totalWinRate float64
	for _, w := range wallets {
		totalPNL += w.TotalProfitLoss
		totalWinRate += w.WinRate
		data.Summary.TotalTradeVolume += w.Volume()

		data.Distribution.ProfitLoss[profitLossEdges.index(w.TotalProfitLoss)].Count++
		data.Distribution.WinRate[winRateEdges.index(w.WinRate)].Count++
		data.Distribution.TradeSize[tradeSizeEdges.index(w.AvgTradeSize)].Count++
	}
	if n := len(wallets); n > 0 {
		data.Summary.AvgProfitLoss = totalPNL / float64(n)
		data.Summary.AvgWinRate = totalWinRate / float64(n)
	}
	return data
}
