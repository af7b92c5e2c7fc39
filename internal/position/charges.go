package position

import "math"

// Statutory and brokerage rates for NSE option trades. Brokerage is the
// flat per-order fee charged on each leg.
const (
	brokeragePerLeg = 20.0
	sttRate         = 0.000625 // 0.0625% on the sell-side premium
	exchTxnRate     = 0.0003503
	sebiRate        = 0.000001 // Rs 10 per crore of turnover
	stampRate       = 0.00003  // 0.003% on the buy-side premium
	gstRate         = 0.18     // on brokerage + transaction + SEBI charges
)

// estimateCharges approximates the round-trip cost of a long option trade
// so net P&L is realistic even in paper mode. Rates track the published
// Fyers/NSE schedule; small rounding differences against the contract note
// are acceptable.
func estimateCharges(entryPrice, exitPrice float64, qty int64) float64 {
	buyValue := entryPrice * float64(qty)
	sellValue := exitPrice * float64(qty)
	turnover := buyValue + sellValue

	brokerage := brokeragePerLeg * 2
	stt := sellValue * sttRate
	exchTxn := turnover * exchTxnRate
	sebi := turnover * sebiRate
	stamp := buyValue * stampRate
	gst := (brokerage + exchTxn + sebi) * gstRate

	total := brokerage + stt + exchTxn + sebi + stamp + gst
	return math.Round(total*100) / 100
}
