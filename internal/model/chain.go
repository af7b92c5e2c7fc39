package model

// OptionRow is one strike/type entry from the option chain snapshot.
type OptionRow struct {
	Symbol       string  `json:"symbol"`
	Strike       float64 `json:"strike"`
	OptionType   string  `json:"option_type"` // "CE" or "PE"
	LastPrice    float64 `json:"last_price"`
	OpenInterest int64   `json:"open_interest"`
}

// BreakoutLevels carries the two candidate legs picked by the OI analysis.
// A zero Level means the leg is not eligible today.
type BreakoutLevels struct {
	PutSymbol  string  `json:"put_symbol"`
	PutStrike  float64 `json:"put_strike"`
	PutPremium float64 `json:"put_premium"` // premium at analysis time
	PutLevel   float64 `json:"put_level"`

	CallSymbol  string  `json:"call_symbol"`
	CallStrike  float64 `json:"call_strike"`
	CallPremium float64 `json:"call_premium"`
	CallLevel   float64 `json:"call_level"`
}

// Symbols returns the non-empty leg symbols, puts first.
func (b BreakoutLevels) Symbols() []string {
	var out []string
	if b.PutSymbol != "" {
		out = append(out, b.PutSymbol)
	}
	if b.CallSymbol != "" {
		out = append(out, b.CallSymbol)
	}
	return out
}
