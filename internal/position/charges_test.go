package position

import "testing"

func TestEstimateCharges(t *testing.T) {
	// Round trip of 75 units, 100 -> 110.
	got := estimateCharges(100, 110, 75)

	// Flat brokerage alone is 40; statutory charges must add to it.
	if got <= 40 {
		t.Errorf("charges = %v, want > 40", got)
	}
	// Sanity ceiling: charges on a ~15k turnover stay well under 100.
	if got >= 100 {
		t.Errorf("charges = %v, implausibly high", got)
	}
}

func TestEstimateCharges_ScalesWithSize(t *testing.T) {
	small := estimateCharges(100, 110, 75)
	large := estimateCharges(100, 110, 750)
	if large <= small {
		t.Errorf("charges should grow with quantity: %v vs %v", small, large)
	}
}
