package insurance

import "testing"

func f64(v float64) *float64 { return &v }

func TestComputeAmountsPercentage(t *testing.T) {
	cases := []struct {
		name        string
		basePrice   float64
		value       float64
		wantCovered float64
	}{
		{"eighty percent of 100", 100, 80, 80},
		{"zero percent", 50, 0, 0},
		{"hundred percent", 50, 100, 50},
		{"rounding third", 10, 33.33, 3.33},
		{"rounding two thirds", 99.99, 66.67, 66.66},
		{"zero base", 0, 80, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := ComputeAmounts(tc.basePrice, ResolvedCoverage{CoverageType: CoveragePercentage, CoverageValue: tc.value})
			if a.Covered != tc.wantCovered {
				t.Errorf("covered = %v, want %v", a.Covered, tc.wantCovered)
			}
			// The copay is always derived as base minus covered, so the
			// two halves sum back to the base price with no drift.
			if a.Copay != tc.basePrice-a.Covered {
				t.Errorf("copay = %v, want %v", a.Copay, tc.basePrice-a.Covered)
			}
		})
	}
}

func TestComputeAmountsFixed(t *testing.T) {
	a := ComputeAmounts(25, ResolvedCoverage{CoverageType: CoverageFixed, CoverageValue: 15})
	if a.Covered != 15 || a.Copay != 10 {
		t.Errorf("got covered=%v copay=%v, want 15/10", a.Covered, a.Copay)
	}

	// Fixed coverage above the base price caps at the base price.
	a = ComputeAmounts(25, ResolvedCoverage{CoverageType: CoverageFixed, CoverageValue: 40})
	if a.Covered != 25 || a.Copay != 0 {
		t.Errorf("got covered=%v copay=%v, want 25/0", a.Covered, a.Copay)
	}
}

func TestComputeAmountsFull(t *testing.T) {
	for _, base := range []float64{0, 1, 99.99, 12345.67} {
		a := ComputeAmounts(base, ResolvedCoverage{CoverageType: CoverageFull, CoverageValue: 100})
		if a.Copay != 0 {
			t.Errorf("base %v: full coverage copay = %v, want 0", base, a.Copay)
		}
		if a.Covered != base {
			t.Errorf("base %v: full coverage covered = %v", base, a.Covered)
		}
	}
}

func TestComputeAmountsExcluded(t *testing.T) {
	a := ComputeAmounts(50, ResolvedCoverage{CoverageType: CoverageExcluded})
	if a.Covered != 0 || a.Copay != 50 {
		t.Errorf("got covered=%v copay=%v, want 0/50", a.Covered, a.Copay)
	}
}

func TestComputeAmountsExcludedIgnoresCopay(t *testing.T) {
	// A copay amount left on an excluded rule must not manufacture
	// coverage; the item stays fully out of pocket.
	a := ComputeAmounts(50, ResolvedCoverage{CoverageType: CoverageExcluded, CopayAmount: f64(5)})
	if a.Covered != 0 || a.Copay != 50 {
		t.Errorf("got covered=%v copay=%v, want 0/50", a.Covered, a.Copay)
	}
}

func TestComputeAmountsUnknownTypeTreatedAsExcluded(t *testing.T) {
	a := ComputeAmounts(80, ResolvedCoverage{CoverageType: "co-insurance", CoverageValue: 50})
	if a.Covered != 0 || a.Copay != 80 {
		t.Errorf("got covered=%v copay=%v, want 0/80", a.Covered, a.Copay)
	}
}

func TestComputeAmountsCopayOverride(t *testing.T) {
	a := ComputeAmounts(100, ResolvedCoverage{CoverageType: CoveragePercentage, CoverageValue: 80, CopayAmount: f64(5)})
	if a.Covered != 95 || a.Copay != 5 {
		t.Errorf("got covered=%v copay=%v, want 95/5", a.Covered, a.Copay)
	}
	if a.Clamped {
		t.Error("did not expect clamping")
	}
}

func TestComputeAmountsCopayOverrideClamped(t *testing.T) {
	a := ComputeAmounts(10, ResolvedCoverage{CoverageType: CoveragePercentage, CoverageValue: 80, CopayAmount: f64(25)})
	if a.Covered != 0 {
		t.Errorf("covered = %v, want clamped to 0", a.Covered)
	}
	if a.Copay != 10 {
		t.Errorf("copay = %v, want capped at base price 10", a.Copay)
	}
	if !a.Clamped {
		t.Error("expected Clamped to mark the data-quality warning")
	}
}
