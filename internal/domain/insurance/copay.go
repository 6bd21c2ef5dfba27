package insurance

import "math"

// Amounts is the split of a base price between the insurer and the patient.
// Covered + Copay always equals the base price exactly. Clamped marks the
// data-quality case where a rule's explicit copay exceeded the base price
// and the covered amount was clamped at zero.
type Amounts struct {
	Covered float64 `json:"covered_amount"`
	Copay   float64 `json:"copay_amount"`
	Clamped bool    `json:"-"`
}

// roundCurrency rounds to two decimal places, half away from zero.
func roundCurrency(v float64) float64 {
	return math.Round(v*100) / 100
}

// ComputeAmounts splits basePrice per the resolved coverage. Pure function,
// no I/O. The copay is always derived as basePrice minus the rounded
// covered amount so the two halves sum back exactly.
func ComputeAmounts(basePrice float64, rc ResolvedCoverage) Amounts {
	var covered float64
	switch rc.CoverageType {
	case CoveragePercentage:
		covered = roundCurrency(basePrice * rc.CoverageValue / 100)
	case CoverageFixed:
		covered = math.Min(rc.CoverageValue, basePrice)
	case CoverageFull:
		covered = basePrice
	default:
		// Unknown types fail closed upstream; excluded lands here too.
		covered = 0
	}

	a := Amounts{Covered: covered, Copay: basePrice - covered}

	// An excluded item is fully out of pocket; a leftover copay amount on
	// the rule must not manufacture coverage. Unknown types are excluded.
	if rc.CoverageType == CoverageExcluded || !validCoverageTypes[rc.CoverageType] {
		return a
	}

	if rc.CopayAmount != nil {
		copay := *rc.CopayAmount
		covered = basePrice - copay
		if covered < 0 {
			covered = 0
			copay = basePrice
			a.Clamped = true
		}
		a.Covered = covered
		a.Copay = copay
	}
	return a
}
