package fatigue

const (
	weightCTR    = 0.40
	weightCPA    = 0.30
	weightROI    = 0.30
	weightCTRAlt = 0.60
	weightCPAAlt = 0.40
)

// Score is the Fatigue Risk Index for one row, clamped to [0,100].
// Undefined ratios count as zero.
func Score(r Ratios, roiAvailable bool) float64 {
	ctr, cpa, roi := fill(r.CTRDecay), fill(r.CPAIncrease), fill(r.ROIDrop)
	var fri float64
	if roiAvailable {
		fri = 100 * (weightCTR*ctr + weightCPA*cpa + weightROI*roi)
	} else {
		fri = 100 * (weightCTRAlt*ctr + weightCPAAlt*cpa)
	}
	return clamp(fill(fri), 0, 100)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
