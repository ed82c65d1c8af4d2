package yield

import "gonum.org/v1/gonum/stat"

// Observation pairs a logged actual yield with the yield predicted for the same day.
type Observation struct {
	ActualKWh    float64
	PredictedKWh float64
}

// BiasFactor returns the arithmetic mean of actual/predicted over all
// observations with a positive prediction. Without any such observation the
// factor is 1.0.
func BiasFactor(observations []Observation) float64 {
	ratios := make([]float64, 0, len(observations))
	for _, o := range observations {
		if o.PredictedKWh <= 0 {
			continue
		}
		ratios = append(ratios, o.ActualKWh/o.PredictedKWh)
	}
	if len(ratios) == 0 {
		return 1.0
	}
	return stat.Mean(ratios, nil)
}
