package yield

import (
	"time"

	"github.com/devskill-org/pvyield/utils"
)

// DailyTotal is the energy of one local calendar day.
type DailyTotal struct {
	Date         time.Time `json:"date"`
	EnergyKWh    float64   `json:"energy_kwh"`
	RawEnergyKWh float64   `json:"raw_energy_kwh"`
}

// stepHours returns the duration each point represents, in hours.
// A point lasts until the next one; the last point reuses the previous step
// and a lone point counts as one hour.
func stepHours(points []Point) []float64 {
	steps := make([]float64, len(points))
	for i := range points {
		switch {
		case i+1 < len(points):
			steps[i] = points[i+1].Time.Sub(points[i].Time).Hours()
		case i > 0:
			steps[i] = steps[i-1]
		default:
			steps[i] = 1
		}
		if steps[i] < 0 {
			steps[i] = 0
		}
	}
	return steps
}

// DailyTotals integrates the power series into energy per calendar day in loc.
// Points must be sorted by time.
func DailyTotals(points []Point, loc *time.Location) []DailyTotal {
	if loc == nil {
		loc = time.Local
	}
	steps := stepHours(points)

	var totals []DailyTotal
	for i, pt := range points {
		day := utils.StartOfDay(pt.Time.In(loc))
		if len(totals) == 0 || !totals[len(totals)-1].Date.Equal(day) {
			totals = append(totals, DailyTotal{Date: day})
		}
		last := &totals[len(totals)-1]
		last.EnergyKWh += pt.PowerKW * steps[i]
		last.RawEnergyKWh += pt.RawPowerKW * steps[i]
	}
	return totals
}

// TotalFor returns the daily total for the calendar day of date, if present.
func TotalFor(totals []DailyTotal, date time.Time) (DailyTotal, bool) {
	for _, t := range totals {
		if utils.SameDay(t.Date, date.In(t.Date.Location())) {
			return t, true
		}
	}
	return DailyTotal{}, false
}
