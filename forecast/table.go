package forecast

import (
	"fmt"
	"io"
	"time"
)

// WriteTable prints the hourly forecast, the daily totals and the summary in
// the box layout used on the console.
func WriteTable(w io.Writer, f *Forecast, loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}

	fmt.Fprintln(w, "┌──────────────────┬──────────┬──────────┬──────────┬──────────┬──────────┬──────────┐")
	fmt.Fprintln(w, "│       Time       │   POA    │  T air   │ T module │   Eff    │ Raw pwr  │  Power   │")
	fmt.Fprintln(w, "│                  │  (W/m²)  │   (°C)   │   (°C)   │   (%)    │   (kW)   │   (kW)   │")
	fmt.Fprintln(w, "├──────────────────┼──────────┼──────────┼──────────┼──────────┼──────────┼──────────┤")
	for _, p := range f.Points {
		fmt.Fprintf(w, "│ %16s │ %8.1f │ %8.1f │ %8.1f │ %8.1f │ %8.3f │ %8.3f │\n",
			p.Time.In(loc).Format("2006-01-02 15:04"),
			p.POA,
			p.TempAir,
			p.TempModule,
			p.Efficiency*100,
			p.RawPowerKW,
			p.PowerKW,
		)
	}
	fmt.Fprintln(w, "└──────────────────┴──────────┴──────────┴──────────┴──────────┴──────────┴──────────┘")

	fmt.Fprintln(w)
	fmt.Fprintln(w, "DAILY YIELD")
	for _, d := range f.Daily {
		fmt.Fprintf(w, "  %s: %7.2f kWh (uncorrected %.2f kWh)\n", d.Date.Format("2006-01-02"), d.EnergyKWh, d.RawEnergyKWh)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "SUMMARY")
	fmt.Fprintf(w, "  Source:              %s\n", f.Source)
	fmt.Fprintf(w, "  Bias factor:         %.3f\n", f.Bias)
	fmt.Fprintf(w, "  Total yield:         %.2f kWh\n", f.TotalKWh)
	fmt.Fprintf(w, "  Max module temp:     %.1f °C\n", f.MaxModuleTemp)
	if !f.Sunrise.IsZero() && !f.Sunset.IsZero() {
		fmt.Fprintf(w, "  Sunrise / sunset:    %s / %s\n", f.Sunrise.In(loc).Format("15:04"), f.Sunset.In(loc).Format("15:04"))
	}
}
