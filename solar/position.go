// Package solar computes the sun's position and transposes horizontal
// irradiance onto a tilted plane of array.
package solar

import (
	"math"
	"time"

	"github.com/sixdouglas/suncalc"
)

// Position is the apparent position of the sun at a given instant, in degrees.
type Position struct {
	Time      time.Time `json:"time"`
	Zenith    float64   `json:"zenith"`
	Elevation float64   `json:"elevation"`
	Azimuth   float64   `json:"azimuth"` // clockwise from north
}

// IsUp reports whether the sun is above the horizon.
func (p Position) IsUp() bool {
	return p.Elevation > 0
}

// SunPosition returns the sun position for t at the given latitude/longitude.
func SunPosition(t time.Time, lat, lon float64) Position {
	pos := suncalc.GetPosition(t, lat, lon)
	elevation := pos.Altitude * 180 / math.Pi

	// suncalc measures azimuth from south towards west
	azimuth := math.Mod(pos.Azimuth*180/math.Pi+180, 360)
	if azimuth < 0 {
		azimuth += 360
	}

	return Position{
		Time:      t,
		Zenith:    90 - elevation,
		Elevation: elevation,
		Azimuth:   azimuth,
	}
}

// SunTimes returns sunrise and sunset for the day of t.
func SunTimes(t time.Time, lat, lon float64) (sunrise, sunset time.Time) {
	times := suncalc.GetTimes(t, lat, lon)
	return times["sunrise"].Value, times["sunset"].Value
}

// ExtraterrestrialIrradiance returns the solar irradiance at the top of the
// atmosphere on a plane normal to the sun, W/m².
func ExtraterrestrialIrradiance(t time.Time) float64 {
	const solarConstant = 1367.0
	doy := float64(t.UTC().YearDay())
	return solarConstant * (1 + 0.033*math.Cos(2*math.Pi*doy/365))
}

func cosd(deg float64) float64 {
	return math.Cos(deg * math.Pi / 180)
}

func sind(deg float64) float64 {
	return math.Sin(deg * math.Pi / 180)
}
