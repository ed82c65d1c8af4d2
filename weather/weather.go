// Package weather turns forecast providers into a uniform hourly series of
// irradiance and air temperature samples.
package weather

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"
)

// ErrNoData is returned when a source yields no usable samples.
var ErrNoData = errors.New("weather: no usable samples")

// Location is the site a forecast is requested for.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Sample is one weather observation or forecast step. GHI, DNI and DHI are in
// W/m², TempAir in °C and CloudCover in percent. DNI, DHI and CloudCover are
// nil when the source does not provide them.
type Sample struct {
	Time       time.Time `json:"time"`
	GHI        float64   `json:"ghi"`
	TempAir    float64   `json:"temp_air"`
	DNI        *float64  `json:"dni,omitempty"`
	DHI        *float64  `json:"dhi,omitempty"`
	CloudCover *float64  `json:"cloud_cover,omitempty"`
	Snow       bool      `json:"snow,omitempty"`

	// Period is the interval ending at Time over which irradiance was
	// averaged. Zero means instantaneous values.
	Period time.Duration `json:"period,omitempty"`
}

// Midpoint returns the instant the irradiance of s is representative of.
func (s Sample) Midpoint() time.Time {
	return s.Time.Add(-s.Period / 2)
}

// HasComponents reports whether both DNI and DHI are known.
func (s Sample) HasComponents() bool {
	return s.DNI != nil && s.DHI != nil
}

// Series is a time-ordered list of samples.
type Series []Sample

// Source provides a weather series for a location.
type Source interface {
	Name() string
	Fetch(ctx context.Context, loc Location) (Series, error)
}

// Window returns the samples with start <= Time < end. A zero bound is open.
func (s Series) Window(start, end time.Time) Series {
	out := make(Series, 0, len(s))
	for _, sample := range s {
		if !start.IsZero() && sample.Time.Before(start) {
			continue
		}
		if !end.IsZero() && !sample.Time.Before(end) {
			continue
		}
		out = append(out, sample)
	}
	return out
}

// Start returns the time of the first sample, or the zero time.
func (s Series) Start() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[0].Time
}

// End returns the time of the last sample, or the zero time.
func (s Series) End() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[len(s)-1].Time
}

// Normalize sorts samples by time, drops those with a non-finite GHI or
// temperature and keeps the first of duplicate timestamps. It returns
// ErrNoData when nothing is left.
func Normalize(s Series) (Series, error) {
	out := make(Series, 0, len(s))
	for _, sample := range s {
		if !finite(sample.GHI) || !finite(sample.TempAir) {
			continue
		}
		out = append(out, sample)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })

	deduped := out[:0]
	for i, sample := range out {
		if i > 0 && sample.Time.Equal(deduped[len(deduped)-1].Time) {
			continue
		}
		deduped = append(deduped, sample)
	}

	if len(deduped) == 0 {
		return nil, ErrNoData
	}
	return deduped, nil
}

// horizon returns the forecast window starting at the current hour.
func horizon(now time.Time, hours int) (time.Time, time.Time) {
	start := now.Truncate(time.Hour)
	return start, start.Add(time.Duration(hours) * time.Hour)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func optional(v float64) *float64 {
	if !finite(v) {
		return nil
	}
	return &v
}
