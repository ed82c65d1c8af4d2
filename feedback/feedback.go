// Package feedback records the actual daily PV yield next to the forecast
// made for that day, so later forecasts can be corrected by the observed bias.
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/devskill-org/pvyield/utils"
	"github.com/devskill-org/pvyield/yield"
)

// Date is a calendar day, encoded as YYYY-MM-DD in CSV and JSON.
type Date struct {
	time.Time
}

// NewDate returns the calendar day of t, as seen in t's location. Dates are
// held as local midnight so values from every store compare equal.
func NewDate(t time.Time) Date {
	return Date{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)}
}

// String returns the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(utils.DateLayout)
}

// MarshalCSV implements gocsv.TypeMarshaller.
func (d Date) MarshalCSV() (string, error) {
	return d.String(), nil
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller. A trailing time of day,
// as in "2024-06-21 00:00:00", is ignored.
func (d *Date) UnmarshalCSV(value string) error {
	if len(value) > len(utils.DateLayout) && strings.ContainsRune(" T", rune(value[len(utils.DateLayout)])) {
		value = value[:len(utils.DateLayout)]
	}
	t, err := time.ParseInLocation(utils.DateLayout, value, time.Local)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", value, err)
	}
	d.Time = t
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return d.UnmarshalCSV(s)
}

// Entry is one logged day. PredictedKWh is the forecast for that day before
// bias correction.
type Entry struct {
	Date         Date    `csv:"date" json:"date"`
	ActualKWh    float64 `csv:"actual_kwh" json:"actual_kwh"`
	PredictedKWh float64 `csv:"predicted_kwh" json:"predicted_kwh"`
}

// Validate checks that the yields are usable.
func (e Entry) Validate() error {
	if e.Date.IsZero() {
		return fmt.Errorf("feedback entry has no date")
	}
	if e.ActualKWh < 0 {
		return fmt.Errorf("actual yield must not be negative, got %.3f kWh", e.ActualKWh)
	}
	if e.PredictedKWh < 0 {
		return fmt.Errorf("predicted yield must not be negative, got %.3f kWh", e.PredictedKWh)
	}
	return nil
}

// Store persists feedback entries. Adding an entry for a date that is
// already logged replaces it.
type Store interface {
	Add(ctx context.Context, entry Entry) error
	List(ctx context.Context) ([]Entry, error)
}

// Prediction is the raw forecast energy of one whole calendar day.
type Prediction struct {
	Date        Date      `csv:"date" json:"date"`
	EnergyKWh   float64   `csv:"predicted_kwh" json:"predicted_kwh"`
	GeneratedAt time.Time `csv:"generated_at" json:"generated_at"`
}

// Validate checks that the prediction is usable.
func (p Prediction) Validate() error {
	if p.Date.IsZero() {
		return fmt.Errorf("prediction has no date")
	}
	if p.EnergyKWh < 0 {
		return fmt.Errorf("predicted yield must not be negative, got %.3f kWh", p.EnergyKWh)
	}
	return nil
}

// PredictionStore persists full-day predictions so that an actual yield
// logged later, or by another process, is compared with the whole day.
type PredictionStore interface {
	SavePredictions(ctx context.Context, predictions []Prediction) error
	Prediction(ctx context.Context, date Date) (Prediction, bool, error)
}

// Observations converts entries into bias observations.
func Observations(entries []Entry) []yield.Observation {
	return lo.Map(entries, func(e Entry, _ int) yield.Observation {
		return yield.Observation{ActualKWh: e.ActualKWh, PredictedKWh: e.PredictedKWh}
	})
}

// Bias loads all entries from store and returns their bias factor.
func Bias(ctx context.Context, store Store) (float64, error) {
	entries, err := store.List(ctx)
	if err != nil {
		return 1.0, err
	}
	return yield.BiasFactor(Observations(entries)), nil
}
