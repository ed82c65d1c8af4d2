// Package yield implements the PV output model: module temperature,
// temperature-derated efficiency, power and the feedback bias factor.
package yield

import (
	"fmt"
	"math"
	"time"
)

// Reference conditions of the simplified thermal model.
const (
	ReferenceTemperature = 25.0   // °C, STC cell temperature
	NOCTAmbient          = 20.0   // °C, ambient temperature at NOCT conditions
	NOCTIrradiance       = 800.0  // W/m², irradiance at NOCT conditions
	STCIrradiance        = 1000.0 // W/m²
)

// Params describes the PV array and the efficiency model.
type Params struct {
	CapacityKWp     float64 // rated DC capacity, kWp
	NOCT            float64 // °C
	TempCoefficient float64 // efficiency loss per K above the reference temperature
	MinEfficiency   float64 // lower clip of the efficiency multiplier
	MaxEfficiency   float64 // upper clip of the efficiency multiplier
}

// DefaultParams returns the parameters of an 11.7 kWp array with NOCT 45 °C.
func DefaultParams() Params {
	return Params{
		CapacityKWp:     11.7,
		NOCT:            45.0,
		TempCoefficient: 0.004,
		MinEfficiency:   0.8,
		MaxEfficiency:   1.0,
	}
}

// Validate checks that the parameters describe a physically plausible array.
func (p Params) Validate() error {
	if p.CapacityKWp <= 0 {
		return fmt.Errorf("capacity must be greater than 0, got: %f", p.CapacityKWp)
	}
	if p.NOCT <= NOCTAmbient {
		return fmt.Errorf("noct must be greater than %.0f, got: %f", NOCTAmbient, p.NOCT)
	}
	if p.TempCoefficient < 0 {
		return fmt.Errorf("temperature coefficient must be non-negative, got: %f", p.TempCoefficient)
	}
	if p.MinEfficiency <= 0 || p.MaxEfficiency <= 0 {
		return fmt.Errorf("efficiency bounds must be positive, got: [%f, %f]", p.MinEfficiency, p.MaxEfficiency)
	}
	if p.MinEfficiency > p.MaxEfficiency {
		return fmt.Errorf("min efficiency (%f) cannot be greater than max efficiency (%f)", p.MinEfficiency, p.MaxEfficiency)
	}
	return nil
}

// ModuleTemperature estimates the module temperature from the ambient
// temperature and the irradiance reaching the module.
func ModuleTemperature(tempAir, irradiance, noct float64) float64 {
	return tempAir + (noct-NOCTAmbient)/NOCTIrradiance*irradiance
}

// EfficiencyMultiplier returns the temperature derating factor, decreasing
// linearly above the reference temperature and clipped to the configured bounds.
func (p Params) EfficiencyMultiplier(tempModule float64) float64 {
	eta := 1.0 - p.TempCoefficient*(tempModule-ReferenceTemperature)
	return math.Min(math.Max(eta, p.MinEfficiency), p.MaxEfficiency)
}

// Output is the model result for a single instant.
type Output struct {
	TempModule float64 // °C
	Efficiency float64 // multiplier
	RawPowerKW float64 // kW before bias correction
	PowerKW    float64 // kW after bias correction
}

// Power evaluates the model for one plane-of-array irradiance and ambient
// temperature. Negative irradiance is treated as darkness.
func (p Params) Power(poa, tempAir, bias float64) Output {
	if poa < 0 || math.IsNaN(poa) {
		poa = 0
	}
	tempModule := ModuleTemperature(tempAir, poa, p.NOCT)
	eta := p.EfficiencyMultiplier(tempModule)
	raw := p.CapacityKWp * (poa / STCIrradiance) * eta
	return Output{
		TempModule: tempModule,
		Efficiency: eta,
		RawPowerKW: raw,
		PowerKW:    raw * bias,
	}
}

// Input is one step of the irradiance series fed to Estimate.
type Input struct {
	Time    time.Time
	POA     float64 // W/m²
	TempAir float64 // °C
}

// Point is one step of an estimated power series.
type Point struct {
	Time       time.Time `json:"time"`
	POA        float64   `json:"poa"`
	TempAir    float64   `json:"temp_air"`
	TempModule float64   `json:"temp_module"`
	Efficiency float64   `json:"efficiency"`
	RawPowerKW float64   `json:"raw_power_kw"`
	PowerKW    float64   `json:"power_kw"`
}

// Estimate evaluates the model over a series of inputs.
func (p Params) Estimate(inputs []Input, bias float64) []Point {
	points := make([]Point, len(inputs))
	for i, in := range inputs {
		out := p.Power(in.POA, in.TempAir, bias)
		points[i] = Point{
			Time:       in.Time,
			POA:        math.Max(in.POA, 0),
			TempAir:    in.TempAir,
			TempModule: out.TempModule,
			Efficiency: out.Efficiency,
			RawPowerKW: out.RawPowerKW,
			PowerKW:    out.PowerKW,
		}
	}
	return points
}

// MaxModuleTemperature returns the highest module temperature of the series,
// or NaN for an empty series.
func MaxModuleTemperature(points []Point) float64 {
	if len(points) == 0 {
		return math.NaN()
	}
	maxTemp := points[0].TempModule
	for _, pt := range points[1:] {
		maxTemp = math.Max(maxTemp, pt.TempModule)
	}
	return maxTemp
}
