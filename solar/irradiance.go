package solar

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

const (
	minCosZenith      = 0.065
	maxClearnessIndex = 2.0
	maxZenith         = 87.0 // DNI is not trusted closer to the horizon
	DefaultAlbedo     = 0.25
)

// Components holds the horizontal irradiance components, W/m².
type Components struct {
	GHI float64 `json:"ghi"`
	DNI float64 `json:"dni"`
	DHI float64 `json:"dhi"`
}

// ClearnessIndex returns the ratio of GHI to extraterrestrial horizontal irradiance.
func ClearnessIndex(ghi, zenith float64, t time.Time) float64 {
	cosZ := math.Max(cosd(zenith), minCosZenith)
	kt := ghi / (ExtraterrestrialIrradiance(t) * cosZ)
	return math.Min(math.Max(kt, 0), maxClearnessIndex)
}

// Erbs splits GHI into direct normal and diffuse horizontal components using
// the Erbs diffuse-fraction correlation.
func Erbs(ghi, zenith float64, t time.Time) Components {
	kt := ClearnessIndex(ghi, zenith, t)

	var df float64
	switch {
	case kt <= 0.22:
		df = 1.0 - 0.09*kt
	case kt <= 0.8:
		df = 0.9511 - 0.1604*kt + 4.388*math.Pow(kt, 2) - 16.638*math.Pow(kt, 3) + 12.336*math.Pow(kt, 4)
	default:
		df = 0.165
	}

	dhi := df * ghi
	dni := (ghi - dhi) / cosd(zenith)

	if zenith > maxZenith || ghi < 0 || dni < 0 || math.IsNaN(dni) || math.IsInf(dni, 0) {
		return Components{GHI: ghi, DNI: 0, DHI: math.Max(ghi, 0)}
	}
	return Components{GHI: ghi, DNI: dni, DHI: dhi}
}

// ClearSkyGHI returns the Haurwitz clear-sky global horizontal irradiance.
func ClearSkyGHI(zenith float64) float64 {
	cosZ := cosd(zenith)
	if cosZ <= 0 {
		return 0
	}
	return 1098.0 * cosZ * math.Exp(-0.059/cosZ)
}

// CloudAdjustedGHI attenuates clear-sky GHI for a cloud cover percentage
// (Kasten–Czeplak).
func CloudAdjustedGHI(clearSky, cloudCover float64) float64 {
	c := math.Min(math.Max(cloudCover/100, 0), 1)
	return clearSky * (1 - 0.75*math.Pow(c, 3.4))
}

// Surface describes the orientation of the plane of array, in degrees.
type Surface struct {
	Tilt    float64 `json:"tilt"`    // 0 = horizontal, 90 = vertical
	Azimuth float64 `json:"azimuth"` // clockwise from north, 180 = south
	Albedo  float64 `json:"albedo"`
}

// Irradiance is the plane-of-array irradiance and its parts, W/m².
type Irradiance struct {
	Global        float64 `json:"poa_global"`
	Direct        float64 `json:"poa_direct"`
	SkyDiffuse    float64 `json:"poa_sky_diffuse"`
	GroundDiffuse float64 `json:"poa_ground_diffuse"`
}

// AngleOfIncidence returns the angle between the sun beam and the surface normal, degrees.
func (s Surface) AngleOfIncidence(pos Position) float64 {
	projection := cosd(pos.Zenith)*cosd(s.Tilt) +
		sind(pos.Zenith)*sind(s.Tilt)*cosd(pos.Azimuth-s.Azimuth)
	projection = math.Min(math.Max(projection, -1), 1)
	return math.Acos(projection) * 180 / math.Pi
}

func (s Surface) skyViewFactor() float64 {
	return (1 + cosd(s.Tilt)) / 2
}

func (s Surface) groundViewFactor() float64 {
	return (1 - cosd(s.Tilt)) / 2
}

func (s Surface) beam(dni float64, pos Position) float64 {
	if !pos.IsUp() || dni <= 0 {
		return 0
	}
	return dni * math.Max(cosd(s.AngleOfIncidence(pos)), 0)
}

// Transpose projects horizontal components onto the surface with the
// isotropic sky diffuse model.
func (s Surface) Transpose(c Components, pos Position) Irradiance {
	direct := s.beam(c.DNI, pos)
	sky := math.Max(c.DHI, 0) * s.skyViewFactor()
	ground := math.Max(c.GHI, 0) * s.Albedo * s.groundViewFactor()
	return Irradiance{
		Global:        direct + sky + ground,
		Direct:        direct,
		SkyDiffuse:    sky,
		GroundDiffuse: ground,
	}
}

// TransposeSeries transposes a series of components with matching positions.
func (s Surface) TransposeSeries(comps []Components, positions []Position) []Irradiance {
	n := len(comps)
	if len(positions) < n {
		n = len(positions)
	}

	dhi := make([]float64, n)
	ghi := make([]float64, n)
	direct := make([]float64, n)
	for i := 0; i < n; i++ {
		dhi[i] = math.Max(comps[i].DHI, 0)
		ghi[i] = math.Max(comps[i].GHI, 0)
		direct[i] = s.beam(comps[i].DNI, positions[i])
	}

	sky := make([]float64, n)
	floats.ScaleTo(sky, s.skyViewFactor(), dhi)
	ground := make([]float64, n)
	floats.ScaleTo(ground, s.Albedo*s.groundViewFactor(), ghi)

	global := make([]float64, n)
	floats.AddTo(global, direct, sky)
	floats.Add(global, ground)

	out := make([]Irradiance, n)
	for i := range out {
		out[i] = Irradiance{
			Global:        global[i],
			Direct:        direct[i],
			SkyDiffuse:    sky[i],
			GroundDiffuse: ground[i],
		}
	}
	return out
}
