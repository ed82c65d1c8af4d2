package weather

import (
	"context"
	"math/rand"
	"time"
)

// SimulatedSource produces random hourly samples: GHI uniform in [0, 800)
// W/m² and air temperature uniform in [15, 30) °C. It is meant for demos and
// tests without network access.
type SimulatedSource struct {
	Hours int
	Rand  *rand.Rand
	Now   func() time.Time
}

// NewSimulatedSource creates a simulated source with its own seeded RNG.
func NewSimulatedSource(hours int, seed int64) *SimulatedSource {
	return &SimulatedSource{
		Hours: hours,
		Rand:  rand.New(rand.NewSource(seed)),
		Now:   time.Now,
	}
}

// Name implements Source.
func (s *SimulatedSource) Name() string { return "simulated" }

// Fetch implements Source.
func (s *SimulatedSource) Fetch(ctx context.Context, _ Location) (Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start, _ := horizon(s.Now(), s.Hours)
	series := make(Series, 0, s.Hours)
	for i := 0; i < s.Hours; i++ {
		series = append(series, Sample{
			Time:    start.Add(time.Duration(i) * time.Hour),
			GHI:     s.Rand.Float64() * 800,
			TempAir: 15 + s.Rand.Float64()*15,
		})
	}
	return Normalize(series)
}
