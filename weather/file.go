package weather

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

type fileRow struct {
	Time    string  `csv:"time"`
	GHI     float64 `csv:"ghi"`
	TempAir float64 `csv:"temp_air"`
	DNI     string  `csv:"dni"`
	DHI     string  `csv:"dhi"`
}

// FileSource reads a series from a CSV file with the columns
// time,ghi,temp_air and optionally dni,dhi. Times without a zone are read in
// Location. When Start or End are set, samples outside them are dropped.
type FileSource struct {
	Path     string
	Location *time.Location
	Start    time.Time
	End      time.Time
}

// Name implements Source.
func (s *FileSource) Name() string { return "csv" }

// Fetch implements Source.
func (s *FileSource) Fetch(ctx context.Context, _ Location) (Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open weather file: %w", err)
	}
	defer file.Close()

	var rows []*fileRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, fmt.Errorf("parse weather file %s: %w", s.Path, err)
	}

	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}

	series := make(Series, 0, len(rows))
	for i, row := range rows {
		ts, err := parseTime(row.Time, loc)
		if err != nil {
			return nil, fmt.Errorf("weather file %s row %d: %w", s.Path, i+2, err)
		}
		sample := Sample{Time: ts, GHI: row.GHI, TempAir: row.TempAir}
		if sample.DNI, err = parseOptional(row.DNI); err != nil {
			return nil, fmt.Errorf("weather file %s row %d dni: %w", s.Path, i+2, err)
		}
		if sample.DHI, err = parseOptional(row.DHI); err != nil {
			return nil, fmt.Errorf("weather file %s row %d dhi: %w", s.Path, i+2, err)
		}
		series = append(series, sample)
	}

	return Normalize(series.Window(s.Start, s.End))
}

func parseTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timeLayouts {
		if ts, err := time.ParseInLocation(layout, value, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", value)
}

func parseOptional(value string) (*float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, err
	}
	return optional(v), nil
}
