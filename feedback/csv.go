package feedback

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gocarina/gocsv"
	"github.com/samber/lo"
)

// legacyActualColumn identifies the two-column log datum,tatsaechlicher_ertrag_kwh
// written before predictions were logged.
const legacyActualColumn = "tatsaechlicher_ertrag_kwh"

type legacyEntry struct {
	Date      Date    `csv:"datum"`
	ActualKWh float64 `csv:"tatsaechlicher_ertrag_kwh"`
}

// CSVStore keeps the log in a CSV file with the columns
// date,actual_kwh,predicted_kwh. The file is rewritten on every Add.
//
// A log with the legacy columns datum,tatsaechlicher_ertrag_kwh is read with
// a zero prediction per day and rewritten in the current layout on the next
// Add.
type CSVStore struct {
	path string
	mu   sync.Mutex
}

// NewCSVStore returns a store backed by path. The file is created on the
// first Add.
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Path returns the file location.
func (s *CSVStore) Path() string {
	return s.path
}

// List returns all entries ordered by date. A missing file is an empty log.
func (s *CSVStore) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Add stores entry, replacing any entry for the same date.
func (s *CSVStore) Add(ctx context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}

	replaced := false
	for i := range entries {
		if entries[i].Date.String() == entry.Date.String() {
			entries[i] = entry
			replaced = true
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}
	sortByDate(entries, func(e Entry) Date { return e.Date })

	return writeCSV(s.path, ".feedback-*.csv", entries)
}

func (s *CSVStore) read() ([]Entry, error) {
	data, err := readFile(s.path)
	if err != nil || data == nil {
		return nil, err
	}

	var entries []Entry
	if isLegacyLog(data) {
		var legacy []legacyEntry
		if err := unmarshalCSV(data, s.path, &legacy); err != nil {
			return nil, err
		}
		entries = lo.Map(legacy, func(l legacyEntry, _ int) Entry {
			return Entry{Date: l.Date, ActualKWh: l.ActualKWh}
		})
	} else if err := unmarshalCSV(data, s.path, &entries); err != nil {
		return nil, err
	}

	sortByDate(entries, func(e Entry) Date { return e.Date })
	return entries, nil
}

func isLegacyLog(data []byte) bool {
	header, _, _ := bufio.NewReader(bytes.NewReader(data)).ReadLine()
	return strings.Contains(string(header), legacyActualColumn)
}

// CSVPredictionStore keeps full-day predictions in a CSV file with the
// columns date,predicted_kwh,generated_at.
type CSVPredictionStore struct {
	path string
	mu   sync.Mutex
}

// NewCSVPredictionStore returns a store backed by path.
func NewCSVPredictionStore(path string) *CSVPredictionStore {
	return &CSVPredictionStore{path: path}
}

// Path returns the file location.
func (s *CSVPredictionStore) Path() string {
	return s.path
}

// SavePredictions upserts predictions by date.
func (s *CSVPredictionStore) SavePredictions(ctx context.Context, predictions []Prediction) error {
	if len(predictions) == 0 {
		return nil
	}
	for _, p := range predictions {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.read()
	if err != nil {
		return err
	}

	byDate := lo.SliceToMap(stored, func(p Prediction) (string, Prediction) { return p.Date.String(), p })
	for _, p := range predictions {
		byDate[p.Date.String()] = p
	}
	merged := lo.Values(byDate)
	sortByDate(merged, func(p Prediction) Date { return p.Date })

	return writeCSV(s.path, ".predictions-*.csv", merged)
}

// Prediction returns the stored prediction for date.
func (s *CSVPredictionStore) Prediction(ctx context.Context, date Date) (Prediction, bool, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.read()
	if err != nil {
		return Prediction{}, false, err
	}
	p, ok := lo.Find(stored, func(p Prediction) bool { return p.Date.String() == date.String() })
	return p, ok, nil
}

func (s *CSVPredictionStore) read() ([]Prediction, error) {
	data, err := readFile(s.path)
	if err != nil || data == nil {
		return nil, err
	}
	var predictions []Prediction
	if err := unmarshalCSV(data, s.path, &predictions); err != nil {
		return nil, err
	}
	return predictions, nil
}

// readFile returns the content of path, or nil for a missing file.
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return data, nil
}

func unmarshalCSV[T any](data []byte, path string, out *[]T) error {
	if err := gocsv.UnmarshalBytes(data, out); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			*out = nil
			return nil
		}
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// writeCSV replaces path atomically via a temporary file in the same directory.
func writeCSV[T any](path, tmpPattern string, rows []T) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gocsv.MarshalFile(&rows, tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func sortByDate[T any](rows []T, date func(T) Date) {
	sort.SliceStable(rows, func(i, j int) bool {
		return date(rows[i]).Before(date(rows[j]).Time)
	})
}
