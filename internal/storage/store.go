package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tendaim/epifit/internal/epi"
)

// Store keeps one directory per run under a base data directory:
// metadata.json plus results.csv with the per-day series.
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID           string    `json:"id"`
	Label        string    `json:"label"`
	Timestamp    time.Time `json:"timestamp"`
	Seed         int64     `json:"seed"`
	PopSize      int       `json:"pop_size"`
	StartDay     string    `json:"start_day"`
	EndDay       string    `json:"end_day"`
	Beta         float64   `json:"beta"`
	RelDeathProb float64   `json:"rel_death_prob"`
	Mismatch     *float64  `json:"mismatch,omitempty"`
}

func (s *Store) Save(pars epi.Params, result *epi.Result, mismatch *float64) (string, error) {
	label := result.Label
	if label == "" {
		label = "run"
	}
	runID := fmt.Sprintf("%s_%d", sanitize(label), time.Now().UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:           runID,
		Label:        result.Label,
		Timestamp:    time.Now(),
		Seed:         pars.Seed,
		PopSize:      pars.PopSize,
		StartDay:     pars.StartDay.Format(epi.DateLayout),
		EndDay:       pars.EndDay.Format(epi.DateLayout),
		Beta:         pars.Beta,
		RelDeathProb: pars.RelDeathProb,
		Mismatch:     mismatch,
	}

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "results.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	if err := WriteSeriesCSV(csvFile, result); err != nil {
		return "", err
	}
	return runID, nil
}

// WriteSeriesCSV writes a result's series as date + one column per
// series.
func WriteSeriesCSV(f io.Writer, result *epi.Result) error {
	w := csv.NewWriter(f)
	defer w.Flush()

	header := append([]string{"date"}, epi.SeriesNames...)
	if err := w.Write(header); err != nil {
		return err
	}

	for d := 0; d < result.Days(); d++ {
		row := []string{result.Dates[d].Format(epi.DateLayout)}
		for _, name := range epi.SeriesNames {
			row = append(row, strconv.FormatFloat(result.Series[name][d], 'f', 2, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.baseDir, entry.Name(), "metadata.json"))
		if err != nil {
			continue
		}
		var meta RunMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		runs = append(runs, meta)
	}
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadResult reads a saved run back into a result.
func (s *Store) LoadResult(runID string) (*epi.Result, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.baseDir, runID, "results.csv"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("run %s has no data", runID)
	}

	header := records[0]
	result := &epi.Result{
		Label:  meta.Label,
		Series: make(map[string][]float64),
	}
	for _, rec := range records[1:] {
		if len(rec) != len(header) {
			continue
		}
		t, err := time.Parse(epi.DateLayout, rec[0])
		if err != nil {
			return nil, fmt.Errorf("run %s: bad date %q", runID, rec[0])
		}
		result.Dates = append(result.Dates, t)
		for i := 1; i < len(rec); i++ {
			v, err := strconv.ParseFloat(rec[i], 64)
			if err != nil {
				return nil, fmt.Errorf("run %s: bad value %q", runID, rec[i])
			}
			result.Series[header[i]] = append(result.Series[header[i]], v)
		}
	}
	return result, nil
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
