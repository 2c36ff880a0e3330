package epi

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// Data holds an observed datafile: one row per day, a date column plus
// numeric columns (new_tests, new_diagnoses, new_deaths, ...). Blank
// cells are kept as NaN.
type Data struct {
	Dates   []time.Time
	Columns map[string][]float64
	order   []string
}

func LoadData(path string) (*Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("datafile %s has no rows", path)
	}

	header := records[0]
	dateCol := -1
	for i, name := range header {
		if strings.TrimSpace(name) == "date" {
			dateCol = i
			break
		}
	}
	if dateCol < 0 {
		return nil, fmt.Errorf("datafile %s has no date column", path)
	}

	d := &Data{Columns: make(map[string][]float64)}
	for i, name := range header {
		if i == dateCol {
			continue
		}
		d.order = append(d.order, strings.TrimSpace(name))
	}

	for _, rec := range records[1:] {
		if len(rec) <= dateCol {
			continue
		}
		t, err := time.Parse(DateLayout, strings.TrimSpace(rec[dateCol]))
		if err != nil {
			return nil, fmt.Errorf("datafile %s: bad date %q", path, rec[dateCol])
		}
		d.Dates = append(d.Dates, t)

		for i, name := range header {
			if i == dateCol {
				continue
			}
			name = strings.TrimSpace(name)
			v := math.NaN()
			if i < len(rec) {
				cell := strings.TrimSpace(rec[i])
				if cell != "" {
					v, err = strconv.ParseFloat(cell, 64)
					if err != nil {
						return nil, fmt.Errorf("datafile %s: bad value %q in %s", path, cell, name)
					}
				}
			}
			d.Columns[name] = append(d.Columns[name], v)
		}
	}

	return d, nil
}

func (d *Data) Column(name string) ([]float64, bool) {
	c, ok := d.Columns[name]
	return c, ok
}

// ColumnNames returns the numeric columns in file order.
func (d *Data) ColumnNames() []string { return d.order }

func (d *Data) Days() int { return len(d.Dates) }
