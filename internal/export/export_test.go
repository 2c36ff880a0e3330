package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/tendaim/epifit/internal/epi"
	"github.com/tendaim/epifit/internal/msim"
)

func fakeResult(label string, values ...float64) *epi.Result {
	start, _ := time.Parse(epi.DateLayout, "2020-12-01")
	r := &epi.Result{Label: label, Series: make(map[string][]float64)}
	for i := range values {
		r.Dates = append(r.Dates, start.AddDate(0, 0, i+1))
	}
	for _, name := range epi.SeriesNames {
		r.Series[name] = append([]float64(nil), values...)
	}
	return r
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	if err := WriteCSV(path, fakeResult("csv", 1, 2, 3)); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected header + 3 rows, got %d", len(records))
	}
	if records[0][0] != "date" || records[0][1] != epi.SeriesNames[0] {
		t.Errorf("unexpected header: %v", records[0])
	}
	if records[1][0] != "2020-12-02" {
		t.Errorf("unexpected first date: %s", records[1][0])
	}
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.xlsx")

	a := msim.New("baseline vaccination", fakeResult("s0", 1, 3), fakeResult("s1", 3, 5))
	b := msim.New("vulnerable", fakeResult("s0", 2, 4), fakeResult("s1", 4, 6))

	if err := WriteXLSX(path, []*msim.MultiSim{a, b}); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open back: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 2 {
		t.Fatalf("expected 2 sheets, got %d: %v", len(sheets), sheets)
	}
	if sheets[0] != "summary_baseline_vaccination" {
		t.Errorf("unexpected sheet name: %s", sheets[0])
	}

	// Median of (1,3) is 2 for the first day of the baseline sheet.
	v, err := f.GetCellValue(sheets[0], "B2")
	if err != nil {
		t.Fatalf("cell: %v", err)
	}
	if v != "2" {
		t.Errorf("expected median 2 in B2, got %q", v)
	}
}

func TestWriteXLSXEmpty(t *testing.T) {
	if err := WriteXLSX(filepath.Join(t.TempDir(), "x.xlsx"), nil); err == nil {
		t.Error("expected error for empty export")
	}
}

func TestSheetName(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"baseline vaccination", "summary_baseline_vaccination"},
		{"high contacts", "summary_high_contacts"},
		{"a very long scenario label that overflows", "summary_a_very_long_scenario_la"},
	}

	for _, tt := range tests {
		if got := sheetName(tt.label); got != tt.want {
			t.Errorf("sheetName(%q) = %q, want %q", tt.label, got, tt.want)
		}
	}
	if n := len(sheetName("a very long scenario label that overflows")); n > 31 {
		t.Errorf("sheet name exceeds 31 chars: %d", n)
	}
}
