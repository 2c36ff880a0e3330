// Package export writes results to csv and xlsx files.
package export

import (
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/tendaim/epifit/internal/epi"
	"github.com/tendaim/epifit/internal/msim"
	"github.com/tendaim/epifit/internal/storage"
)

// WriteCSV writes one result's series to path.
func WriteCSV(path string, result *epi.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return storage.WriteSeriesCSV(f, result)
}

// WriteXLSX writes a workbook with one sheet per container holding its
// median (base) series, named summary_<label>.
func WriteXLSX(path string, msims []*msim.MultiSim) error {
	if len(msims) == 0 {
		return fmt.Errorf("nothing to export")
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, m := range msims {
		base := m.Base
		if base == nil {
			var err error
			base, err = m.Median()
			if err != nil {
				return fmt.Errorf("export %s: %w", m.Label, err)
			}
		}

		sheet := sheetName(m.Label)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return err
			}
		} else {
			if _, err := f.NewSheet(sheet); err != nil {
				return err
			}
		}

		if err := writeSheet(f, sheet, base); err != nil {
			return err
		}
	}

	return f.SaveAs(path)
}

func writeSheet(f *excelize.File, sheet string, r *epi.Result) error {
	header := make([]interface{}, 0, len(epi.SeriesNames)+1)
	header = append(header, "date")
	for _, name := range epi.SeriesNames {
		header = append(header, name)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for d := 0; d < r.Days(); d++ {
		row := make([]interface{}, 0, len(epi.SeriesNames)+1)
		row = append(row, r.Dates[d].Format(epi.DateLayout))
		for _, name := range epi.SeriesNames {
			row = append(row, r.Series[name][d])
		}
		cell, err := excelize.CoordinatesToCellName(1, d+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

// sheetName fits a label into Excel's 31-char sheet name limit.
func sheetName(label string) string {
	name := "summary_" + label
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if r == ' ' {
			r = '_'
		}
		out = append(out, r)
	}
	if len(out) > 31 {
		out = out[:31]
	}
	return string(out)
}
