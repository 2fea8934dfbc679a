package importer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0}
)

// readGrid loads the first worksheet of an .xlsx or .xls file as trimmed
// strings. Numeric cells keep their raw value (dates as serial numbers).
func readGrid(data []byte) ([][]string, error) {
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return readXLSX(data)
	case bytes.HasPrefix(data, oleMagic):
		return readXLS(data)
	}
	return nil, fmt.Errorf("not a spreadsheet")
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in xlsx")
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

func readXLS(data []byte) ([][]string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("opening xls: %w", err)
	}
	if wb.NumSheets() == 0 {
		return nil, fmt.Errorf("no sheets found in xls")
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, fmt.Errorf("could not get first sheet")
	}

	var rows [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for c := row.FirstCol(); c < row.LastCol(); c++ {
			cells[c] = row.Col(c)
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// compact trims every cell, pads rows to a common width, and removes rows
// and columns that are entirely empty.
func compact(grid [][]string) [][]string {
	width := 0
	for _, r := range grid {
		if len(r) > width {
			width = len(r)
		}
	}

	usedCol := make([]bool, width)
	var rows [][]string
	for _, r := range grid {
		row := make([]string, width)
		empty := true
		for c, v := range r {
			v = strings.TrimSpace(v)
			row[c] = v
			if v != "" {
				empty = false
				usedCol[c] = true
			}
		}
		if !empty {
			rows = append(rows, row)
		}
	}

	out := make([][]string, len(rows))
	for i, r := range rows {
		kept := make([]string, 0, width)
		for c, v := range r {
			if usedCol[c] {
				kept = append(kept, v)
			}
		}
		out[i] = kept
	}
	return out
}
