// Package codec is the spreadsheet boundary: bytes in, opportunity records
// out, and analyzed records back to bytes. The xlsx format itself is the
// library's problem.
package codec

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/oppscan/internal/classify"
	"github.com/sells-group/oppscan/internal/model"
)

// ReadRows reads the first sheet of an XLSX file: header row plus data rows
// as string slices.
func ReadRows(path string) ([]string, [][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "codec: open file")
	}
	return sheetRows(f)
}

// ReadRowsBytes is ReadRows over an in-memory file (uploads).
func ReadRowsBytes(data []byte) ([]string, [][]string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, nil, eris.Wrap(err, "codec: open binary")
	}
	return sheetRows(f)
}

func sheetRows(f *xlsx.File) ([]string, [][]string, error) {
	if len(f.Sheets) == 0 {
		return nil, nil, eris.New("codec: file has no sheets")
	}
	sheet := f.Sheets[0]

	var header []string
	var rows [][]string
	for i, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		if i == 0 {
			header = cells
			continue
		}
		rows = append(rows, cells)
	}
	return header, rows, nil
}

// DecodeOpportunities converts raw rows into opportunity records using the
// column mapping. Rows without an opportunity name are dropped; missing ids
// are synthesized. The original cells ride along for round-tripping.
func DecodeOpportunities(rows [][]string, cm classify.ColumnMap) []model.Opportunity {
	cell := func(row []string, idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var opps []model.Opportunity
	for _, row := range rows {
		name := cell(row, cm.Name)
		if name == "" {
			continue
		}

		opp := model.Opportunity{
			ID:          cell(row, cm.ID),
			Account:     cell(row, cm.Account),
			Name:        name,
			Description: cell(row, cm.Description),
			Industry:    cell(row, cm.Industry),
			DealSize:    cell(row, cm.DealSize),
			Total:       parseTotal(cell(row, cm.Total)),
			Source:      row,
		}
		if opp.ID == "" {
			opp.ID = uuid.New().String()[:8]
		}
		opps = append(opps, opp)
	}
	return opps
}

// parseTotal parses a currency-ish cell leniently. Unparsable values
// default to 0.
func parseTotal(s string) float64 {
	if s == "" {
		return 0
	}
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return -1
	}, s)
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}
