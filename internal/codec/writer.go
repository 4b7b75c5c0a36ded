package codec

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/oppscan/internal/model"
)

// OutputHeader is the fixed output column order.
var OutputHeader = []string{
	"Opportunity ID",
	"Account",
	"Opportunity Name",
	"Description",
	"Industry",
	"Deal Size",
	"Total",
	"AI",
	"Gen AI",
	"Analytics",
	"Tags",
	"Confidence",
	"Rationale",
}

// tagColumns are the tags that get their own yes/no presence column. The
// full tag set, Data included, is always visible in the joined Tags column.
var tagColumns = []model.Tag{model.TagAI, model.TagGenAI, model.TagAnalytics}

// WriteResults writes analyzed records as an XLSX workbook to w, in the
// fixed output column order.
func WriteResults(w io.Writer, records []model.AnalyzedOpportunity) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Analyzed Opportunities")
	if err != nil {
		return eris.Wrap(err, "codec: add sheet")
	}

	fillSheet(sheet, records)

	return eris.Wrap(f.Write(w), "codec: write workbook")
}

// WriteResultsFile writes analyzed records to an XLSX file at path.
func WriteResultsFile(path string, records []model.AnalyzedOpportunity) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Analyzed Opportunities")
	if err != nil {
		return eris.Wrap(err, "codec: add sheet")
	}
	fillSheet(sheet, records)
	return eris.Wrap(f.Save(path), "codec: save workbook")
}

func fillSheet(sheet *xlsx.Sheet, records []model.AnalyzedOpportunity) {
	headerRow := sheet.AddRow()
	for _, h := range OutputHeader {
		headerRow.AddCell().SetString(h)
	}
	for _, rec := range records {
		row := sheet.AddRow()
		row.AddCell().SetString(rec.ID)
		row.AddCell().SetString(rec.Account)
		row.AddCell().SetString(rec.Name)
		row.AddCell().SetString(rec.Description)
		row.AddCell().SetString(rec.Industry)
		row.AddCell().SetString(rec.DealSize)
		row.AddCell().SetFloat(rec.Total)
		for _, tag := range tagColumns {
			row.AddCell().SetString(yesNo(rec.HasTag(tag)))
		}
		row.AddCell().SetString(rec.JoinedTags())
		row.AddCell().SetString(fmt.Sprintf("%d%%", rec.Confidence))
		row.AddCell().SetString(rec.Rationale)
	}
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// ReadAnalyzed reads back a workbook produced by WriteResults, for the
// insights command.
func ReadAnalyzed(path string) ([]model.AnalyzedOpportunity, error) {
	header, rows, err := ReadRows(path)
	if err != nil {
		return nil, err
	}
	if len(header) < len(OutputHeader) {
		return nil, eris.Errorf("codec: expected %d output columns, got %d", len(OutputHeader), len(header))
	}

	var records []model.AnalyzedOpportunity
	for _, row := range rows {
		if len(row) < len(OutputHeader) {
			continue
		}
		total, _ := strconv.ParseFloat(row[6], 64)

		var tags []model.Tag
		for _, part := range strings.Split(row[10], ",") {
			if tag, ok := model.ParseTag(part); ok {
				tags = append(tags, tag)
			}
		}

		confidence, _ := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(row[11]), "%"))

		records = append(records, model.AnalyzedOpportunity{
			Opportunity: model.Opportunity{
				ID:          row[0],
				Account:     row[1],
				Name:        row[2],
				Description: row[3],
				Industry:    row[4],
				DealSize:    row[5],
				Total:       total,
			},
			Classification: model.Classification{
				Tags:       tags,
				Rationale:  row[12],
				Confidence: confidence,
				OK:         true,
			},
		})
	}
	return records, nil
}
