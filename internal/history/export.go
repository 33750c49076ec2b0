package history

import (
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/argument-tutor/internal/model"
)

// ExportHeader is the first row of an exported attempts sheet.
var ExportHeader = []string{
	"Timestamp", "Claim", "Step", "Text", "Label", "Passed", "Confidence", "Feedback", "Evidence Snapshot",
}

// WriteXLSX writes records as a single-sheet workbook to w.
func WriteXLSX(w io.Writer, records []model.AttemptRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Attempts")
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range ExportHeader {
		header.AddCell().SetString(h)
	}

	for _, r := range records {
		row := sheet.AddRow()
		row.AddCell().SetString(r.Timestamp.UTC().Format(time.RFC3339))
		row.AddCell().SetString(r.Claim.Display())
		row.AddCell().SetString(string(r.Step))
		row.AddCell().SetString(r.Text)
		row.AddCell().SetString(r.Label)
		row.AddCell().SetBool(r.Passed)
		row.AddCell().SetFloat(r.Confidence)
		row.AddCell().SetString(r.Feedback)
		row.AddCell().SetString(r.Evidence)
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "xlsx: write")
	}
	return nil
}
