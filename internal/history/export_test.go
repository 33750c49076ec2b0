package history

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/argument-tutor/internal/model"
)

func TestWriteXLSX(t *testing.T) {
	ev := record("a1", model.ClaimAgree, model.StepEvidence, 0)
	rs := record("a2", model.ClaimDisagree, model.StepReasoning, 5)
	rs.Evidence = "corn yield data"

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, []model.AttemptRecord{ev, rs}))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)

	sheet := f.Sheets[0]
	assert.Equal(t, "Attempts", sheet.Name)
	require.Len(t, sheet.Rows, 3)

	header := sheet.Rows[0]
	require.Len(t, header.Cells, len(ExportHeader))
	assert.Equal(t, "Timestamp", header.Cells[0].Value)
	assert.Equal(t, "Evidence Snapshot", header.Cells[8].Value)

	first := sheet.Rows[1]
	assert.Equal(t, "2026-03-14T09:30:00Z", first.Cells[0].Value)
	assert.Equal(t, "Agree", first.Cells[1].Value)
	assert.Equal(t, "evidence", first.Cells[2].Value)
	assert.Equal(t, "text a1", first.Cells[3].Value)

	second := sheet.Rows[2]
	assert.Equal(t, "Disagree", second.Cells[1].Value)
	assert.Equal(t, "corn yield data", second.Cells[8].Value)
}

func TestWriteXLSX_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, nil))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	assert.Len(t, f.Sheets[0].Rows, 1)
}
