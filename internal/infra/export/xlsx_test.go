package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/bryanwahyu/mediscan/internal/domain/analysis"
)

func TestWriteAnalyses(t *testing.T) {
	var buf bytes.Buffer
	err := WriteAnalyses(&buf, []*analysis.Result{{
		ID:          "a-1",
		ImageID:     "img-1",
		Scores:      analysis.Scores{analysis.Atelectasis: 0.5},
		OverallRisk: analysis.RiskHigh,
		AnalyzedAt:  time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC),
	}})
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "Analyzed At", rows[0][0])
	assert.Equal(t, "Atelectasis (%)", rows[0][6])
	assert.Len(t, rows[0], len(fixedHeaders)+2*len(analysis.Conditions))

	assert.Equal(t, "2025-02-03 04:05:06", rows[1][0])
	assert.Equal(t, "a-1", rows[1][1])
	assert.Equal(t, "high", rows[1][3])
	assert.Equal(t, "50", rows[1][6])
	assert.Equal(t, "medium", rows[1][7])
}
