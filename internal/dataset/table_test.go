package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowFeaturesOrder(t *testing.T) {
	row := Row{
		Timestamp: time.Date(2024, 3, 15, 13, 0, 0, 0, time.UTC), // a Friday
		Temp:      25.5,
		Humidity:  60,
		Pressure:  1008,
		WindSpeed: 3.2,
		Dew:       12,
		PM25:      85,
	}

	features := row.Features()
	require.Len(t, features, len(FeatureColumns))
	assert.Equal(t, []float64{13, 5, 3, 2024, 25.5, 60, 1008, 3.2, 12, 85}, features)
}

func TestTableValidateStationMismatch(t *testing.T) {
	table := &Table{
		Station: "islamabad",
		Rows: []Row{
			{Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Station: "lahore"},
		},
	}
	assert.Error(t, table.Validate())
}

func TestTableValidateDuplicateTimestamp(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	table := &Table{Rows: []Row{{Timestamp: ts}, {Timestamp: ts}}}
	assert.Error(t, table.Validate())
}

func TestTableMatrix(t *testing.T) {
	table := hourlyTable(5)
	matrix := table.Matrix([]int{0, 2})
	require.Len(t, matrix, 2)
	assert.Equal(t, table.Rows[0].Features(), matrix[0])
	assert.Equal(t, table.Rows[2].Features(), matrix[1])
}
