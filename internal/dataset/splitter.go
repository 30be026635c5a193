package dataset

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Horizon is a forward forecast offset in whole hours.
type Horizon int

// Hours returns the offset as an int for shifting and labeling.
func (h Horizon) Hours() int { return int(h) }

func (h Horizon) String() string { return fmt.Sprintf("%dh", int(h)) }

// Partition is the temporal train/test split for one horizon. Rows are in
// timestamp order and every train row precedes every test row in time.
type Partition struct {
	Horizon Horizon

	TrainFeatures [][]float64
	TrainTarget   []float64
	TestFeatures  [][]float64
	TestTarget    []float64

	// TrainEnd / TestStart bound the temporal split, kept for diagnostics.
	TrainRows int
	TestRows  int
}

// Splitter produces per-horizon partitions from a time-ordered feature table.
type Splitter struct {
	ratio float64
}

// NewSplitter creates a splitter with the given train fraction in (0,1).
func NewSplitter(ratio float64) (*Splitter, error) {
	if ratio <= 0 || ratio >= 1 {
		return nil, fmt.Errorf("split ratio must be in (0,1), got %v", ratio)
	}
	return &Splitter{ratio: ratio}, nil
}

// Split computes the forward-shifted target for each horizon, keeps only rows
// whose shifted value exists, and splits the survivors temporally. Horizons
// with no labeled rows are omitted from the result: that is the normal
// early-lifecycle state, not an error. Horizons never affect each other's row
// counts because the shift and filter run independently per horizon.
func (s *Splitter) Split(table *Table, horizons []Horizon) (map[Horizon]Partition, error) {
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid feature table: %w", err)
	}

	n := len(table.Rows)
	out := make(map[Horizon]Partition, len(horizons))

	for _, h := range horizons {
		offset := h.Hours()
		if offset <= 0 {
			return nil, fmt.Errorf("horizon must be a positive hour offset, got %d", offset)
		}

		// Row i is labeled with the index observed offset hours later,
		// i.e. row i+offset of the hourly series.
		valid := n - offset
		if valid <= 0 {
			log.Info().
				Str("horizon", h.String()).
				Int("rows", n).
				Msg("no rows with a resolved future label yet, horizon skipped")
			continue
		}

		indices := make([]int, valid)
		target := make([]float64, valid)
		for i := 0; i < valid; i++ {
			indices[i] = i
			target[i] = table.Rows[i+offset].AQI
		}

		splitIdx := int(s.ratio * float64(valid))
		part := Partition{
			Horizon:       h,
			TrainFeatures: table.Matrix(indices[:splitIdx]),
			TrainTarget:   target[:splitIdx],
			TestFeatures:  table.Matrix(indices[splitIdx:]),
			TestTarget:    target[splitIdx:],
			TrainRows:     splitIdx,
			TestRows:      valid - splitIdx,
		}
		out[h] = part

		log.Debug().
			Str("horizon", h.String()).
			Int("train", part.TrainRows).
			Int("test", part.TestRows).
			Msg("horizon partitioned")
	}

	return out, nil
}
