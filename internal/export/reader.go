package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pierrec/lz4/v4"
)

// recordFields is the exact field count of a round record.
const recordFields = 3

// ErrBadRecord is returned when a results file holds a malformed record.
var ErrBadRecord = errors.New("export: malformed result record")

// ReadRoundSums reads a results file written by CSVSink and returns the sum
// of node estimates per round, indexed by round number. Files ending in
// ".lz4" are transparently decompressed.
func ReadRoundSums(path string) ([]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("export: open results: %w", err)
	}
	defer file.Close()

	var in io.Reader = file

	if strings.HasSuffix(path, lz4Suffix) {
		in = lz4.NewReader(file)
	}

	reader := csv.NewReader(in)
	reader.FieldsPerRecord = recordFields

	var sums []float64

	for {
		record, readErr := reader.Read()
		if errors.Is(readErr, io.EOF) {
			break
		}

		if readErr != nil {
			return nil, fmt.Errorf("export: read results: %w", readErr)
		}

		round, roundErr := strconv.Atoi(record[0])
		if roundErr != nil || round < 0 {
			return nil, fmt.Errorf("%w: round %q", ErrBadRecord, record[0])
		}

		estimate, estErr := strconv.ParseFloat(record[2], 64)
		if estErr != nil {
			return nil, fmt.Errorf("%w: estimate %q", ErrBadRecord, record[2])
		}

		for len(sums) <= round {
			sums = append(sums, 0)
		}

		sums[round] += estimate
	}

	return sums, nil
}
