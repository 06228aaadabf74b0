// Package export writes per-round neighbourhood estimates to tabular sinks.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/pierrec/lz4/v4"
)

// lz4Suffix marks output paths that should be LZ4-compressed.
const lz4Suffix = ".lz4"

// estimateFormatPrecision is the shortest round-trip float formatting.
const estimateFormatPrecision = -1

// NodeIdentifier resolves a dense node index to its original identifier.
type NodeIdentifier interface {
	ID(idx int32) *big.Int
}

// CSVSink appends one (round, node, estimate) record per node per round,
// flushing after every round so partial results survive interruption.
// Paths ending in ".lz4" are transparently compressed.
type CSVSink struct {
	nodes   NodeIdentifier
	writer  *csv.Writer
	closers []io.Closer
}

// NewCSVSink creates (truncating) the destination file.
func NewCSVSink(nodes NodeIdentifier, path string) (*CSVSink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("export: open sink: %w", err)
	}

	sink := &CSVSink{
		nodes:   nodes,
		closers: []io.Closer{file},
	}

	var out io.Writer = file

	if strings.HasSuffix(path, lz4Suffix) {
		zw := lz4.NewWriter(file)
		// Prepend so the compressor is closed before the file.
		sink.closers = append([]io.Closer{zw}, sink.closers...)
		out = zw
	}

	sink.writer = csv.NewWriter(out)

	return sink, nil
}

// ExportRound writes all node records for one round and flushes.
func (s *CSVSink) ExportRound(round int, estimates []float64) error {
	record := make([]string, 3)
	record[0] = strconv.Itoa(round)

	for i, estimate := range estimates {
		record[1] = s.nodes.ID(int32(i)).String()
		record[2] = strconv.FormatFloat(estimate, 'f', estimateFormatPrecision, 64)

		writeErr := s.writer.Write(record)
		if writeErr != nil {
			return fmt.Errorf("export: write round %d: %w", round, writeErr)
		}
	}

	s.writer.Flush()

	flushErr := s.writer.Error()
	if flushErr != nil {
		return fmt.Errorf("export: flush round %d: %w", round, flushErr)
	}

	return nil
}

// Close flushes buffered records and closes the underlying file.
func (s *CSVSink) Close() error {
	s.writer.Flush()

	flushErr := s.writer.Error()

	for _, c := range s.closers {
		closeErr := c.Close()
		if flushErr == nil && closeErr != nil {
			flushErr = closeErr
		}
	}

	if flushErr != nil {
		return fmt.Errorf("export: close sink: %w", flushErr)
	}

	return nil
}
