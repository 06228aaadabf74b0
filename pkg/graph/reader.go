package graph

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
)

const (
	// commentMarker prefixes lines that carry no edge data.
	commentMarker = "#"

	// maxLineBytes is the scanner buffer limit; identifiers are
	// arbitrary-precision, so lines can be long.
	maxLineBytes = 1 << 20

	// identifierBase is the radix of textual node identifiers.
	identifierBase = 10
)

var (
	// ErrMissingField is returned when an edge record has fewer than two fields.
	ErrMissingField = errors.New("graph: edge record needs two identifiers")

	// ErrBadIdentifier is returned when a field is not a non-negative decimal integer.
	ErrBadIdentifier = errors.New("graph: malformed node identifier")
)

// ReadEdges parses a whitespace-separated edge list. Lines starting with
// "#" and blank lines are skipped. Identifiers are non-negative decimal
// integers of arbitrary size. Any malformed record is a fatal parse error:
// downstream construction assumes a well-formed edge list.
func ReadEdges(r io.Reader) ([]Edge, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLineBytes)

	var edges []Edge

	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, commentMarker) {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: %w", lineNo, ErrMissingField)
		}

		from, err := parseIdentifier(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		to, err := parseIdentifier(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		edges = append(edges, Edge{From: from, To: to})
	}

	scanErr := scanner.Err()
	if scanErr != nil {
		return nil, fmt.Errorf("graph: read edge list: %w", scanErr)
	}

	return edges, nil
}

// parseIdentifier parses a non-negative arbitrary-precision decimal integer.
func parseIdentifier(field string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(field, identifierBase)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrBadIdentifier, field)
	}

	return id, nil
}
