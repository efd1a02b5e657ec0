package coverage

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel parse errors.
var (
	ErrNoTotalRow     = errors.New("coverage table has no TOTAL row")
	ErrMalformedTable = errors.New("malformed coverage table row")
	ErrNoLineCounters = errors.New("coverage document has no line counters")
)

// ReportParser extracts line totals from one coverage report shape. One
// variant exists per output format; toolchains pick the parser matching the
// ecosystem's tool.
type ReportParser interface {
	// Parse returns the total measurable lines and covered lines.
	Parse(data []byte) (total, covered int, err error)
}

// TabularParser reads the plain-text summary table emitted by coverage.py's
// "coverage report": rows of "name stmts miss cover", totals in the row
// whose first column is TOTAL. Counts are extracted positionally.
type TabularParser struct{}

// Parse implements [ReportParser].
func (TabularParser) Parse(data []byte) (int, int, error) {
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 || !strings.EqualFold(fields[0], "TOTAL") {
			continue
		}

		stmts, err := strconv.Atoi(fields[1])
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %q", ErrMalformedTable, line)
		}

		missed, err := strconv.Atoi(fields[2])
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %q", ErrMalformedTable, line)
		}

		if missed > stmts {
			return 0, 0, fmt.Errorf("%w: %q", ErrMalformedTable, line)
		}

		return stmts, stmts - missed, nil
	}

	return 0, 0, ErrNoTotalRow
}

// IstanbulSummaryParser reads an istanbul coverage-summary.json document as
// produced by JS test runners ("total" → "lines" → total/covered).
type IstanbulSummaryParser struct{}

type istanbulSummary struct {
	Total struct {
		Lines struct {
			Total   int `json:"total"`
			Covered int `json:"covered"`
		} `json:"lines"`
	} `json:"total"`
}

// Parse implements [ReportParser].
func (IstanbulSummaryParser) Parse(data []byte) (int, int, error) {
	var doc istanbulSummary
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, 0, fmt.Errorf("parse coverage summary: %w", err)
	}

	return doc.Total.Lines.Total, doc.Total.Lines.Covered, nil
}

// CoberturaParser reads a Cobertura-style XML document, using the root
// element's lines-valid and lines-covered attributes.
type CoberturaParser struct{}

type coberturaDoc struct {
	LinesValid   int `xml:"lines-valid,attr"`
	LinesCovered int `xml:"lines-covered,attr"`
}

// Parse implements [ReportParser].
func (CoberturaParser) Parse(data []byte) (int, int, error) {
	var doc coberturaDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return 0, 0, fmt.Errorf("parse cobertura report: %w", err)
	}

	if doc.LinesValid == 0 {
		return 0, 0, ErrNoLineCounters
	}

	return doc.LinesValid, doc.LinesCovered, nil
}

// JacocoParser reads a JaCoCo XML report, summing the report-level LINE
// counter (missed + covered).
type JacocoParser struct{}

type jacocoDoc struct {
	Counters []struct {
		Type    string `xml:"type,attr"`
		Missed  int    `xml:"missed,attr"`
		Covered int    `xml:"covered,attr"`
	} `xml:"counter"`
}

// Parse implements [ReportParser].
func (JacocoParser) Parse(data []byte) (int, int, error) {
	var doc jacocoDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return 0, 0, fmt.Errorf("parse jacoco report: %w", err)
	}

	for _, counter := range doc.Counters {
		if counter.Type == "LINE" {
			return counter.Missed + counter.Covered, counter.Covered, nil
		}
	}

	return 0, 0, ErrNoLineCounters
}
