package bqpipeline

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/araddon/dateparse"
	"golang.org/x/xerrors"
)

var dateLikeRE = regexp.MustCompile(`^\d{1,4}[-/.]\d{1,2}[-/.]\d{1,4}`)

// NewDataset builds a Dataset from records whose first record is the header.
// Column types are inferred from values: INTEGER, FLOAT, TIMESTAMP and otherwise STRING.
// Empty strings are NULL.
func NewDataset(records [][]string) (*Dataset, error) {
	if len(records) == 0 {
		return nil, xerrors.New("no header record")
	}

	header := records[0]
	body := records[1:]

	d := &Dataset{
		Columns: make([]Column, len(header)),
		Rows:    make([][]bigquery.Value, len(body)),
	}

	for j, name := range header {
		d.Columns[j] = Column{Name: strings.TrimSpace(name), Type: inferType(body, j)}
	}

	for i, r := range body {
		row := make([]bigquery.Value, len(header))
		for j := range header {
			if j >= len(r) {
				continue
			}

			v, err := convert(r[j], d.Columns[j].Type)
			if err != nil {
				return nil, xerrors.Errorf("failed to convert row %d column %s: %w", i+1, d.Columns[j].Name, err)
			}
			row[j] = v
		}
		d.Rows[i] = row
	}

	return d, nil
}

func inferType(rows [][]string, j int) bigquery.FieldType {
	isInt, isFloat, isTime, seen := true, true, true, false

	for _, r := range rows {
		if j >= len(r) || r[j] == "" {
			continue
		}
		seen = true
		s := strings.TrimSpace(r[j])

		if isInt {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if f, err := strconv.ParseFloat(s, 64); err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				isFloat = false
			}
		}
		if isTime {
			if _, err := parseTime(s); err != nil {
				isTime = false
			}
		}
	}

	switch {
	case !seen:
		return bigquery.StringFieldType
	case isInt:
		return bigquery.IntegerFieldType
	case isFloat:
		return bigquery.FloatFieldType
	case isTime:
		return bigquery.TimestampFieldType
	default:
		return bigquery.StringFieldType
	}
}

func convert(s string, t bigquery.FieldType) (bigquery.Value, error) {
	if s == "" {
		return nil, nil
	}

	switch t {
	case bigquery.IntegerFieldType:
		return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	case bigquery.FloatFieldType:
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	case bigquery.TimestampFieldType:
		return parseTime(strings.TrimSpace(s))
	default:
		return s, nil
	}
}

func parseTime(s string) (time.Time, error) {
	if !dateLikeRE.MatchString(s) {
		return time.Time{}, xerrors.Errorf("not a timestamp: %q", s)
	}
	return dateparse.ParseIn(s, time.UTC)
}
