package bqpipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"io"

	"github.com/extrame/xls"
	"gitlab.com/osaki-lab/iowrapper"
	"golang.org/x/xerrors"
)

var errXLSNoSheet = errors.New("no sheet found")

// Parser parses source files into records.
type Parser func(context.Context, io.Reader) ([][]string, error)

// CSVParser provides a parser to parse CSV files.
func CSVParser() Parser {
	return DelimitedParser(',')
}

// DelimitedParser provides a parser to parse delimited text files.
func DelimitedParser(comma rune) Parser {
	return func(_ context.Context, r io.Reader) ([][]string, error) {
		cr := csv.NewReader(r)
		cr.Comma = comma
		cr.FieldsPerRecord = -1

		records, err := cr.ReadAll()
		if err != nil {
			return nil, xerrors.Errorf("failed to read delimited text: %w", err)
		}

		return records, nil
	}
}

// XLSParser provides a parser to parse the sheet of Excel 97-2003 workbooks.
func XLSParser(sheetIndex int) Parser {
	getRow := func(sheet *xls.WorkSheet, row int) (r *xls.Row, ok bool) {
		defer func() {
			if recover() != nil {
				r, ok = nil, false
			}
		}()

		r = sheet.Row(row)

		return r, r != nil
	}

	return func(_ context.Context, r io.Reader) ([][]string, error) {
		wb, err := xls.OpenReader(iowrapper.NewSeeker(r), "utf-8")
		if err != nil {
			return nil, xerrors.Errorf("failed to open xls file: %w", err)
		}

		sheet := wb.GetSheet(sheetIndex)
		if sheet == nil {
			return nil, errXLSNoSheet
		}

		records := [][]string{}

		for i := 0; i <= int(sheet.MaxRow); i++ {
			row, ok := getRow(sheet, i)
			if !ok {
				continue
			}

			record := []string{}
			for colNum := 0; colNum < row.LastCol(); colNum++ {
				record = append(record, row.Col(colNum))
			}

			records = append(records, record)
		}

		return records, nil
	}
}
