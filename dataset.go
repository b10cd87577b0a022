package bqpipeline

import (
	"cloud.google.com/go/bigquery"
)

// Column is a named and typed column of a Dataset.
type Column struct {
	Name string
	Type bigquery.FieldType
}

// Dataset is an in-memory table.
// Values in Rows are one of int64, float64, bool, string, time.Time, civil.Date or nil,
// in the order of Columns.
type Dataset struct {
	Columns []Column
	Rows    [][]bigquery.Value
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// Index returns the position of the column or -1.
func (d *Dataset) Index(name string) int {
	for i, c := range d.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Value returns the value of the named column in the i-th row.
func (d *Dataset) Value(i int, name string) bigquery.Value {
	j := d.Index(name)
	if j < 0 || j >= len(d.Rows[i]) {
		return nil
	}
	return d.Rows[i][j]
}

// Schema returns the BigQuery schema equivalent to the columns.
func (d *Dataset) Schema() bigquery.Schema {
	s := make(bigquery.Schema, len(d.Columns))
	for i, c := range d.Columns {
		s[i] = &bigquery.FieldSchema{Name: c.Name, Type: c.Type}
	}
	return s
}

// Records returns rows as maps keyed by column name.
func (d *Dataset) Records() []map[string]bigquery.Value {
	records := make([]map[string]bigquery.Value, len(d.Rows))
	for i, row := range d.Rows {
		r := make(map[string]bigquery.Value, len(d.Columns))
		for j, c := range d.Columns {
			if j < len(row) {
				r[c.Name] = row[j]
			} else {
				r[c.Name] = nil
			}
		}
		records[i] = r
	}
	return records
}

func datasetFromSchema(s bigquery.Schema) *Dataset {
	d := &Dataset{Columns: make([]Column, len(s))}
	for i, f := range s {
		d.Columns[i] = Column{Name: f.Name, Type: f.Type}
	}
	return d
}
