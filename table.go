package bqpipeline

import (
	"fmt"
)

// Table identifies BigQuery table.
type Table struct {
	Project string
	Dataset string
	Table   string
}

// String returns the fully qualified table ID formatted as "project.dataset.table".
func (t Table) String() string {
	return fmt.Sprintf("%s.%s.%s", t.Project, t.Dataset, t.Table)
}

// TableGenerator returns a function building tables in the same project and dataset.
func TableGenerator(project, dataset string) func(string) Table {
	return func(table string) Table {
		return Table{Project: project, Dataset: dataset, Table: table}
	}
}

// quoted returns the table ID quoted for Standard SQL.
func (t Table) quoted() string {
	return "`" + t.String() + "`"
}
