package bqpipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Extractor extracts data from BigQuery into Datasets.
type Extractor struct {
	warehouse Warehouse
}

// NewExtractor builds an Extractor.
func NewExtractor(w Warehouse) *Extractor {
	return &Extractor{warehouse: w}
}

// Extract runs the query and returns the result.
func (e *Extractor) Extract(ctx context.Context, query string) (*Dataset, error) {
	l := log.Ctx(ctx)

	ds, err := e.warehouse.Query(ctx, query)
	if err != nil {
		l.Error().Err(err).Str("query", query).Msg("Error running query")
		return nil, &QueryError{Query: query, Err: err}
	}

	l.Debug().Int("rows", ds.Len()).Msg("query finished")

	return ds, nil
}

// ExtractTable returns all rows of the table.
func (e *Extractor) ExtractTable(ctx context.Context, t Table) (*Dataset, error) {
	return e.Extract(ctx, fmt.Sprintf("SELECT * FROM %s", t.quoted()))
}
