package bqpipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"regexp"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
)

var jobIDInvalidCharsRE = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// FileOptions configures source files of LoadFile and LoadGCS.
type FileOptions struct {
	// Delimiter is the CSV field delimiter.
	Delimiter string

	// Encoding is the character encoding of the data, "UTF-8" or "ISO-8859-1".
	Encoding string

	// SkipRows is the number of leading rows to skip.
	SkipRows int
}

// Loader loads data into BigQuery tables.
type Loader struct {
	project   string
	warehouse Warehouse
}

// NewLoader builds a Loader loading into tables of the project.
func NewLoader(project string, w Warehouse) *Loader {
	return &Loader{project: project, warehouse: w}
}

func (l *Loader) destination(dataset, table string) Table {
	return Table{Project: l.project, Dataset: dataset, Table: table}
}

// LoadDataset loads an in-memory Dataset into the table.
// The dataset columns are used as the table schema unless JobOptions has Schema.
func (l *Loader) LoadDataset(ctx context.Context, ds *Dataset, dataset, table string, o JobOptions) error {
	dst := l.destination(dataset, table)

	if len(o.Schema) == 0 {
		o.Schema = ds.Schema()
	}

	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	for _, r := range ds.Records() {
		if err := enc.Encode(r); err != nil {
			return &LoadError{Table: dst, Err: xerrors.Errorf("failed to encode row: %w", err)}
		}
	}

	log.Ctx(ctx).Debug().Str("table", dst.String()).Int("rows", ds.Len()).Msg("dataset encoded")

	return l.load(ctx, &LoadRequest{
		Destination: dst,
		Config:      NewLoadJobConfig(o).withSource(bigquery.JSON, FileOptions{}),
		Source:      buf,
	})
}

// LoadJSON loads records into the table as newline delimited JSON.
func (l *Loader) LoadJSON(ctx context.Context, records []map[string]interface{}, dataset, table string, o JobOptions) error {
	dst := l.destination(dataset, table)

	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	for i, r := range records {
		if err := enc.Encode(r); err != nil {
			return &LoadError{Table: dst, Err: xerrors.Errorf("failed to encode record %d: %w", i, err)}
		}
	}

	return l.load(ctx, &LoadRequest{
		Destination: dst,
		Config:      NewLoadJobConfig(o).withSource(bigquery.JSON, FileOptions{}),
		Source:      buf,
	})
}

// LoadFile loads a local file into the table.
// format is a BigQuery source format such as csv, json, parquet or avro.
func (l *Loader) LoadFile(
	ctx context.Context,
	path, format, dataset, table string,
	fo FileOptions,
	o JobOptions,
) error {
	dst := l.destination(dataset, table)

	f, err := os.Open(path)
	if err != nil {
		return &LoadError{Table: dst, Err: xerrors.Errorf("failed to open %s: %w", path, err)}
	}
	defer f.Close()

	return l.load(ctx, &LoadRequest{
		Destination: dst,
		Config:      NewLoadJobConfig(o).withSource(SourceFormat(format), fo),
		Source:      f,
	})
}

// LoadGCS loads Cloud Storage objects into the table. uri begins with gs:// and may contain a wildcard.
func (l *Loader) LoadGCS(
	ctx context.Context,
	uri, format, dataset, table string,
	fo FileOptions,
	o JobOptions,
) error {
	return l.load(ctx, &LoadRequest{
		Destination: l.destination(dataset, table),
		Config:      NewLoadJobConfig(o).withSource(SourceFormat(format), fo),
		URIs:        []string{uri},
	})
}

// SourceFormat converts a format name into bigquery.DataFormat.
// Unknown names are passed through upper-cased.
func SourceFormat(format string) bigquery.DataFormat {
	switch strings.ToLower(format) {
	case "csv":
		return bigquery.CSV
	case "json", "newline_delimited_json", "ndjson", "jsonl":
		return bigquery.JSON
	case "avro":
		return bigquery.Avro
	case "parquet":
		return bigquery.Parquet
	case "orc":
		return bigquery.ORC
	case "datastore_backup":
		return bigquery.DatastoreBackup
	default:
		return bigquery.DataFormat(strings.ToUpper(format))
	}
}

func (l *Loader) load(ctx context.Context, req *LoadRequest) error {
	dst := req.Destination
	lg := log.Ctx(ctx).With().Str("table", dst.String()).Logger()

	if id, ok := runIDFrom(ctx); ok {
		req.JobID = jobIDInvalidCharsRE.ReplaceAllString("bqpipeline_"+id+"_"+dst.Table, "_")
	}

	job, err := l.warehouse.Load(ctx, req)
	if err != nil {
		lg.Error().Err(err).Msg("failed to submit load job")
		return &LoadError{Table: dst, Err: err}
	}

	lg.Info().Str("job", job.ID()).Msgf("Loading data into the table %s in BigQuery", dst.Table)

	if err := job.Wait(ctx); err != nil {
		lg.Error().Err(err).Str("job", job.ID()).Msg("load job failed")
		return &LoadError{Table: dst, Err: err}
	}

	lg.Info().Str("job", job.ID()).Msg("Data loaded successfully")

	if req.Config.hasTableMetadata() {
		if err := l.syncTableMetadata(ctx, dst, req.Config); err != nil {
			return &LoadError{Table: dst, Err: err}
		}
	}

	return nil
}

// syncTableMetadata updates labels and description of the table only if they differ.
func (l *Loader) syncTableMetadata(ctx context.Context, t Table, c LoadJobConfig) error {
	lg := log.Ctx(ctx)

	md, err := l.warehouse.TableMetadata(ctx, t)
	if err != nil {
		return xerrors.Errorf("failed to get table metadata: %w", err)
	}

	u := TableMetadataUpdate{ETag: md.ETag}
	changed := false

	if c.Description != "" && c.Description != md.Description {
		d := c.Description
		u.Description = &d
		changed = true
	}

	if labelsDiffer(md.Labels, c.Labels) {
		u.Labels = cloneLabels(c.Labels)
		changed = true
	}

	if !changed {
		lg.Debug().Str("table", t.String()).Msg("table metadata is up to date")
		return nil
	}

	if err := l.warehouse.UpdateTableMetadata(ctx, t, u); err != nil {
		return xerrors.Errorf("failed to update table metadata: %w", err)
	}

	lg.Info().Str("table", t.String()).Interface("labels", c.Labels).Msgf("Added labels to %s", t.Table)

	return nil
}

// labelsDiffer reports whether any desired label is missing or has another value.
// Extra existing labels are ignored; updates never remove them.
func labelsDiffer(existing, desired map[string]string) bool {
	for k, v := range desired {
		if cur, ok := existing[k]; !ok || cur != v {
			return true
		}
	}
	return false
}
