package bqpipeline

import (
	"context"
	"regexp"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
)

// Stage names.
const (
	StageRaw     = "raw"
	StageTrusted = "trusted"
)

// Stage is a destination table of a pipeline and the checks validating it.
type Stage struct {
	// Table is the destination table ID. It is also the name of the validation scan.
	Table string

	// ChecksSubpath is the directory of check files for the validation scan.
	ChecksSubpath string

	// Options configures the load job. WriteDisposition defaults to Pipeline.WriteDisposition.
	Options JobOptions
}

// Transformer transforms raw data into trusted data.
type Transformer func(context.Context, *Dataset) (*Dataset, error)

// Pipeline defines a raw and trusted load of a source file.
//
// The steps are fixed:
// read Source, load into Raw, validate Raw, extract Raw from BigQuery,
// transform, load into Trusted and validate Trusted.
// Any failure stops the pipeline. Loaded data are not rolled back.
type Pipeline struct {
	// Name is the pipeline name used in logs and notifications.
	Name string

	// Project specifies GCP project name of destination BigQuery tables.
	Project string

	// Dataset specifies BigQuery dataset ID of destination tables.
	Dataset string

	// Source is a local path or gs:// URI of the source file.
	// Handle overrides it with the object of the event.
	Source string

	// Pattern selects Cloud Storage objects handled by this pipeline.
	Pattern *regexp.Regexp

	Raw     Stage
	Trusted Stage

	WriteDisposition string

	Transformer Transformer
	Notifier    Notifier
}

func (p *Pipeline) match(name string) bool {
	return p.Pattern != nil && p.Pattern.MatchString(name)
}

func (p *Pipeline) validate() error {
	switch {
	case p.Project == "":
		return xerrors.New("project is required")
	case p.Dataset == "":
		return xerrors.New("dataset is required")
	case p.Raw.Table == "" || p.Trusted.Table == "":
		return xerrors.New("raw and trusted tables are required")
	case p.Transformer == nil:
		return xerrors.New("transformer is required")
	}
	return nil
}

func (p *Pipeline) options(s Stage) JobOptions {
	o := s.Options
	if o.WriteDisposition == "" {
		o.WriteDisposition = p.WriteDisposition
	}
	return o
}

func (r *runner) run(ctx context.Context, p *Pipeline) error {
	l := log.Ctx(ctx)
	loader := NewLoader(p.Project, r.warehouse)
	extractor := NewExtractor(r.warehouse)
	rawTable := Table{Project: p.Project, Dataset: p.Dataset, Table: p.Raw.Table}

	l.Info().Msgf("Starting %s pipeline", p.Name)

	l.Info().Str("source", p.Source).Msg("Reading source file")
	raw, err := r.reader.Read(ctx, p.Source)
	if err != nil {
		return xerrors.Errorf("failed to read source %s: %w", p.Source, err)
	}
	l.Info().Int("rows", raw.Len()).Msg("Source file read")

	if err := loader.LoadDataset(ctx, raw, p.Dataset, p.Raw.Table, p.options(p.Raw)); err != nil {
		return xerrors.Errorf("failed to load raw data: %w", err)
	}

	if err := r.validate(ctx, StageRaw, p.Raw); err != nil {
		return err
	}

	l.Info().Str("table", rawTable.String()).Msg("Extracting raw data from BigQuery")
	extracted, err := extractor.ExtractTable(ctx, rawTable)
	if err != nil {
		return xerrors.Errorf("failed to extract raw data: %w", err)
	}
	l.Info().Int("rows", extracted.Len()).Msg("Raw data extracted successfully")

	l.Info().Msg("Transforming the raw data")
	trusted, err := p.Transformer(ctx, extracted)
	if err != nil {
		return xerrors.Errorf("failed to transform raw data: %w", err)
	}
	l.Info().Int("rows", trusted.Len()).Msg("Raw data successfully transformed")

	if err := loader.LoadDataset(ctx, trusted, p.Dataset, p.Trusted.Table, p.options(p.Trusted)); err != nil {
		return xerrors.Errorf("failed to load trusted data: %w", err)
	}

	return r.validate(ctx, StageTrusted, p.Trusted)
}

func (r *runner) validate(ctx context.Context, name string, s Stage) error {
	l := log.Ctx(ctx).With().Str("stage", name).Str("scan", s.Table).Logger()

	l.Info().Msgf("Running validation scan %s", s.Table)

	if err := r.validator.Validate(ctx, s.Table, s.ChecksSubpath); err != nil {
		l.Error().Err(err).Msg("validation scan failed")
		return &ValidationError{Stage: name, Scan: s.Table, Err: err}
	}

	l.Info().Msgf("Validation scan %s completed", s.Table)

	return nil
}
