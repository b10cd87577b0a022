package bqpipeline

import (
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/spf13/cast"
	"golang.org/x/xerrors"
)

// Keys recognized by ParseJobOptions.
const (
	OptSchemaFields      = "schema_fields"
	OptDescription       = "description"
	OptCreateDisposition = "create_disposition"
	OptWriteDisposition  = "write_disposition"
	OptAutodetect        = "autodetect"
	OptSchemaRelax       = "schema_relax"
	OptTimePartitioning  = "time_partitioning"
	OptPartitionField    = "partition_field"
	OptLabels            = "labels"
)

const allowFieldAddition = "ALLOW_FIELD_ADDITION"

// JobOptions is a generic option set for load jobs.
// The zero value loads with CREATE_IF_NEEDED, schema auto detection and no partitioning.
type JobOptions struct {
	Schema            bigquery.Schema
	Description       string
	CreateDisposition string
	WriteDisposition  string

	// DisableAutoDetect turns off schema auto detection, which is on by default.
	DisableAutoDetect bool

	// SchemaRelax allows the load job to add new fields to the destination schema.
	SchemaRelax bool

	// TimePartitioning is one of day, hour, month or year. Empty means no partitioning.
	TimePartitioning string
	PartitionField   string

	// Labels are set on the destination table after a successful load.
	Labels map[string]string
}

// ParseJobOptions converts a configuration map into JobOptions.
// Unrecognized keys are ignored.
func ParseJobOptions(m map[string]interface{}) (JobOptions, error) {
	var o JobOptions

	for k, v := range m {
		if v == nil {
			continue
		}

		var err error

		switch k {
		case OptSchemaFields:
			o.Schema, err = toSchema(v)
		case OptDescription:
			o.Description, err = cast.ToStringE(v)
		case OptCreateDisposition:
			o.CreateDisposition, err = cast.ToStringE(v)
		case OptWriteDisposition:
			o.WriteDisposition, err = cast.ToStringE(v)
		case OptAutodetect:
			var b bool
			b, err = cast.ToBoolE(v)
			o.DisableAutoDetect = !b
		case OptSchemaRelax:
			o.SchemaRelax, err = cast.ToBoolE(v)
		case OptTimePartitioning:
			o.TimePartitioning, err = cast.ToStringE(v)
		case OptPartitionField:
			o.PartitionField, err = cast.ToStringE(v)
		case OptLabels:
			o.Labels, err = cast.ToStringMapStringE(v)
		default:
			continue
		}

		if err != nil {
			return JobOptions{}, xerrors.Errorf("invalid job option %s: %w", k, err)
		}
	}

	return o, nil
}

func toSchema(v interface{}) (bigquery.Schema, error) {
	switch s := v.(type) {
	case bigquery.Schema:
		return s, nil
	case []*bigquery.FieldSchema:
		return bigquery.Schema(s), nil
	case string:
		return bigquery.SchemaFromJSON([]byte(s))
	case []byte:
		return bigquery.SchemaFromJSON(s)
	default:
		return nil, xerrors.Errorf("unsupported schema type %T", v)
	}
}

// LoadJobConfig is a load job descriptor built by NewLoadJobConfig.
// A LoadJobConfig is passed by value and never modified after it is built.
type LoadJobConfig struct {
	Schema              bigquery.Schema
	Description         string
	CreateDisposition   bigquery.TableCreateDisposition
	WriteDisposition    bigquery.TableWriteDisposition
	AutoDetect          bool
	SchemaUpdateOptions []string
	TimePartitioning    *bigquery.TimePartitioning
	Labels              map[string]string

	SourceFormat    bigquery.DataFormat
	FieldDelimiter  string
	Encoding        bigquery.Encoding
	SkipLeadingRows int64
}

// NewLoadJobConfig builds a LoadJobConfig from JobOptions.
// Invalid dispositions and partitioning types are passed through and rejected by BigQuery.
func NewLoadJobConfig(o JobOptions) LoadJobConfig {
	c := LoadJobConfig{
		Schema:            cloneSchema(o.Schema),
		Description:       o.Description,
		CreateDisposition: bigquery.CreateIfNeeded,
		WriteDisposition:  bigquery.TableWriteDisposition(strings.ToUpper(o.WriteDisposition)),
		AutoDetect:        !o.DisableAutoDetect,
		Labels:            cloneLabels(o.Labels),
	}

	if o.CreateDisposition != "" {
		c.CreateDisposition = bigquery.TableCreateDisposition(strings.ToUpper(o.CreateDisposition))
	}

	if o.SchemaRelax {
		c.SchemaUpdateOptions = []string{allowFieldAddition}
	}

	if o.TimePartitioning != "" {
		c.TimePartitioning = &bigquery.TimePartitioning{
			Type:  partitioningType(o.TimePartitioning),
			Field: o.PartitionField,
		}
	}

	return c
}

func partitioningType(s string) bigquery.TimePartitioningType {
	switch strings.ToLower(s) {
	case "day":
		return bigquery.DayPartitioningType
	case "hour":
		return bigquery.HourPartitioningType
	case "month":
		return bigquery.MonthPartitioningType
	case "year":
		return bigquery.YearPartitioningType
	default:
		return bigquery.TimePartitioningType(strings.ToUpper(s))
	}
}

// withSource returns a copy of c with source file settings.
func (c LoadJobConfig) withSource(format bigquery.DataFormat, fo FileOptions) LoadJobConfig {
	c.Schema = cloneSchema(c.Schema)
	c.SchemaUpdateOptions = append([]string(nil), c.SchemaUpdateOptions...)
	c.Labels = cloneLabels(c.Labels)
	if c.TimePartitioning != nil {
		tp := *c.TimePartitioning
		c.TimePartitioning = &tp
	}

	c.SourceFormat = format
	c.FieldDelimiter = fo.Delimiter
	c.Encoding = bigquery.Encoding(fo.Encoding)
	c.SkipLeadingRows = int64(fo.SkipRows)

	return c
}

// applyLoader applies job level settings.
func (c LoadJobConfig) applyLoader(l *bigquery.Loader) {
	l.CreateDisposition = c.CreateDisposition
	l.WriteDisposition = c.WriteDisposition
	l.SchemaUpdateOptions = c.SchemaUpdateOptions
	l.TimePartitioning = c.TimePartitioning
}

// applyFileConfig applies source level settings.
func (c LoadJobConfig) applyFileConfig(fc *bigquery.FileConfig) {
	fc.SourceFormat = c.SourceFormat
	fc.Schema = c.Schema
	fc.AutoDetect = c.AutoDetect && len(c.Schema) == 0
	fc.FieldDelimiter = c.FieldDelimiter
	fc.Encoding = c.Encoding
	fc.SkipLeadingRows = c.SkipLeadingRows
}

// hasTableMetadata reports whether the destination table metadata needs to be synced after loading.
func (c LoadJobConfig) hasTableMetadata() bool {
	return len(c.Labels) > 0 || c.Description != ""
}

func cloneSchema(s bigquery.Schema) bigquery.Schema {
	if s == nil {
		return nil
	}
	return append(bigquery.Schema(nil), s...)
}

func cloneLabels(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
