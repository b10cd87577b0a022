package bqpipeline

import (
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/google/go-cmp/cmp"
)

func TestParseJobOptions(t *testing.T) {
	o, err := ParseJobOptions(map[string]interface{}{
		OptDescription:       "orders",
		OptWriteDisposition:  "write_append",
		OptSchemaRelax:       "true",
		OptTimePartitioning:  "DAY",
		OptPartitionField:    "order_date",
		OptLabels:            map[string]interface{}{"env": "prod"},
		OptAutodetect:        false,
		OptCreateDisposition: nil,
		"unknown":            123,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := JobOptions{
		Description:       "orders",
		WriteDisposition:  "write_append",
		SchemaRelax:       true,
		TimePartitioning:  "DAY",
		PartitionField:    "order_date",
		Labels:            map[string]string{"env": "prod"},
		DisableAutoDetect: true,
	}
	if diff := cmp.Diff(expected, o); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestParseJobOptions_Schema(t *testing.T) {
	o, err := ParseJobOptions(map[string]interface{}{
		OptSchemaFields: `[{"name":"order_id","type":"INTEGER"},{"name":"ship_city","type":"STRING"}]`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(o.Schema) != 2 {
		t.Fatalf("schema should have 2 fields, but %d", len(o.Schema))
	}
	if o.Schema[0].Name != "order_id" || o.Schema[0].Type != bigquery.IntegerFieldType {
		t.Errorf("unexpected first field: %+v", o.Schema[0])
	}

	if _, err := ParseJobOptions(map[string]interface{}{OptSchemaFields: 1}); err == nil {
		t.Errorf("unsupported schema should fail")
	}
}

func TestNewLoadJobConfig_Defaults(t *testing.T) {
	c := NewLoadJobConfig(JobOptions{})

	if c.CreateDisposition != bigquery.CreateIfNeeded {
		t.Errorf("create disposition should be CREATE_IF_NEEDED, but %s", c.CreateDisposition)
	}
	if !c.AutoDetect {
		t.Errorf("autodetect should be on by default")
	}
	if c.TimePartitioning != nil {
		t.Errorf("time partitioning should be absent, but %+v", c.TimePartitioning)
	}
	if c.SchemaUpdateOptions != nil {
		t.Errorf("schema update options should be absent, but %v", c.SchemaUpdateOptions)
	}
	if c.hasTableMetadata() {
		t.Errorf("no table metadata should be synced")
	}
}

func TestNewLoadJobConfig_SchemaRelax(t *testing.T) {
	cases := map[string]struct {
		relax  bool
		expect []string
	}{
		"relax":    {true, []string{"ALLOW_FIELD_ADDITION"}},
		"no relax": {false, nil},
	}

	for name, c := range cases {
		c := c
		t.Run(name, func(t *testing.T) {
			got := NewLoadJobConfig(JobOptions{SchemaRelax: c.relax}).SchemaUpdateOptions
			if diff := cmp.Diff(c.expect, got); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestNewLoadJobConfig_TimePartitioning(t *testing.T) {
	cases := []struct {
		in     string
		expect bigquery.TimePartitioningType
	}{
		{"day", bigquery.DayPartitioningType},
		{"DAY", bigquery.DayPartitioningType},
		{"Hour", bigquery.HourPartitioningType},
		{"month", bigquery.MonthPartitioningType},
		{"YEAR", bigquery.YearPartitioningType},
		{"week", bigquery.TimePartitioningType("WEEK")},
	}

	for _, c := range cases {
		tp := NewLoadJobConfig(JobOptions{TimePartitioning: c.in, PartitionField: "order_date"}).TimePartitioning
		if tp == nil {
			t.Fatalf("%s: time partitioning should be set", c.in)
		}
		if tp.Type != c.expect {
			t.Errorf("%s: type should be %s, but %s", c.in, c.expect, tp.Type)
		}
		if tp.Field != "order_date" {
			t.Errorf("%s: field should be order_date, but %s", c.in, tp.Field)
		}
	}
}

func TestNewLoadJobConfig_Dispositions(t *testing.T) {
	c := NewLoadJobConfig(JobOptions{
		CreateDisposition: "create_never",
		WriteDisposition:  "write_truncate",
	})

	if c.CreateDisposition != bigquery.CreateNever {
		t.Errorf("create disposition should be CREATE_NEVER, but %s", c.CreateDisposition)
	}
	if c.WriteDisposition != bigquery.WriteTruncate {
		t.Errorf("write disposition should be WRITE_TRUNCATE, but %s", c.WriteDisposition)
	}
}

func TestLoadJobConfig_Apply(t *testing.T) {
	schema := bigquery.Schema{{Name: "order_id", Type: bigquery.IntegerFieldType}}
	labels := map[string]string{"env": "prod"}

	base := NewLoadJobConfig(JobOptions{Schema: schema, Labels: labels, SchemaRelax: true})
	c := base.withSource(bigquery.CSV, FileOptions{Delimiter: ";", Encoding: "ISO-8859-1", SkipRows: 1})

	var fc bigquery.FileConfig
	c.applyFileConfig(&fc)

	if fc.SourceFormat != bigquery.CSV || fc.FieldDelimiter != ";" || fc.SkipLeadingRows != 1 {
		t.Errorf("unexpected file config: %+v", fc)
	}
	if fc.Encoding != bigquery.ISO_8859_1 {
		t.Errorf("encoding should be ISO-8859-1, but %s", fc.Encoding)
	}
	if fc.AutoDetect {
		t.Errorf("autodetect should be off when the schema is given")
	}

	var l bigquery.Loader
	c.applyLoader(&l)
	if diff := cmp.Diff([]string{"ALLOW_FIELD_ADDITION"}, l.SchemaUpdateOptions); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	c.Labels["env"] = "dev"
	if base.Labels["env"] != "prod" {
		t.Errorf("withSource should not share labels with the base config")
	}
	labels["env"] = "dev"
	if base.Labels["env"] != "prod" {
		t.Errorf("NewLoadJobConfig should not share labels with options")
	}
}
