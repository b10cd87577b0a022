package bqpipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

type testJob struct {
	id  string
	err error
}

func (j *testJob) ID() string { return j.id }

func (j *testJob) Wait(context.Context) error { return j.err }

type testLoad struct {
	req     *LoadRequest
	records []map[string]interface{}
}

type testWarehouse struct {
	loads   []testLoad
	queries []string
	updates []TableMetadataUpdate

	metadata map[string]*TableMetadata
	results  map[string]*Dataset

	loadErr  error
	jobErr   error
	queryErr error
}

func newTestWarehouse() *testWarehouse {
	return &testWarehouse{
		metadata: map[string]*TableMetadata{},
		results:  map[string]*Dataset{},
	}
}

func (w *testWarehouse) Load(_ context.Context, req *LoadRequest) (LoadJob, error) {
	if w.loadErr != nil {
		return nil, w.loadErr
	}

	l := testLoad{req: req}
	if req.Source != nil {
		s := bufio.NewScanner(req.Source)
		for s.Scan() {
			var r map[string]interface{}
			if err := json.Unmarshal(s.Bytes(), &r); err != nil {
				return nil, err
			}
			l.records = append(l.records, r)
		}
	}
	w.loads = append(w.loads, l)

	// Loaded rows become queryable as SELECT * FROM the table.
	if len(req.URIs) == 0 {
		w.results["SELECT * FROM "+req.Destination.quoted()] = datasetFromRecords(req.Config.Schema, l.records)
	}

	if _, ok := w.metadata[req.Destination.String()]; !ok {
		w.metadata[req.Destination.String()] = &TableMetadata{Labels: map[string]string{}}
	}

	return &testJob{id: "job_" + req.Destination.Table, err: w.jobErr}, nil
}

func (w *testWarehouse) Query(_ context.Context, q string) (*Dataset, error) {
	w.queries = append(w.queries, q)
	if w.queryErr != nil {
		return nil, w.queryErr
	}
	if ds, ok := w.results[q]; ok {
		return ds, nil
	}
	return nil, errors.New("unexpected query: " + q)
}

func (w *testWarehouse) QueryIn(ctx context.Context, _, _, q string) (*Dataset, error) {
	return w.Query(ctx, q)
}

func (w *testWarehouse) TableMetadata(_ context.Context, t Table) (*TableMetadata, error) {
	md, ok := w.metadata[t.String()]
	if !ok {
		return nil, errors.New("table not found: " + t.String())
	}
	return md, nil
}

func (w *testWarehouse) UpdateTableMetadata(_ context.Context, t Table, u TableMetadataUpdate) error {
	w.updates = append(w.updates, u)

	md := w.metadata[t.String()]
	if u.Description != nil {
		md.Description = *u.Description
	}
	for k, v := range u.Labels {
		md.Labels[k] = v
	}

	return nil
}

// datasetFromRecords rebuilds a Dataset from decoded NDJSON like BigQuery would return it.
func datasetFromRecords(schema bigquery.Schema, records []map[string]interface{}) *Dataset {
	ds := datasetFromSchema(schema)
	for _, r := range records {
		row := make([]bigquery.Value, len(schema))
		for j, f := range schema {
			row[j] = fromJSON(r[f.Name], f.Type)
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds
}

func fromJSON(v interface{}, t bigquery.FieldType) bigquery.Value {
	if v == nil {
		return nil
	}

	switch t {
	case bigquery.IntegerFieldType:
		return int64(v.(float64))
	case bigquery.TimestampFieldType:
		ts, _ := time.Parse(time.RFC3339Nano, v.(string))
		return ts
	case bigquery.DateFieldType:
		d, _ := civil.ParseDate(v.(string))
		return d
	default:
		return v
	}
}

type testReader struct {
	ds   *Dataset
	err  error
	read []string
}

func (r *testReader) Read(_ context.Context, path string) (*Dataset, error) {
	r.read = append(r.read, path)
	return r.ds, r.err
}

type testValidator struct {
	failOn map[string]error
	scans  []string
}

func (v *testValidator) Validate(_ context.Context, scan, subpath string) error {
	v.scans = append(v.scans, scan+":"+subpath)
	return v.failOn[scan]
}
