package bqpipeline

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/bigquery"
	"golang.org/x/xerrors"
	"google.golang.org/api/iterator"
)

// LoadRequest is a request to load data into a BigQuery table.
// Either Source or URIs is set.
type LoadRequest struct {
	// JobID is the prefix of the load job ID. A random suffix is appended.
	JobID       string
	Destination Table
	Config      LoadJobConfig
	Source      io.Reader
	URIs        []string
}

// LoadJob is a handle of a running load job.
type LoadJob interface {
	ID() string

	// Wait blocks until the job completes and returns the job error if any.
	Wait(context.Context) error
}

// TableMetadata is the part of table metadata managed by pipelines.
type TableMetadata struct {
	Description string
	Labels      map[string]string
	ETag        string
}

// TableMetadataUpdate describes changes of table metadata.
type TableMetadataUpdate struct {
	// Description is updated if not nil.
	Description *string

	// Labels are added or overwritten. Existing labels not in the map are never removed.
	Labels map[string]string

	// ETag makes the update conditional if not empty.
	ETag string
}

// Warehouse is the set of BigQuery operations used by Loader, Extractor and validation scans.
type Warehouse interface {
	Load(context.Context, *LoadRequest) (LoadJob, error)
	Query(context.Context, string) (*Dataset, error)

	// QueryIn runs the query with the default project and dataset
	// used to resolve unqualified table names.
	QueryIn(ctx context.Context, project, dataset, sql string) (*Dataset, error)
	TableMetadata(context.Context, Table) (*TableMetadata, error)
	UpdateTableMetadata(context.Context, Table, TableMetadataUpdate) error
}

type bigQueryWarehouse struct {
	client   *bigquery.Client
	location string
}

// NewBigQueryWarehouse builds a Warehouse backed by the BigQuery client.
// Jobs and queries run in the location if it is not empty.
func NewBigQueryWarehouse(client *bigquery.Client, location string) Warehouse {
	return &bigQueryWarehouse{client: client, location: location}
}

func (w *bigQueryWarehouse) table(t Table) *bigquery.Table {
	return w.client.DatasetInProject(t.Project, t.Dataset).Table(t.Table)
}

func (w *bigQueryWarehouse) Load(ctx context.Context, req *LoadRequest) (LoadJob, error) {
	var src bigquery.LoadSource

	switch {
	case len(req.URIs) > 0:
		ref := bigquery.NewGCSReference(req.URIs...)
		req.Config.applyFileConfig(&ref.FileConfig)
		src = ref
	case req.Source != nil:
		rs := bigquery.NewReaderSource(req.Source)
		req.Config.applyFileConfig(&rs.FileConfig)
		src = rs
	default:
		return nil, xerrors.New("load request has no source")
	}

	loader := w.table(req.Destination).LoaderFrom(src)
	req.Config.applyLoader(loader)
	loader.Location = w.location
	if req.JobID != "" {
		loader.JobID = req.JobID
		loader.AddJobIDSuffix = true
	}

	job, err := loader.Run(ctx)
	if err != nil {
		return nil, xerrors.Errorf("failed to run bigquery load job: %w", err)
	}

	return &bigQueryJob{job: job}, nil
}

func (w *bigQueryWarehouse) Query(ctx context.Context, sql string) (*Dataset, error) {
	return w.QueryIn(ctx, "", "", sql)
}

func (w *bigQueryWarehouse) QueryIn(ctx context.Context, project, dataset, sql string) (*Dataset, error) {
	q := w.client.Query(sql)
	q.Location = w.location
	q.DefaultProjectID = project
	q.DefaultDatasetID = dataset

	it, err := q.Read(ctx)
	if err != nil {
		return nil, xerrors.Errorf("unable to read query: %w", err)
	}

	var rows [][]bigquery.Value
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, xerrors.Errorf("unable to get next row: %w", err)
		}
		rows = append(rows, row)
	}

	ds := datasetFromSchema(it.Schema)
	ds.Rows = rows

	return ds, nil
}

func (w *bigQueryWarehouse) TableMetadata(ctx context.Context, t Table) (*TableMetadata, error) {
	md, err := w.table(t).Metadata(ctx)
	if err != nil {
		return nil, xerrors.Errorf("unable to fetch metadata of %s: %w", t, err)
	}

	return &TableMetadata{
		Description: md.Description,
		Labels:      md.Labels,
		ETag:        md.ETag,
	}, nil
}

func (w *bigQueryWarehouse) UpdateTableMetadata(ctx context.Context, t Table, u TableMetadataUpdate) error {
	var tmu bigquery.TableMetadataToUpdate

	if u.Description != nil {
		tmu.Description = *u.Description
	}
	for k, v := range u.Labels {
		tmu.SetLabel(k, v)
	}

	if _, err := w.table(t).Update(ctx, tmu, u.ETag); err != nil {
		return xerrors.Errorf("unable to update metadata of %s: %w", t, err)
	}

	return nil
}

type bigQueryJob struct {
	job *bigquery.Job
}

func (j *bigQueryJob) ID() string {
	return j.job.ID()
}

func (j *bigQueryJob) Wait(ctx context.Context) error {
	status, err := j.job.Wait(ctx)
	if err != nil {
		return xerrors.Errorf("failed to wait job %s: %w", j.job.ID(), err)
	}

	if status != nil && status.Err() != nil {
		return xerrors.Errorf("job %s completed with error %v: %w", j.job.ID(), status.Errors, status.Err())
	}

	return nil
}
