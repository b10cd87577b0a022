package bqpipeline

import (
	"errors"
	"fmt"
)

// ErrNoCredentials is returned when no credential file is configured.
var ErrNoCredentials = errors.New("no valid credentials found for BigQuery authentication")

// CredentialError is returned when credentials cannot be resolved.
type CredentialError struct {
	Path string
	Err  error
}

func (e *CredentialError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("credential error: %v", e.Err)
	}
	return fmt.Sprintf("credential error (%s): %v", e.Path, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// LoadError is returned when a load job into BigQuery fails.
type LoadError struct {
	Table Table
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to insert data into BigQuery table %s: %v", e.Table, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// QueryError is returned when a BigQuery query fails.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("failed to run query %q: %v", e.Query, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// ValidationError is returned when a validation scan of a stage fails.
type ValidationError struct {
	Stage string
	Scan  string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation of %s stage (scan %s) failed: %v", e.Stage, e.Scan, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
