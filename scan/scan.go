// Package scan runs data quality checks written in a subset of SodaCL against BigQuery tables.
//
// A scan project has the Soda layout:
//
//	<root>/configuration.yml
//	<root>/checks/<subpath>/*.yml
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
	"golang.org/x/xerrors"

	"go.nownabe.dev/bqpipeline"
)

// DefaultRoot is the default scan project root.
const DefaultRoot = "soda"

// Outcome is the outcome of a check.
type Outcome string

// Outcomes.
const (
	Pass  Outcome = "pass"
	Fail  Outcome = "fail"
	Error Outcome = "error"
)

// Querier runs BigQuery queries with a default project and dataset.
// bqpipeline.Warehouse satisfies it.
type Querier interface {
	QueryIn(ctx context.Context, project, dataset, sql string) (*bqpipeline.Dataset, error)
}

// CheckResult is the result of a check.
type CheckResult struct {
	Check   *Check
	Outcome Outcome
	Value   float64
	Err     error
}

// Result is the result of a scan.
type Result struct {
	Name   string
	Checks []*CheckResult
	Logs   []string
}

// ExitCode returns 0 if all checks passed, 2 if any check failed and 3 if any check errored.
func (r *Result) ExitCode() int {
	code := 0
	for _, c := range r.Checks {
		switch c.Outcome {
		case Error:
			return 3
		case Fail:
			code = 2
		}
	}
	return code
}

// Count returns the number of checks with the outcome.
func (r *Result) Count(o Outcome) int {
	n := 0
	for _, c := range r.Checks {
		if c.Outcome == o {
			n++
		}
	}
	return n
}

// LogsText returns the scan logs joined with newlines.
func (r *Result) LogsText() string {
	return strings.Join(r.Logs, "\n")
}

func (r *Result) logf(format string, args ...interface{}) {
	r.Logs = append(r.Logs, fmt.Sprintf(format, args...))
}

// FailedError is returned by Validate when a scan does not pass.
type FailedError struct {
	Result *Result
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("scan %s failed: %d failed, %d errors in %d checks (exit code %d)",
		e.Result.Name, e.Result.Count(Fail), e.Result.Count(Error), len(e.Result.Checks), e.Result.ExitCode())
}

// Scanner runs scans with the data source of the scan project.
type Scanner struct {
	// Root is the scan project root. DefaultRoot if empty.
	Root string

	// DataSource is the name of the data source in configuration.yml.
	DataSource string

	Querier Querier
}

func (s *Scanner) root() string {
	if s.Root == "" {
		return DefaultRoot
	}
	return s.Root
}

// Validate runs the scan and returns *FailedError unless all checks pass.
func (s *Scanner) Validate(ctx context.Context, scanName, checksSubpath string) error {
	res, err := s.Scan(ctx, scanName, checksSubpath)
	if err != nil {
		return err
	}

	if res.ExitCode() != 0 {
		return &FailedError{Result: res}
	}

	return nil
}

// Scan runs checks under checks/<checksSubpath> and returns the result.
// Failed checks are reported in the result, not as an error.
func (s *Scanner) Scan(ctx context.Context, scanName, checksSubpath string) (*Result, error) {
	l := log.Ctx(ctx)

	sources, err := LoadConfiguration(filepath.Join(s.root(), "configuration.yml"))
	if err != nil {
		return nil, err
	}

	ds, ok := sources[s.DataSource]
	if !ok {
		return nil, xerrors.Errorf("data source %s is not configured", s.DataSource)
	}
	if err := ds.validate(); err != nil {
		return nil, err
	}

	checks, err := loadChecks(filepath.Join(s.root(), "checks", checksSubpath))
	if err != nil {
		return nil, err
	}

	res := &Result{Name: scanName}
	res.logf("Scan %s on data source %s (%s.%s)", scanName, ds.Name, ds.ProjectID, ds.Dataset)

	for _, c := range checks {
		cr := s.run(ctx, ds, c)
		res.Checks = append(res.Checks, cr)

		switch cr.Outcome {
		case Error:
			res.logf("  ERROR %s [%s]: %v", c.Name, c.Table, cr.Err)
		case Fail:
			res.logf("  FAIL  %s [%s] value: %v", c.Name, c.Table, cr.Value)
		default:
			res.logf("  PASS  %s [%s] value: %v", c.Name, c.Table, cr.Value)
		}
	}

	res.logf("%d checks: %d passed, %d failed, %d errors",
		len(res.Checks), res.Count(Pass), res.Count(Fail), res.Count(Error))

	l.Info().Str("scan", scanName).Int("exit_code", res.ExitCode()).Msg(res.LogsText())

	return res, nil
}

func (s *Scanner) run(ctx context.Context, ds *DataSource, c *Check) *CheckResult {
	sql := c.SQL(ds.ProjectID, ds.Dataset)
	log.Ctx(ctx).Debug().Str("check", c.Name).Str("query", sql).Msg("running check")

	out, err := s.Querier.QueryIn(ctx, ds.ProjectID, ds.Dataset, sql)
	if err != nil {
		return &CheckResult{Check: c, Outcome: Error, Err: err}
	}

	if c.Metric == failedRowsCheck {
		n := out.Len()
		if n > 0 {
			return &CheckResult{Check: c, Outcome: Fail, Value: float64(n)}
		}
		return &CheckResult{Check: c, Outcome: Pass}
	}

	if out.Len() == 0 || len(out.Rows[0]) == 0 || out.Rows[0][0] == nil {
		return &CheckResult{Check: c, Outcome: Fail, Err: xerrors.New("no value")}
	}

	v, err := cast.ToFloat64E(out.Rows[0][0])
	if err != nil {
		return &CheckResult{Check: c, Outcome: Error, Err: xerrors.Errorf("metric is not numeric: %w", err)}
	}

	if !c.threshold.pass(v) {
		return &CheckResult{Check: c, Outcome: Fail, Value: v}
	}

	return &CheckResult{Check: c, Outcome: Pass, Value: v}
}

func loadChecks(dir string) ([]*Check, error) {
	var checks []*Check

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		ext := strings.ToLower(filepath.Ext(path))
		if d.IsDir() || (ext != ".yml" && ext != ".yaml") {
			return nil
		}

		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		cs, err := ParseChecks(b)
		if err != nil {
			return xerrors.Errorf("%s: %w", path, err)
		}
		checks = append(checks, cs...)

		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to load checks from %s: %w", dir, err)
	}

	if len(checks) == 0 {
		return nil, xerrors.Errorf("no checks found in %s", dir)
	}

	return checks, nil
}
