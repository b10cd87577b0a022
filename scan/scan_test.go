package scan_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cloud.google.com/go/bigquery"

	"go.nownabe.dev/bqpipeline"
	"go.nownabe.dev/bqpipeline/scan"
)

const configuration = `
data_source bigquery_soda:
  type: bigquery
  project_id: p
  dataset: d
`

type testQuerier struct {
	values  map[string]bigquery.Value
	rows    map[string]int
	err     error
	queries []string
	targets []string
}

func (q *testQuerier) QueryIn(_ context.Context, project, dataset, sql string) (*bqpipeline.Dataset, error) {
	q.queries = append(q.queries, sql)
	q.targets = append(q.targets, project+"."+dataset)
	if q.err != nil {
		return nil, q.err
	}

	ds := &bqpipeline.Dataset{Columns: []bqpipeline.Column{{Name: "value"}}}
	if n, ok := q.rows[sql]; ok {
		for i := 0; i < n; i++ {
			ds.Rows = append(ds.Rows, []bigquery.Value{int64(i)})
		}
		return ds, nil
	}

	for prefix, v := range q.values {
		if strings.HasPrefix(sql, prefix) {
			ds.Rows = [][]bigquery.Value{{v}}
			return ds, nil
		}
	}

	return nil, errors.New("unexpected query: " + sql)
}

func newProject(t *testing.T, checks map[string]string) string {
	t.Helper()

	root := t.TempDir()
	files := map[string]string{"configuration.yml": configuration}
	for name, body := range checks {
		files[filepath.Join("checks", name)] = body
	}

	for name, body := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	return root
}

func TestScanner_Validate(t *testing.T) {
	root := newProject(t, map[string]string{
		"raw/orders.yml": "checks for orders_raw:\n  - row_count > 0\n  - missing_count(OrderID) = 0\n",
		"raw/README.md":  "not a check file",
		"trusted/t.yml":  "checks for orders_trusted:\n  - row_count = 0\n",
	})

	q := &testQuerier{values: map[string]bigquery.Value{
		"SELECT COUNT(*) AS value FROM `p.d.orders_raw`":                   int64(5),
		"SELECT COUNTIF(`OrderID` IS NULL) AS value FROM `p.d.orders_raw`": int64(0),
	}}
	s := &scan.Scanner{Root: root, DataSource: "bigquery_soda", Querier: q}

	if err := s.Validate(context.Background(), "orders_raw", "raw"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.queries) != 2 {
		t.Errorf("only raw checks should run, but %v", q.queries)
	}
}

func TestScanner_ValidateFails(t *testing.T) {
	root := newProject(t, map[string]string{
		"raw/orders.yml": "checks for orders_raw:\n  - row_count > 10\n  - failed rows:\n      fail query: SELECT bad\n",
	})

	q := &testQuerier{
		values: map[string]bigquery.Value{"SELECT COUNT(*)": int64(5)},
		rows:   map[string]int{"SELECT bad": 2},
	}
	s := &scan.Scanner{Root: root, DataSource: "bigquery_soda", Querier: q}

	err := s.Validate(context.Background(), "orders_raw", "raw")

	var fe *scan.FailedError
	if !errors.As(err, &fe) {
		t.Fatalf("error should be FailedError, but %v", err)
	}
	if fe.Result.ExitCode() != 2 {
		t.Errorf("exit code should be 2, but %d", fe.Result.ExitCode())
	}
	if fe.Result.Count(scan.Fail) != 2 {
		t.Errorf("2 checks should fail, but %d", fe.Result.Count(scan.Fail))
	}
	if !strings.Contains(fe.Result.LogsText(), "FAIL  row_count > 10") {
		t.Errorf("logs should report the failed check:\n%s", fe.Result.LogsText())
	}
}

func TestScanner_Scan_QueryError(t *testing.T) {
	root := newProject(t, map[string]string{"raw/orders.yml": "checks for orders_raw:\n  - row_count > 0\n"})
	q := &testQuerier{err: errors.New("access denied")}
	s := &scan.Scanner{Root: root, DataSource: "bigquery_soda", Querier: q}

	res, err := s.Scan(context.Background(), "orders_raw", "raw")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.ExitCode() != 3 {
		t.Errorf("exit code should be 3, but %d", res.ExitCode())
	}
	if res.Checks[0].Outcome != scan.Error {
		t.Errorf("outcome should be error, but %s", res.Checks[0].Outcome)
	}
}

func TestScanner_Scan_Errors(t *testing.T) {
	root := newProject(t, map[string]string{"raw/orders.yml": "checks for orders_raw:\n  - row_count > 0\n"})
	q := &testQuerier{}

	cases := map[string]struct {
		scanner *scan.Scanner
		subpath string
	}{
		"unknown data source": {&scan.Scanner{Root: root, DataSource: "other", Querier: q}, "raw"},
		"no checks":           {&scan.Scanner{Root: root, DataSource: "bigquery_soda", Querier: q}, "trusted"},
		"no configuration":    {&scan.Scanner{Root: t.TempDir(), DataSource: "bigquery_soda", Querier: q}, "raw"},
	}

	for name, c := range cases {
		c := c
		t.Run(name, func(t *testing.T) {
			if err := c.scanner.Validate(context.Background(), "orders_raw", c.subpath); err == nil {
				t.Errorf("Validate should fail")
			}
		})
	}
}

func TestScanner_FailQueryDefaultDataset(t *testing.T) {
	root := newProject(t, map[string]string{
		"raw/orders.yml": "checks for orders_raw:\n  - failed rows:\n      name: No negative freight\n" +
			"      fail query: SELECT * FROM orders_raw WHERE Freight < 0\n",
	})

	q := &testQuerier{rows: map[string]int{"SELECT * FROM orders_raw WHERE Freight < 0": 0}}
	s := &scan.Scanner{Root: root, DataSource: "bigquery_soda", Querier: q}

	if err := s.Validate(context.Background(), "orders_raw", "raw"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(q.targets) != 1 || q.targets[0] != "p.d" {
		t.Errorf("fail query should run in the data source dataset p.d, but %v", q.targets)
	}
}
