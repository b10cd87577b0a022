package scan

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

const (
	checksForPrefix = "checks for "
	failedRowsCheck = "failed rows"
)

var metricCheckRE = regexp.MustCompile(
	`^(row_count|(missing_count|duplicate_count|min|max|avg|sum)\(\s*(\w+)\s*\))\s*` +
		`(?:(=|!=|<>|<=|>=|<|>)\s*(-?\d+(?:\.\d+)?)|between\s+(-?\d+(?:\.\d+)?)\s+and\s+(-?\d+(?:\.\d+)?))$`)

// Check is a data quality check on a table.
type Check struct {
	// Name is the name given in the check file, or the check expression.
	Name string

	// Table is the table ID the check runs against.
	Table string

	// Metric is row_count, missing_count, duplicate_count, min, max, avg, sum or failed rows.
	Metric string
	Column string

	threshold threshold
	failQuery string
}

type threshold struct {
	op       string
	value    float64
	min, max float64
	between  bool
}

func (t threshold) pass(v float64) bool {
	if t.between {
		return t.min <= v && v <= t.max
	}

	switch t.op {
	case "=":
		return v == t.value
	case "!=", "<>":
		return v != t.value
	case "<":
		return v < t.value
	case "<=":
		return v <= t.value
	case ">":
		return v > t.value
	case ">=":
		return v >= t.value
	}

	return false
}

type checkAttrs struct {
	Name      string `yaml:"name"`
	FailQuery string `yaml:"fail query"`
}

// ParseChecks parses a SodaCL check file.
//
//	checks for orders_raw:
//	  - row_count > 0
//	  - missing_count(OrderID) = 0:
//	      name: Orders have ids
//	  - failed rows:
//	      name: No negative freight
//	      fail query: SELECT * FROM orders_raw WHERE Freight < 0
func ParseChecks(b []byte) ([]*Check, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, xerrors.Errorf("failed to parse checks: %w", err)
	}

	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, xerrors.New("check file should be a mapping")
	}

	var checks []*Check
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, items := root.Content[i].Value, root.Content[i+1]
		if !strings.HasPrefix(key, checksForPrefix) {
			continue
		}

		table := strings.TrimSpace(strings.TrimPrefix(key, checksForPrefix))
		if items.Kind != yaml.SequenceNode {
			return nil, xerrors.Errorf("checks for %s should be a list", table)
		}

		for _, item := range items.Content {
			c, err := parseCheck(table, item)
			if err != nil {
				return nil, xerrors.Errorf("invalid check for %s at line %d: %w", table, item.Line, err)
			}
			checks = append(checks, c)
		}
	}

	return checks, nil
}

func parseCheck(table string, n *yaml.Node) (*Check, error) {
	var expr string
	var attrs checkAttrs

	switch n.Kind {
	case yaml.ScalarNode:
		expr = n.Value
	case yaml.MappingNode:
		if len(n.Content) != 2 {
			return nil, xerrors.New("check should have a single expression")
		}
		expr = n.Content[0].Value
		if err := n.Content[1].Decode(&attrs); err != nil {
			return nil, xerrors.Errorf("invalid check attributes: %w", err)
		}
	default:
		return nil, xerrors.New("check should be a string or a mapping")
	}

	expr = strings.TrimSpace(expr)

	if expr == failedRowsCheck {
		if attrs.FailQuery == "" {
			return nil, xerrors.New("failed rows check needs fail query")
		}
		return &Check{Name: nameOr(attrs.Name, expr), Table: table, Metric: failedRowsCheck, failQuery: attrs.FailQuery}, nil
	}

	m := metricCheckRE.FindStringSubmatch(expr)
	if m == nil {
		return nil, xerrors.Errorf("unsupported check %q", expr)
	}

	c := &Check{Name: nameOr(attrs.Name, expr), Table: table, Metric: m[1], Column: m[3]}
	if m[2] != "" {
		c.Metric = m[2]
	}

	if m[4] != "" {
		v, _ := strconv.ParseFloat(m[5], 64)
		c.threshold = threshold{op: m[4], value: v}
	} else {
		lo, _ := strconv.ParseFloat(m[6], 64)
		hi, _ := strconv.ParseFloat(m[7], 64)
		c.threshold = threshold{between: true, min: lo, max: hi}
	}

	return c, nil
}

func nameOr(name, expr string) string {
	if name != "" {
		return name
	}
	return expr
}

// SQL builds the query of the check. Metric queries return a single value.
// Fail queries are returned as written and resolve unqualified tables in the data source dataset.
func (c *Check) SQL(project, dataset string) string {
	if c.Metric == failedRowsCheck {
		return c.failQuery
	}

	table := fmt.Sprintf("`%s.%s.%s`", project, dataset, c.Table)
	col := "`" + c.Column + "`"

	switch c.Metric {
	case "row_count":
		return fmt.Sprintf("SELECT COUNT(*) AS value FROM %s", table)
	case "missing_count":
		return fmt.Sprintf("SELECT COUNTIF(%s IS NULL) AS value FROM %s", col, table)
	case "duplicate_count":
		return fmt.Sprintf(
			"SELECT COUNT(*) AS value FROM (SELECT %s FROM %s WHERE %s IS NOT NULL GROUP BY %s HAVING COUNT(*) > 1)",
			col, table, col, col)
	default:
		return fmt.Sprintf("SELECT %s(%s) AS value FROM %s", strings.ToUpper(c.Metric), col, table)
	}
}
