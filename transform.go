package bqpipeline

import (
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/spf13/cast"
	"golang.org/x/xerrors"
)

// Row is a row of a Dataset under evaluation.
type Row struct {
	ds *Dataset
	i  int
}

// Get returns the value of the column.
func (r Row) Get(name string) (bigquery.Value, error) {
	j := r.ds.Index(name)
	if j < 0 {
		return nil, xerrors.Errorf("column %s not found", name)
	}
	if j >= len(r.ds.Rows[r.i]) {
		return nil, nil
	}
	return r.ds.Rows[r.i][j], nil
}

// Expr is an expression evaluated against a row.
type Expr func(Row) (bigquery.Value, error)

// Predicate is a boolean expression evaluated against a row.
type Predicate func(Row) (bool, error)

// Projection is an output column of a Query.
type Projection struct {
	Name string
	Type bigquery.FieldType
	Expr Expr
}

// As names an expression as an output column.
func As(e Expr, name string, t bigquery.FieldType) Projection {
	return Projection{Name: name, Type: t, Expr: e}
}

// Query is a declarative SELECT ... FROM dataset WHERE ... over a Dataset.
type Query struct {
	Select []Projection
	Where  Predicate
}

// Run evaluates the query against the dataset and returns a new Dataset.
func (q Query) Run(ds *Dataset) (*Dataset, error) {
	out := &Dataset{Columns: make([]Column, len(q.Select))}
	for j, p := range q.Select {
		out.Columns[j] = Column{Name: p.Name, Type: p.Type}
	}

	for i := range ds.Rows {
		r := Row{ds: ds, i: i}

		if q.Where != nil {
			ok, err := q.Where(r)
			if err != nil {
				return nil, xerrors.Errorf("failed to evaluate filter at row %d: %w", i, err)
			}
			if !ok {
				continue
			}
		}

		row := make([]bigquery.Value, len(q.Select))
		for j, p := range q.Select {
			v, err := p.Expr(r)
			if err != nil {
				return nil, xerrors.Errorf("failed to evaluate %s at row %d: %w", p.Name, i, err)
			}
			row[j] = v
		}
		out.Rows = append(out.Rows, row)
	}

	return out, nil
}

// Col refers to a column.
func Col(name string) Expr {
	return func(r Row) (bigquery.Value, error) {
		return r.Get(name)
	}
}

// Lit is a literal value.
func Lit(v bigquery.Value) Expr {
	return func(Row) (bigquery.Value, error) {
		return v, nil
	}
}

// Eq is true when the expression equals the value. NULL never equals.
func Eq(e Expr, v bigquery.Value) Predicate {
	return func(r Row) (bool, error) {
		got, err := e(r)
		if err != nil || got == nil {
			return false, err
		}
		return reflect.DeepEqual(got, v), nil
	}
}

// strFunc applies f to the string value of e. NULL is kept.
func strFunc(e Expr, f func(string) (bigquery.Value, error)) Expr {
	return func(r Row) (bigquery.Value, error) {
		v, err := e(r)
		if err != nil || v == nil {
			return nil, err
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, err
		}
		return f(s)
	}
}

// Replace replaces all occurrences of old with new like REPLACE(e, old, new).
func Replace(e Expr, old, new string) Expr {
	return strFunc(e, func(s string) (bigquery.Value, error) {
		return strings.ReplaceAll(s, old, new), nil
	})
}

// RegexpReplace replaces all matches of the pattern like REGEXP_REPLACE(e, pattern, repl).
func RegexpReplace(e Expr, pattern, repl string) Expr {
	re := regexp.MustCompile(pattern)
	return strFunc(e, func(s string) (bigquery.Value, error) {
		return re.ReplaceAllString(s, repl), nil
	})
}

// RegexpExtract returns the first matched capture group of the leftmost match,
// or the whole match if the pattern has no groups. NULL if nothing matches.
func RegexpExtract(e Expr, pattern string) Expr {
	re := regexp.MustCompile(pattern)
	return strFunc(e, func(s string) (bigquery.Value, error) {
		m := re.FindStringSubmatch(s)
		if m == nil {
			return nil, nil
		}
		for _, g := range m[1:] {
			if g != "" {
				return g, nil
			}
		}
		return m[0], nil
	})
}

// Trim removes leading and trailing white spaces.
func Trim(e Expr) Expr {
	return strFunc(e, func(s string) (bigquery.Value, error) {
		return strings.TrimSpace(s), nil
	})
}

// NullIf returns NULL when the expression equals the value like NULLIF(e, v).
func NullIf(e Expr, v bigquery.Value) Expr {
	return func(r Row) (bigquery.Value, error) {
		got, err := e(r)
		if err != nil || got == nil || reflect.DeepEqual(got, v) {
			return nil, err
		}
		return got, nil
	}
}

// Int64 casts the value to INT64.
func Int64(e Expr) Expr {
	return func(r Row) (bigquery.Value, error) {
		v, err := e(r)
		if err != nil || v == nil {
			return nil, err
		}
		// cast parses strings with base prefixes, so "010" would be octal.
		if s, ok := v.(string); ok {
			return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		}
		return cast.ToInt64E(v)
	}
}

// String casts the value to STRING.
func String(e Expr) Expr {
	return func(r Row) (bigquery.Value, error) {
		v, err := e(r)
		if err != nil || v == nil {
			return nil, err
		}
		return cast.ToStringE(v)
	}
}

// Float64 casts the value to FLOAT64.
func Float64(e Expr) Expr {
	return func(r Row) (bigquery.Value, error) {
		v, err := e(r)
		if err != nil || v == nil {
			return nil, err
		}
		return cast.ToFloat64E(v)
	}
}

// Timestamp casts the value to TIMESTAMP.
func Timestamp(e Expr) Expr {
	return func(r Row) (bigquery.Value, error) {
		v, err := e(r)
		if err != nil || v == nil {
			return nil, err
		}
		return toTime(v)
	}
}

// TruncMonth truncates the date or timestamp to the first day of its month as DATE.
func TruncMonth(e Expr) Expr {
	return func(r Row) (bigquery.Value, error) {
		v, err := e(r)
		if err != nil || v == nil {
			return nil, err
		}
		t, err := toTime(v)
		if err != nil {
			return nil, err
		}
		d := civil.DateOf(t)
		d.Day = 1
		return d, nil
	}
}

func toTime(v bigquery.Value) (time.Time, error) {
	switch t := v.(type) {
	case civil.Date:
		return t.In(time.UTC), nil
	case civil.DateTime:
		return t.In(time.UTC), nil
	case string:
		return parseTime(strings.TrimSpace(t))
	default:
		return cast.ToTimeE(v)
	}
}
