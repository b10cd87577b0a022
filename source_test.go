package bqpipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/text/encoding/charmap"
)

func writeFile(t *testing.T, name string, b []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatal(err)
	}

	return path
}

func TestSourceReader_Read(t *testing.T) {
	path := writeFile(t, "orders.csv", []byte("OrderID,ShipCountry\n10248,France\n10250,Brazil\n"))

	r := NewSourceReader()
	defer r.Close()

	ds, err := r.Read(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ds.Len() != 2 {
		t.Errorf("rows should be 2, but %d", ds.Len())
	}
	if got := ds.Value(1, "ShipCountry"); got != "Brazil" {
		t.Errorf("ShipCountry should be Brazil, but %v", got)
	}
}

func TestSourceReader_EncodingAndSkip(t *testing.T) {
	latin1, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte("exported 2024\nShipCity\nSão Paulo\n"))
	if err != nil {
		t.Fatal(err)
	}
	path := writeFile(t, "orders.csv", latin1)

	r := &SourceReader{
		Encoding:        charmap.ISO8859_1,
		SkipLeadingRows: 1,
		opener:          &defaultOpener{},
	}

	ds, err := r.Read(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := ds.Value(0, "ShipCity"); got != "São Paulo" {
		t.Errorf("ShipCity should be São Paulo, but %v", got)
	}
}

func TestSourceReader_TSV(t *testing.T) {
	path := writeFile(t, "orders.tsv", []byte("a\tb\n1\tx\n"))

	ds, err := NewSourceReader().Read(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ds.Columns) != 2 || ds.Value(0, "b") != "x" {
		t.Errorf("unexpected dataset: %+v", ds)
	}
}

func TestSourceReader_Errors(t *testing.T) {
	if _, err := NewSourceReader().Read(context.Background(), filepath.Join(t.TempDir(), "none.csv")); err == nil {
		t.Errorf("missing file should fail")
	}

	path := writeFile(t, "short.csv", []byte("a\n"))
	r := &SourceReader{SkipLeadingRows: 5, opener: &defaultOpener{}}
	if _, err := r.Read(context.Background(), path); err == nil {
		t.Errorf("skipping more rows than the file has should fail")
	}
}

func TestSplitGCSPath(t *testing.T) {
	bucket, name, err := splitGCSPath("gs://bucket/dir/orders.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bucket != "bucket" || name != "dir/orders.csv" {
		t.Errorf("unexpected split: %s %s", bucket, name)
	}

	for _, p := range []string{"gs://bucket", "gs:///orders.csv", "gs://bucket/"} {
		if _, _, err := splitGCSPath(p); err == nil {
			t.Errorf("%s should be invalid", p)
		}
	}
}

func TestSourceReader_ByteOrderMark(t *testing.T) {
	path := writeFile(t, "orders.csv", []byte("\ufeffOrderID,ShipCountry\n10250,Brazil\n"))

	for name, r := range map[string]*SourceReader{
		"utf-8":      NewSourceReader(),
		"iso-8859-1": {Encoding: charmap.ISO8859_1, opener: &defaultOpener{}},
	} {
		r := r
		t.Run(name, func(t *testing.T) {
			ds, err := r.Read(context.Background(), path)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if ds.Columns[0].Name != "OrderID" {
				t.Errorf("first column should be OrderID, but %q", ds.Columns[0].Name)
			}
			if got := ds.Value(0, "OrderID"); got != int64(10250) {
				t.Errorf("OrderID should be 10250, but %v", got)
			}
			if got := ds.Value(0, "ShipCountry"); got != "Brazil" {
				t.Errorf("ShipCountry should be Brazil, but %v", got)
			}
		})
	}
}
