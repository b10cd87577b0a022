package bqpipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/xerrors"
	"google.golang.org/api/option"
)

const gcsScheme = "gs://"

// opener opens source files.
type opener interface {
	open(context.Context, string) (io.Reader, func(), error)
}

type defaultOpener struct {
	storage *storage.Client
	opts    []option.ClientOption
}

func (o *defaultOpener) open(ctx context.Context, path string) (io.Reader, func(), error) {
	if !strings.HasPrefix(path, gcsScheme) {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, xerrors.Errorf("failed to open %s: %w", path, err)
		}
		return f, func() { f.Close() }, nil
	}

	l := log.Ctx(ctx)

	bucket, name, err := splitGCSPath(path)
	if err != nil {
		return nil, nil, err
	}

	if o.storage == nil {
		s, err := storage.NewClient(ctx, o.opts...)
		if err != nil {
			return nil, nil, xerrors.Errorf("failed to build storage client: %w", err)
		}
		o.storage = s
	}

	r, err := o.storage.Bucket(bucket).Object(name).NewReader(ctx)
	if err != nil {
		l.Error().Err(err).Msg("failed to initialize object reader")
		return nil, nil, xerrors.Errorf("failed to get reader of %s: %w", path, err)
	}
	l.Debug().Str("object", path).Int64("size", r.Attrs.Size).Msg("object reader opened")

	return r, func() { r.Close() }, nil
}

func (o *defaultOpener) close() error {
	if o.storage == nil {
		return nil
	}
	return o.storage.Close()
}

func splitGCSPath(path string) (string, string, error) {
	parts := strings.SplitN(strings.TrimPrefix(path, gcsScheme), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", xerrors.Errorf("invalid Cloud Storage path: %s", path)
	}
	return parts[0], parts[1], nil
}

// SourceReader reads source files on local disks or Cloud Storage into Datasets.
type SourceReader struct {
	// Encoding is the source file encoding. UTF-8 if nil.
	Encoding encoding.Encoding

	// Parser parses the source file. If nil, it is chosen by the file extension:
	// XLSParser for .xls, DelimitedParser for .tsv and CSVParser otherwise.
	Parser Parser

	// SkipLeadingRows is the number of rows to skip before the header row.
	SkipLeadingRows int

	opener opener
}

// NewSourceReader builds a SourceReader. Options are used for the Cloud Storage client.
func NewSourceReader(opts ...option.ClientOption) *SourceReader {
	return &SourceReader{opener: &defaultOpener{opts: opts}}
}

// Read reads the source file into a Dataset.
func (s *SourceReader) Read(ctx context.Context, path string) (*Dataset, error) {
	r, closer, err := s.opener.open(ctx, path)
	if err != nil {
		return nil, xerrors.Errorf("failed to open source: %w", err)
	}
	defer closer()

	// A leading byte order mark is stripped and overrides Encoding.
	var dec transform.Transformer = transform.Nop
	if s.Encoding != nil {
		dec = s.Encoding.NewDecoder()
	}
	r = transform.NewReader(r, unicode.BOMOverride(dec))

	parser := s.Parser
	if parser == nil {
		parser = parserFor(path)
	}

	records, err := parser(ctx, r)
	if err != nil {
		return nil, xerrors.Errorf("failed to parse %s: %w", path, err)
	}

	if s.SkipLeadingRows > len(records) {
		return nil, xerrors.Errorf("%s has only %d rows", path, len(records))
	}
	records = records[s.SkipLeadingRows:]

	ds, err := NewDataset(records)
	if err != nil {
		return nil, xerrors.Errorf("failed to build dataset from %s: %w", path, err)
	}

	return ds, nil
}

// Close closes the underlying Cloud Storage client if any.
func (s *SourceReader) Close() error {
	if o, ok := s.opener.(*defaultOpener); ok {
		return o.close()
	}
	return nil
}

func parserFor(path string) Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xls":
		return XLSParser(0)
	case ".tsv":
		return DelimitedParser('\t')
	default:
		return CSVParser()
	}
}
