package bqpipeline

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/xerrors"
)

// Runner runs pipelines against BigQuery.
type Runner interface {
	AddPipeline(*Pipeline) error
	MustAddPipeline(*Pipeline)

	// Run runs the pipeline with its Source.
	Run(context.Context, *Pipeline) error

	// Handle runs added pipelines whose Pattern matches the Cloud Storage object.
	Handle(context.Context, Event) error
}

// Reader reads a source file into a Dataset.
type Reader interface {
	Read(context.Context, string) (*Dataset, error)
}

// Validator runs a validation scan with the checks under the subpath.
type Validator interface {
	Validate(ctx context.Context, scanName, checksSubpath string) error
}

// New builds a new Runner. The warehouse is shared by all pipelines.
func New(w Warehouse, r Reader, v Validator, opts ...Option) (Runner, error) {
	if w == nil || r == nil || v == nil {
		return nil, xerrors.New("warehouse, reader and validator are required")
	}

	rn := &runner{
		warehouse: w,
		reader:    r,
		validator: v,
		pipelines: []*Pipeline{},
		logLevel:  zerolog.InfoLevel,
		logOutput: os.Stdout,
	}

	for _, o := range opts {
		if err := o.apply(rn); err != nil {
			return nil, err
		}
	}

	out := rn.logOutput
	if rn.prettyLogging {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "2006-01-02 15:04:05"}
	}
	rn.logger = zerolog.New(out).Level(rn.logLevel).With().Timestamp().Logger()

	return rn, nil
}

type runner struct {
	warehouse Warehouse
	reader    Reader
	validator Validator
	pipelines []*Pipeline

	prettyLogging bool
	logLevel      zerolog.Level
	logOutput     io.Writer
	logger        zerolog.Logger
}

func (r *runner) AddPipeline(p *Pipeline) error {
	if err := p.validate(); err != nil {
		return xerrors.Errorf("invalid pipeline %s: %w", p.Name, err)
	}

	r.pipelines = append(r.pipelines, p)

	return nil
}

func (r *runner) MustAddPipeline(p *Pipeline) {
	if err := r.AddPipeline(p); err != nil {
		panic(err)
	}
}

func (r *runner) Run(ctx context.Context, p *Pipeline) error {
	if err := p.validate(); err != nil {
		return xerrors.Errorf("invalid pipeline %s: %w", p.Name, err)
	}

	runID := uuid.NewString()
	l := r.logger.With().Str("pipeline", p.Name).Str("run_id", runID).Logger()
	ctx = withRunID(withStartedTime(l.WithContext(ctx)), runID)

	err := r.run(ctx, p)
	if err != nil {
		l.Error().Err(err).Msg("pipeline failed")
	} else if started, ok := startedTimeFrom(ctx); ok {
		l.Info().Dur("elapsed", time.Since(started)).Msg("pipeline finished")
	}

	if p.Notifier != nil {
		res := &Result{Pipeline: p, RunID: runID, Error: err}
		if nerr := p.Notifier.Notify(ctx, res); nerr != nil {
			l.Error().Err(nerr).Msg("failed to notify")
		}
	}

	return err
}

func (r *runner) Handle(ctx context.Context, e Event) error {
	r.logger.Info().
		Str("object", e.FullPath()).
		Str("content_type", e.ContentType).
		Str("size", e.Size).
		Time("updated", e.Updated).
		Msg("event received")

	for _, p := range r.pipelines {
		if !p.match(e.Name) {
			continue
		}

		r.logger.Debug().Str("pipeline", p.Name).Msg("pipeline matches")

		cp := *p
		cp.Source = e.FullPath()
		if err := r.Run(ctx, &cp); err != nil {
			return err
		}
	}

	return nil
}
