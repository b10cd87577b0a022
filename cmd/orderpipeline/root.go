package main

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/xerrors"

	"go.nownabe.dev/bqpipeline"
	"go.nownabe.dev/bqpipeline/contrib/orders"
	"go.nownabe.dev/bqpipeline/scan"
)

const envPrefix = "ORDERPIPELINE"

type config struct {
	ProjectID            string
	Location             string
	DatasetID            string
	FileSource           string
	InputDir             string
	TableRaw             string
	TableTrusted         string
	WriteDisposition     string
	SodaDataSource       string
	SodaRoot             string
	ChecksSubpathRaw     string
	ChecksSubpathTrusted string
	Encoding             string
	LogLevel             string
	Pretty               bool
	SlackToken           string
	SlackChannel         string
}

func newRootCmd() *cobra.Command {
	return newCommand(viper.New())
}

func newCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orderpipeline",
		Short: "Load orders into BigQuery raw and trusted tables",
		Long: `orderpipeline reads an orders file, loads it into the raw table, validates it,
transforms it and loads the result into the trusted table, validating it again.
Flags can also be set with ORDERPIPELINE_* environment variables or a .env file.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.String("project-id", "", "GCP project ID of BigQuery")
	f.String("location", "", "BigQuery location such as US")
	f.String("dataset-id", "", "BigQuery dataset ID")
	f.String("file-source", "", "source file name in the input directory, absolute path or gs:// URI")
	f.String("input-dir", "input_data", "directory of source files")
	f.String("table-raw", "", "raw table ID")
	f.String("table-trusted", "", "trusted table ID")
	f.String("write-disposition", "WRITE_TRUNCATE", "write disposition of load jobs")
	f.String("soda-data-source", "bigquery_soda", "data source name in the scan configuration")
	f.String("soda-root", scan.DefaultRoot, "scan project root")
	f.String("checks-subpath-raw", "raw", "checks directory of the raw table")
	f.String("checks-subpath-trusted", "trusted", "checks directory of the trusted table")
	f.String("encoding", "", "source file encoding such as iso-8859-1 (default UTF-8)")
	f.String("log-level", "info", "log level")
	f.Bool("pretty", false, "print human friendly logs")
	f.String("slack-token", "", "Slack token to notify results")
	f.String("slack-channel", "", "Slack channel to notify results")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(f); err != nil {
		panic(err)
	}

	return cmd
}

func loadConfig(v *viper.Viper) (*config, error) {
	cfg := &config{
		ProjectID:            v.GetString("project-id"),
		Location:             v.GetString("location"),
		DatasetID:            v.GetString("dataset-id"),
		FileSource:           v.GetString("file-source"),
		InputDir:             v.GetString("input-dir"),
		TableRaw:             v.GetString("table-raw"),
		TableTrusted:         v.GetString("table-trusted"),
		WriteDisposition:     v.GetString("write-disposition"),
		SodaDataSource:       v.GetString("soda-data-source"),
		SodaRoot:             v.GetString("soda-root"),
		ChecksSubpathRaw:     v.GetString("checks-subpath-raw"),
		ChecksSubpathTrusted: v.GetString("checks-subpath-trusted"),
		Encoding:             v.GetString("encoding"),
		LogLevel:             v.GetString("log-level"),
		Pretty:               v.GetBool("pretty"),
		SlackToken:           v.GetString("slack-token"),
		SlackChannel:         v.GetString("slack-channel"),
	}

	var missing []string
	for name, val := range map[string]string{
		"project-id":    cfg.ProjectID,
		"dataset-id":    cfg.DatasetID,
		"file-source":   cfg.FileSource,
		"table-raw":     cfg.TableRaw,
		"table-trusted": cfg.TableTrusted,
	} {
		if val == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, xerrors.Errorf("required flags are not set: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

func (c *config) source() string {
	if strings.HasPrefix(c.FileSource, "gs://") || filepath.IsAbs(c.FileSource) {
		return c.FileSource
	}
	return filepath.Join(c.InputDir, c.FileSource)
}

func (c *config) encoding() (encoding.Encoding, error) {
	if c.Encoding == "" {
		return nil, nil
	}

	enc, err := htmlindex.Get(c.Encoding)
	if err != nil {
		return nil, xerrors.Errorf("unknown encoding %s: %w", c.Encoding, err)
	}

	return enc, nil
}

func (c *config) options() []bqpipeline.Option {
	opts := []bqpipeline.Option{
		bqpipeline.WithLogLevel(c.LogLevel),
		bqpipeline.WithLogOutput(os.Stderr),
	}
	if c.Pretty {
		opts = append(opts, bqpipeline.WithPrettyLogging())
	}
	return opts
}

func (c *config) notifier() bqpipeline.Notifier {
	if c.SlackToken == "" || c.SlackChannel == "" {
		return nil
	}
	return &bqpipeline.SlackNotifier{
		Token:    c.SlackToken,
		Channel:  c.SlackChannel,
		Username: "orderpipeline",
	}
}

func (c *config) pipeline() *bqpipeline.Pipeline {
	p := orders.Pipeline("orders", "", orders.Tables{
		Project: c.ProjectID,
		Dataset: c.DatasetID,
		Raw:     c.TableRaw,
		Trusted: c.TableTrusted,
	}, c.notifier())

	p.Source = c.source()
	p.WriteDisposition = c.WriteDisposition
	p.Raw.ChecksSubpath = c.ChecksSubpathRaw
	p.Trusted.ChecksSubpath = c.ChecksSubpathTrusted

	return p
}

func run(ctx context.Context, cfg *config) error {
	cred, err := bqpipeline.CredentialsFromEnv()
	if err != nil {
		return err
	}

	enc, err := cfg.encoding()
	if err != nil {
		return err
	}

	client, err := bigquery.NewClient(ctx, cfg.ProjectID, cred)
	if err != nil {
		return xerrors.Errorf("failed to build bigquery client: %w", err)
	}
	defer client.Close()

	w := bqpipeline.NewBigQueryWarehouse(client, cfg.Location)

	reader := bqpipeline.NewSourceReader(cred)
	reader.Encoding = enc
	defer reader.Close()

	scanner := &scan.Scanner{
		Root:       cfg.SodaRoot,
		DataSource: cfg.SodaDataSource,
		Querier:    w,
	}

	runner, err := bqpipeline.New(w, reader, scanner, cfg.options()...)
	if err != nil {
		return err
	}

	return runner.Run(ctx, cfg.pipeline())
}
