package scan

import (
	"os"
	"strings"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

const dataSourcePrefix = "data_source "

// DataSource is a warehouse connection declared in configuration.yml.
type DataSource struct {
	Name      string `yaml:"-"`
	Type      string `yaml:"type"`
	ProjectID string `yaml:"project_id"`
	Dataset   string `yaml:"dataset"`
	Location  string `yaml:"location"`

	// AccountInfoJSONPath is accepted for compatibility and not used.
	// Queries run with the credentials of the Querier.
	AccountInfoJSONPath string `yaml:"account_info_json_path"`
}

// LoadConfiguration reads data sources from the configuration file.
//
//	data_source bigquery_soda:
//	  type: bigquery
//	  project_id: my-project
//	  dataset: sales
func LoadConfiguration(path string) (map[string]*DataSource, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to read configuration: %w", err)
	}

	return parseConfiguration(b)
}

func parseConfiguration(b []byte) (map[string]*DataSource, error) {
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, xerrors.Errorf("failed to parse configuration: %w", err)
	}

	sources := map[string]*DataSource{}
	for k, node := range raw {
		if !strings.HasPrefix(k, dataSourcePrefix) {
			continue
		}

		name := strings.TrimSpace(strings.TrimPrefix(k, dataSourcePrefix))

		ds := &DataSource{}
		if err := node.Decode(ds); err != nil {
			return nil, xerrors.Errorf("invalid data source %s: %w", name, err)
		}
		ds.Name = name

		sources[name] = ds
	}

	return sources, nil
}

func (d *DataSource) validate() error {
	if !strings.EqualFold(d.Type, "bigquery") {
		return xerrors.Errorf("data source %s has unsupported type %q", d.Name, d.Type)
	}
	if d.ProjectID == "" || d.Dataset == "" {
		return xerrors.Errorf("data source %s needs project_id and dataset", d.Name)
	}
	return nil
}
