package yamlconfig

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

type document struct {
	Jobs jobList `yaml:"jobs"`
}

// jobList keeps jobs in declaration order.
type jobList []*jobSpec

func (l *jobList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: jobs must be a mapping", value.Line)
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		var job jobSpec
		if err := value.Content[i+1].Decode(&job); err != nil {
			return fmt.Errorf("job '%s': %w", value.Content[i].Value, err)
		}
		job.Name = value.Content[i].Value
		*l = append(*l, &job)
	}
	return nil
}

type jobSpec struct {
	Name           string            `yaml:"-"`
	On             *triggerSpec      `yaml:"on"`
	FailFast       *bool             `yaml:"fail-fast"`
	Timeout        string            `yaml:"timeout"`
	TimeoutMinutes int               `yaml:"timeout-minutes"`
	Env            map[string]string `yaml:"env"`
	Strategy       *strategySpec     `yaml:"strategy"`
	Provision      *provisionSpec    `yaml:"provision"`
	Cache          *cacheSpec        `yaml:"cache"`
	Steps          []*stepSpec       `yaml:"steps"`
}

type triggerSpec struct {
	Push        []string `yaml:"push"`
	PullRequest []string `yaml:"pull_request"`
	Manual      bool     `yaml:"manual"`
}

type strategySpec struct {
	FailFast *bool       `yaml:"fail-fast"`
	Matrix   *matrixSpec `yaml:"matrix"`
}

type axisSpec struct {
	Name   string
	Values []string
}

// matrixSpec keeps axes in declaration order; include and exclude are
// reserved keys.
type matrixSpec struct {
	Axes    []axisSpec
	Include []map[string]string
	Exclude []map[string]string
}

func (m *matrixSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: matrix must be a mapping", value.Line)
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, node := value.Content[i].Value, value.Content[i+1]
		switch key {
		case "include":
			if err := node.Decode(&m.Include); err != nil {
				return fmt.Errorf("matrix include: %w", err)
			}
		case "exclude":
			if err := node.Decode(&m.Exclude); err != nil {
				return fmt.Errorf("matrix exclude: %w", err)
			}
		default:
			var values []string
			if err := node.Decode(&values); err != nil {
				return fmt.Errorf("matrix axis '%s': %w", key, err)
			}
			m.Axes = append(m.Axes, axisSpec{Name: key, Values: values})
		}
	}
	return nil
}

type provisionSpec struct {
	Packages   []string         `yaml:"packages"`
	Toolchains []*toolchainSpec `yaml:"toolchains"`
}

type toolchainSpec struct {
	Kind        string   `yaml:"kind"`
	Version     string   `yaml:"version"`
	Components  []string `yaml:"components"`
	Targets     []string `yaml:"targets"`
	Fingerprint string   `yaml:"fingerprint"`
}

type cacheSpec struct {
	Prefix    string   `yaml:"prefix"`
	Paths     []string `yaml:"paths"`
	LockFiles []string `yaml:"lock-files"`
}

type stepSpec struct {
	Name            string            `yaml:"name"`
	Run             string            `yaml:"run"`
	If              string            `yaml:"if"`
	When            []predicateSpec   `yaml:"when"`
	WhenAny         []predicateSpec   `yaml:"when-any"`
	Policy          string            `yaml:"policy"`
	ContinueOnError bool              `yaml:"continue-on-error"`
	Timeout         string            `yaml:"timeout"`
	TimeoutMinutes  int               `yaml:"timeout-minutes"`
	DenyWarnings    bool              `yaml:"deny-warnings"`
	WarningPattern  string            `yaml:"warning-pattern"`
	WorkingDir      string            `yaml:"working-directory"`
	Env             map[string]string `yaml:"env"`
}

type predicateSpec struct {
	Field string `yaml:"field"`
	Op    string `yaml:"op"`
	Value string `yaml:"value"`
}
