package input

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Job is a batch description: target URLs plus extra parameter names and
// payloads. JSON documents are valid YAML, so one decoder reads both.
type Job struct {
	URLs   StringList `yaml:"urls" json:"urls"`
	Params StringList `yaml:"params" json:"params"`
	Values StringList `yaml:"values" json:"values"`
}

// StringList accepts either a single string or a list of strings.
type StringList []string

func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Value == "" {
			*s = nil
			return nil
		}
		*s = StringList{value.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*s = items
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", value.Line)
	}
}

// LoadJob reads an inline JSON/YAML document, or the file it names.
func LoadJob(source string) (*Job, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("empty job")
	}

	data := []byte(source)
	if !strings.HasPrefix(source, "{") {
		raw, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("failed to read job file: %w", err)
		}
		data = raw
	}

	return ParseJob(data)
}

// ParseJob decodes a job document. A job must name at least one URL.
func ParseJob(data []byte) (*Job, error) {
	var job Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to parse job: %w", err)
	}
	if len(job.URLs) == 0 {
		return nil, fmt.Errorf("job has no urls")
	}
	return &job, nil
}
