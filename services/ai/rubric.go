package aisvc

import (
	"io/fs"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	appfs "github.com/admitdesk/admitdesk/fs"
)

const embeddedRubricPath = "assets/ai/rubric.yaml"

type RubricCriterion struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Color       string `yaml:"color"`
	Description string `yaml:"description"`
}

// Rubric is what essays are graded against.
type Rubric struct {
	Criteria     []RubricCriterion `yaml:"criteria"`
	ProblemTypes []string          `yaml:"problem_types"`
	Severities   []string          `yaml:"severities"`
}

func (r Rubric) criterion(id string) (RubricCriterion, bool) {
	for _, c := range r.Criteria {
		if c.ID == id {
			return c, true
		}
	}
	return RubricCriterion{}, false
}

// LoadRubric reads the rubric at path, or the embedded one when path is empty.
func LoadRubric(path string) (Rubric, error) {
	var (
		data []byte
		err  error
	)
	if path == "" {
		data, err = fs.ReadFile(appfs.FS, embeddedRubricPath)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return Rubric{}, errors.Wrap(err, "reading rubric")
	}
	return ParseRubric(data)
}

func ParseRubric(data []byte) (Rubric, error) {
	var r Rubric
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rubric{}, errors.Wrap(err, "yaml.Unmarshal")
	}
	if len(r.Criteria) == 0 {
		return Rubric{}, errors.New("rubric has no criteria")
	}
	for _, c := range r.Criteria {
		if c.ID == "" || c.Name == "" {
			return Rubric{}, errors.New("rubric criteria need an id and a name")
		}
	}
	return r, nil
}
