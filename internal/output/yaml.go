package output

import (
	"gopkg.in/yaml.v3"
)

// YAMLFormatter renders results as YAML documents.
type YAMLFormatter struct{}

// FormatFiles renders a catalog as YAML.
func (f *YAMLFormatter) FormatFiles(catalog *Catalog) (string, error) {
	if catalog == nil {
		return "", nil
	}
	return marshalYAML(catalog)
}

// FormatQuiz renders a quiz as YAML.
func (f *YAMLFormatter) FormatQuiz(quiz *Quiz) (string, error) {
	if quiz == nil {
		return "", nil
	}
	return marshalYAML(quiz)
}

func marshalYAML(v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
