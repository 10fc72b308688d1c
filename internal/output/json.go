package output

import (
	"encoding/json"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatFiles renders a catalog as JSON.
func (f *JSONFormatter) FormatFiles(catalog *Catalog) (string, error) {
	if catalog == nil {
		return "", nil
	}
	return f.marshal(catalog)
}

// FormatQuiz renders a quiz as JSON.
func (f *JSONFormatter) FormatQuiz(quiz *Quiz) (string, error) {
	if quiz == nil {
		return "", nil
	}
	return f.marshal(quiz)
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
