package tools

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/jsonschema-go/jsonschema"
	"gopkg.in/yaml.v3"
)

// declFile is the YAML layout of a declarations file:
//
//	tools:
//	  - name: getCurrentTime
//	    description: Get the current time
//	    parameters:
//	      type: object
type declFile struct {
	Tools []struct {
		Name        string         `yaml:"name"`
		Description string         `yaml:"description"`
		Parameters  map[string]any `yaml:"parameters"`
	} `yaml:"tools"`
}

// LoadDeclarations reads tool declarations from YAML.
func LoadDeclarations(r io.Reader) ([]Declaration, error) {
	var f declFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("tools: decode declarations: %w", err)
	}
	decls := make([]Declaration, 0, len(f.Tools))
	for i, t := range f.Tools {
		if t.Name == "" {
			return nil, fmt.Errorf("tools: declaration %d has no name", i)
		}
		d := Declaration{Name: t.Name, Description: t.Description}
		if t.Parameters != nil {
			data, err := json.Marshal(t.Parameters)
			if err != nil {
				return nil, fmt.Errorf("tools: %s parameters: %w", t.Name, err)
			}
			var s jsonschema.Schema
			if err := json.Unmarshal(data, &s); err != nil {
				return nil, fmt.Errorf("tools: %s parameters: %w", t.Name, err)
			}
			d.Parameters = &s
		}
		decls = append(decls, d)
	}
	return decls, nil
}

// LoadDeclarationsFile reads tool declarations from a YAML file.
func LoadDeclarationsFile(path string) ([]Declaration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadDeclarations(f)
}
