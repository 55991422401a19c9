package mapper

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yaml.go loads mapper definitions from YAML documents of the form:
//
//	mappers:
//	  - name: users
//	    idAttribute: id
//	    relations:
//	      - type: hasMany
//	        relation: posts
//	        localField: posts
//	        foreignKey: authorId

type mapperFile struct {
	Mappers []*Mapper `yaml:"mappers"`
}

// ParseYAML parses and validates mapper definitions from YAML.
func ParseYAML(data []byte) ([]*Mapper, error) {
	var file mapperFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing mapper yaml: %w", err)
	}
	for _, m := range file.Mappers {
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}
	return file.Mappers, nil
}

// LoadFile reads mapper definitions from a YAML file and registers them.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading mapper file: %w", err)
	}
	mappers, err := ParseYAML(data)
	if err != nil {
		return err
	}
	for _, m := range mappers {
		if err := r.Register(m); err != nil {
			return err
		}
	}
	return nil
}
