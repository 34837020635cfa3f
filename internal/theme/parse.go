package theme

import (
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"
)

// Theme descriptor file names, tried in order.
var descriptorFiles = []string{"config.yaml", "config.yml", "config.json"}

type descriptor struct {
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Description string   `yaml:"description"`
	Pages       pageList `yaml:"pages"`
	SiteFields  []Field  `yaml:"site_fields"`
}

// pageList decodes the pages mapping while keeping declaration order.
type pageList []PageSchema

func (p *pageList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: pages must be a mapping of page name to field list", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		var fields []Field
		if value.Kind != yaml.ScalarNode || value.Tag != "!!null" {
			if err := value.Decode(&fields); err != nil {
				return fmt.Errorf("page %q: %w", key.Value, err)
			}
		}
		*p = append(*p, PageSchema{Name: key.Value, Fields: fields})
	}
	return nil
}

// Parse reads the descriptor found at the root of fsys. JSON descriptors are accepted because
// they are valid YAML. The returned theme is not validated.
func Parse(fallbackName string, fsys fs.FS) (*Theme, error) {
	var (
		data []byte
		err  error
	)
	for _, name := range descriptorFiles {
		data, err = fs.ReadFile(fsys, name)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("theme descriptor not found: %w", err)
	}

	var d descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse theme descriptor: %w", err)
	}
	t := &Theme{
		Name:        d.Name,
		Version:     d.Version,
		Description: d.Description,
		Pages:       d.Pages,
		SiteFields:  d.SiteFields,
		FS:          fsys,
	}
	if t.Name == "" {
		t.Name = fallbackName
	}
	for i := range t.Pages {
		for j := range t.Pages[i].Fields {
			if t.Pages[i].Fields[j].InputType == "" {
				t.Pages[i].Fields[j].InputType = InputText
			}
		}
	}
	return t, nil
}
