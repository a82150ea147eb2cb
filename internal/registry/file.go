package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// document is the on-disk registry format. YAML and JSON files share it.
type document struct {
	Version    string                       `yaml:"version" json:"version"`
	Tools      []toolDoc                    `yaml:"tools" json:"tools"`
	Operations map[string]string            `yaml:"operations" json:"operations"`
	Aliases    map[string]map[string]string `yaml:"aliases" json:"aliases"`
}

type toolDoc struct {
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description" json:"description"`
	Parameters  []paramDoc `yaml:"parameters" json:"parameters"`
}

type paramDoc struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"`
	Required    bool   `yaml:"required" json:"required"`
	Default     any    `yaml:"default" json:"default"`
	Description string `yaml:"description" json:"description"`
}

func (d toolDoc) signature() (ToolSignature, error) {
	sig := ToolSignature{Name: d.Name, Description: d.Description}
	for _, p := range d.Parameters {
		t, err := ParseParamType(p.Type)
		if err != nil {
			return ToolSignature{}, fmt.Errorf("tool %q parameter %q: %w", d.Name, p.Name, err)
		}
		def, err := ValueOf(p.Default)
		if err != nil {
			return ToolSignature{}, fmt.Errorf("tool %q parameter %q default: %w", d.Name, p.Name, err)
		}
		sig.Parameters = append(sig.Parameters, ParameterSpec{
			Name:        p.Name,
			Type:        t,
			Required:    p.Required,
			Default:     def,
			Description: p.Description,
		})
	}
	return sig, nil
}

func (d document) catalogSpec() (CatalogSpec, error) {
	spec := CatalogSpec{
		Version:    d.Version,
		Operations: d.Operations,
		Aliases:    d.Aliases,
	}
	for _, td := range d.Tools {
		sig, err := td.signature()
		if err != nil {
			return CatalogSpec{}, err
		}
		spec.Tools = append(spec.Tools, sig)
	}
	return spec, nil
}

// ParseDocument builds a Catalog from YAML or JSON registry data.
func ParseDocument(data []byte) (*Catalog, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("ParseDocument: %w", err)
	}
	spec, err := doc.catalogSpec()
	if err != nil {
		return nil, fmt.Errorf("ParseDocument: %w", err)
	}
	return NewCatalog(spec)
}

// LoadFile reads a registry file (YAML or JSON).
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadFile: %w", err)
	}
	c, err := ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("LoadFile %s: %w", path, err)
	}
	return c, nil
}

// decodeParamsJSON decodes a JSON parameter list, keeping integers integral.
func decodeParamsJSON(data []byte) ([]paramDoc, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var params []paramDoc
	if err := dec.Decode(&params); err != nil {
		return nil, err
	}
	return params, nil
}
