package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// HeaderDefault is one allow-listed header and the value used when an event
// does not set it. An empty Default means "no default".
type HeaderDefault struct {
	Name    string
	Default string
}

// HeaderPolicy is the ordered header allow-list. Order follows the config
// file, which keeps the rendered headers stable between runs.
type HeaderPolicy []HeaderDefault

// UnmarshalYAML reads a mapping of header name to default value while
// keeping the document order. A null value means no default.
func (p *HeaderPolicy) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("headers: line %d: expected a mapping", node.Line)
	}

	out := make(HeaderPolicy, 0, len(node.Content)/2)
	seen := make(map[string]int, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("headers: line %d: value of %q must be a scalar", v.Line, k.Value)
		}
		def := v.Value
		if v.Tag == "!!null" {
			def = ""
		}
		// A repeated name keeps its first position and last value.
		if idx, ok := seen[k.Value]; ok {
			out[idx].Default = def
			continue
		}
		seen[k.Value] = len(out)
		out = append(out, HeaderDefault{Name: k.Value, Default: def})
	}
	*p = out
	return nil
}

// Names returns the allow-listed header names in configured order.
func (p HeaderPolicy) Names() []string {
	names := make([]string, len(p))
	for i, h := range p {
		names[i] = h.Name
	}
	return names
}
