package flow

import "gopkg.in/yaml.v3"

// Selector identifies an element on the page.
// Pure data structure - executor decides how to resolve it.
//
// A bare string is a selector expression: CSS by default, a path expression
// when it starts with "/" or "xpath=".
type Selector struct {
	Query string `yaml:"selector"` // css or path expression
	CSS   string `yaml:"css"`
	XPath string `yaml:"xpath"`
	ID    string `yaml:"id"`

	// Filters, applied in order: hasText, exactText, index.
	HasText   string `yaml:"hasText"`
	ExactText string `yaml:"exactText"`
	Index     string `yaml:"index"` // String for variable support

	// Within scopes the search to descendants of another element.
	Within *Selector `yaml:"within"`
}

// selectorRaw mirrors Selector without its UnmarshalYAML method.
type selectorRaw Selector

// UnmarshalYAML allows Selector to be unmarshaled from string or struct.
func (s *Selector) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*s = Selector{Query: node.Value}
		return nil
	}
	var raw selectorRaw
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*s = Selector(raw)
	return nil
}

// Expression returns the selector expression in the locator's syntax.
func (s *Selector) Expression() string {
	switch {
	case s.Query != "":
		return s.Query
	case s.CSS != "":
		return "css=" + s.CSS
	case s.XPath != "":
		return "xpath=" + s.XPath
	case s.ID != "":
		return "#" + s.ID
	default:
		return ""
	}
}

// IsEmpty returns true if no selector expression is set.
func (s *Selector) IsEmpty() bool {
	return s == nil || s.Expression() == ""
}

// HasFilters reports whether any text or index filter is set.
func (s *Selector) HasFilters() bool {
	return s.HasText != "" || s.ExactText != "" || s.Index != ""
}

// Describe returns a human-readable description.
func (s *Selector) Describe() string {
	if s == nil {
		return ""
	}
	d := s.Expression()
	if s.Within != nil {
		d = s.Within.Describe() + " >> " + d
	}
	if s.HasText != "" {
		d += " hasText=" + s.HasText
	}
	if s.ExactText != "" {
		d += " exactText=" + s.ExactText
	}
	if s.Index != "" {
		d += " index=" + s.Index
	}
	return d
}

// DescribeQuoted returns the description quoted, e.g. "#submit".
func (s *Selector) DescribeQuoted() string {
	return "\"" + s.Describe() + "\""
}
