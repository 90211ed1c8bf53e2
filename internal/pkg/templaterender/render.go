package templaterender

import (
	"bytes"
	"fmt"
	"text/template"
)

// RenderString renders a Go template string with missing keys defaulting to zero values.
func RenderString(src string, data any) (string, error) {
	if src == "" {
		return "", nil
	}
	t, err := template.New("tpl").Option("missingkey=zero").Parse(src)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Set is a group of named templates parsed once at startup.
type Set struct {
	root *template.Template
}

// MustParse parses every definition and panics on a syntax error.
func MustParse(defs map[string]string) *Set {
	root := template.New("").Option("missingkey=error")
	for name, src := range defs {
		template.Must(root.New(name).Parse(src))
	}
	return &Set{root: root}
}

// Render executes the named template.
func (s *Set) Render(name string, data any) (string, error) {
	t := s.root.Lookup(name)
	if t == nil {
		return "", fmt.Errorf("template %q is not defined", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %q: %w", name, err)
	}
	return buf.String(), nil
}
