package codeops

import (
	"bytes"
	"fmt"
	"text/template"
)

// componentTemplate is the scaffold written by create_component. It
// mirrors the house style of the CRM frontend: typed props, a default
// export and a BEM-ish class name.
var componentTemplate = template.Must(template.New("component").Parse(`import React from 'react';

interface {{.Name}}Props {
  className?: string;
}

export const {{.Name}}: React.FC<{{.Name}}Props> = ({ className }) => {
  return (
    <div className={` + "`{{.CSSClass}} ${className ?? ''}`" + `}>
      {{.Name}}
    </div>
  );
};

export default {{.Name}};
`))

func renderComponent(name string) (string, error) {
	data := struct {
		Name     string
		CSSClass string
	}{
		Name:     name,
		CSSClass: kebabCase(name),
	}

	var buf bytes.Buffer
	if err := componentTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render component template: %w", err)
	}
	return buf.String(), nil
}

func kebabCase(name string) string {
	var out []rune
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				out = append(out, '-')
			}
			out = append(out, r+('a'-'A'))
		} else {
			out = append(out, r)
		}
	}
	return string(out)
}
