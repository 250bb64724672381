package util

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// templateFuncs are available to every instruction template.
var templateFuncs = template.FuncMap{
	"default": func(fallback, val any) any {
		if val == nil || val == "" {
			return fallback
		}

		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"join": func(sep string, items []any) string {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = fmt.Sprint(item)
		}

		return strings.Join(parts, sep)
	},
	// json renders structured state (lists, maps) for the model.
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
}

// Parsed instructions are reused across model turns and invocations.
var templateCache sync.Map // text -> *template.Template

// RenderTemplate renders instruction text as a Go template against state.
// Text without template markers is returned unchanged.
func RenderTemplate(text string, state map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := parseTemplate(text)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, state); err != nil {
		return "", err
	}

	return sb.String(), nil
}

func parseTemplate(text string) (*template.Template, error) {
	if cached, ok := templateCache.Load(text); ok {
		return cached.(*template.Template), nil
	}

	tmpl, err := template.New("instruction").Funcs(templateFuncs).Parse(text)
	if err != nil {
		return nil, err
	}

	templateCache.Store(text, tmpl)

	return tmpl, nil
}
