package prompt

import (
	"fmt"
	"strings"

	"github.com/aymerick/raymond"
)

// Template is a prompt template addressed by occasion and style.
type Template struct {
	Occasion string
	Style    string
	Body     string
}

// Library resolves and renders prompt templates for the design worker.
type Library interface {
	Template(occasion, style string) (Template, error)
	Render(tpl Template, context map[string]any) (string, error)
}

// StaticLibrary serves a built-in template set. Occasion/style lookups fall
// back to the default template so a missing combination never blocks a
// generation job.
type StaticLibrary struct {
	templates map[string]Template
}

const defaultTemplateBody = `{{prompt}}{{#if productName}} for {{productName}}{{/if}}{{#if style}}, {{style}} style{{/if}}, production-ready product artwork`

var builtinTemplates = []Template{
	{
		Occasion: "birthday",
		Style:    "playful",
		Body:     `{{prompt}}, cheerful birthday theme for {{productName}}, bright confetti accents, playful composition`,
	},
	{
		Occasion: "wedding",
		Style:    "elegant",
		Body:     `{{prompt}}, refined wedding motif for {{productName}}, soft palette, elegant ornamental detail`,
	},
	{
		Occasion: "corporate",
		Style:    "minimal",
		Body:     `{{prompt}}, clean corporate identity artwork for {{productName}}, minimal layout, restrained palette`,
	},
	{
		Occasion: "holiday",
		Style:    "festive",
		Body:     `{{prompt}}, festive seasonal artwork for {{productName}}, warm tones, celebratory detail`,
	},
}

// NewStaticLibrary builds the built-in template library.
func NewStaticLibrary() *StaticLibrary {
	lib := &StaticLibrary{templates: make(map[string]Template, len(builtinTemplates))}
	for _, tpl := range builtinTemplates {
		lib.templates[templateKey(tpl.Occasion, tpl.Style)] = tpl
	}
	return lib
}

// Template returns the template for the occasion/style pair, falling back
// to an occasion-only match and then to the default template.
func (l *StaticLibrary) Template(occasion, style string) (Template, error) {
	if tpl, ok := l.templates[templateKey(occasion, style)]; ok {
		return tpl, nil
	}
	for _, tpl := range l.templates {
		if strings.EqualFold(tpl.Occasion, occasion) {
			return tpl, nil
		}
	}
	return Template{Occasion: occasion, Style: style, Body: defaultTemplateBody}, nil
}

// Render expands the template against the given context.
func (l *StaticLibrary) Render(tpl Template, context map[string]any) (string, error) {
	out, err := raymond.Render(tpl.Body, context)
	if err != nil {
		return "", fmt.Errorf("render prompt template %s/%s: %w", tpl.Occasion, tpl.Style, err)
	}
	return strings.TrimSpace(out), nil
}

func templateKey(occasion, style string) string {
	return strings.ToLower(strings.TrimSpace(occasion)) + "/" + strings.ToLower(strings.TrimSpace(style))
}

var _ Library = (*StaticLibrary)(nil)
