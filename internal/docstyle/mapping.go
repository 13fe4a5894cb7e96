package docstyle

import (
	"log/slog"
	"sort"
	"strings"
)

// Mapping maps a target style name to the template style applied to it.
type Mapping map[string]*Style

// BuildMapping matches template and target styles by case-insensitive name,
// then applies manual target-to-template overrides.
func BuildMapping(template *TemplateStyles, target []*Style, manual map[string]string) Mapping {
	candidates := template.Mappable()
	slog.Info("building style mapping", "template", len(candidates), "target", len(target))

	mapping := Mapping{}
	for _, tmpl := range candidates {
		for _, t := range target {
			if strings.EqualFold(tmpl.Name, t.Name) {
				mapping[t.Name] = tmpl
				slog.Debug("auto mapped style", "target", t.Name, "template", tmpl.Name)
				break
			}
		}
	}

	targetNames := make([]string, 0, len(manual))
	for name := range manual {
		targetNames = append(targetNames, name)
	}
	sort.Strings(targetNames)
	for _, targetName := range targetNames {
		templateName := manual[targetName]
		tmpl := findByName(candidates, templateName)
		if tmpl == nil {
			slog.Warn("manual mapping skipped, template style not found", "target", targetName, "template", templateName)
			continue
		}
		mapping[targetName] = tmpl
		slog.Info("manually mapped style", "target", targetName, "template", tmpl.Name)
	}

	used := make(map[string]bool, len(mapping))
	for _, tmpl := range mapping {
		used[tmpl.Name] = true
	}
	var unmapped []string
	for _, tmpl := range candidates {
		if !used[tmpl.Name] {
			unmapped = append(unmapped, tmpl.Name)
		}
	}
	if len(unmapped) > 0 {
		slog.Warn("template styles without a target", "styles", strings.Join(unmapped, ", "))
	}
	slog.Info("style mapping built", "mappings", len(mapping))
	return mapping
}

func findByName(styles []*Style, name string) *Style {
	for _, s := range styles {
		if strings.EqualFold(s.Name, name) {
			return s
		}
	}
	return nil
}
