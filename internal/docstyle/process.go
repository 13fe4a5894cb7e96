package docstyle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var ErrMissingPath = errors.New("template, target and output paths are required")

type Options struct {
	TemplatePath string
	TargetPath   string
	OutputPath   string
	// ManualMapping maps target style names to template style names.
	ManualMapping map[string]string
}

type Stats struct {
	TotalParagraphs        int `json:"total_paragraphs"`
	ProcessedParagraphs    int `json:"processed_paragraphs"`
	TotalTables            int `json:"total_tables"`
	ProcessedTables        int `json:"processed_tables"`
	SuccessfulApplications int `json:"successful_applications"`
	FailedApplications     int `json:"failed_applications"`
	SkippedElements        int `json:"skipped_elements"`
}

func (s *Stats) log() {
	slog.Info("style transfer finished",
		"total_paragraphs", s.TotalParagraphs,
		"processed_paragraphs", s.ProcessedParagraphs,
		"total_tables", s.TotalTables,
		"processed_tables", s.ProcessedTables,
		"successful_applications", s.SuccessfulApplications,
		"failed_applications", s.FailedApplications,
		"skipped_elements", s.SkippedElements)
}

// Process transfers the styles of the template onto the target and writes the result.
func Process(ctx context.Context, opts Options) (*Stats, error) {
	if opts.TemplatePath == "" || opts.TargetPath == "" || opts.OutputPath == "" {
		return nil, ErrMissingPath
	}
	slog.Info("starting style transfer", "template", opts.TemplatePath, "target", opts.TargetPath)

	tmpl, err := ExtractTemplate(opts.TemplatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to extract template styles: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target, err := openDocx(opts.TargetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load target: %w", err)
	}
	targetStyles, err := loadStyles(target)
	if err != nil {
		return nil, fmt.Errorf("failed to read target styles: %w", err)
	}

	mapping := BuildMapping(tmpl, targetStyles, opts.ManualMapping)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats, err := applyAll(target, tmpl, targetStyles, mapping)
	if err != nil {
		return nil, err
	}
	if err := target.save(opts.OutputPath); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", opts.OutputPath, err)
	}
	stats.log()
	slog.Info("processed document saved", "path", opts.OutputPath)
	return stats, nil
}

func applyAll(target *docx, tmpl *TemplateStyles, targetStyles []*Style, mapping Mapping) (*Stats, error) {
	doc, err := target.document(documentPart)
	if err != nil {
		return nil, err
	}
	stats := &Stats{}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("document has no root element")
	}
	body := root.SelectElement("w:body")
	if body == nil {
		return nil, fmt.Errorf("document has no body")
	}

	set := newStyleSet(targetStyles)
	paragraphs := body.SelectElements("w:p")
	stats.TotalParagraphs = len(paragraphs)
	applied := make(map[*Style]error)
	for i, p := range paragraphs {
		style := set.paragraphStyle(p)
		if style == nil {
			stats.SkippedElements++
			continue
		}
		from, ok := mapping[style.Name]
		if !ok {
			slog.Debug("paragraph style not mapped", "paragraph", i+1, "style", style.Name)
			stats.SkippedElements++
			continue
		}
		err, done := applied[style]
		if !done {
			err = applyStyle(style, from)
			applied[style] = err
		}
		if err != nil {
			slog.Error("failed to apply style", "paragraph", i+1, "error", err)
			stats.FailedApplications++
			continue
		}
		stats.ProcessedParagraphs++
		stats.SuccessfulApplications++
	}

	tables := body.SelectElements("w:tbl")
	stats.TotalTables = len(tables)
	stats.ProcessedTables = len(tables)
	stats.SuccessfulApplications += len(tables)

	if tmpl.Page == nil {
		slog.Debug("template has no page setup")
		stats.SkippedElements++
	} else if n := applyPageSetup(doc, tmpl.Page); n == 0 {
		stats.SkippedElements++
	} else {
		slog.Info("page setup applied", "sections", n, "orientation", tmpl.Page.Orientation)
		stats.SuccessfulApplications++
	}
	return stats, nil
}
