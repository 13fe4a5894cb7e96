package core

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jo-hoe/ocrdesk/internal/docstyle"
)

// StyleTransfer is the outcome of applying a template to a target document.
type StyleTransfer struct {
	OutputPath string          `json:"outputPath"`
	Stats      *docstyle.Stats `json:"stats"`
}

// TransferStyles applies the template's styles to the target and writes
// processed_<target name> into the output directory.
func (service *CoreService) TransferStyles(ctx context.Context, templatePath, targetPath string, manualMapping map[string]string) (*StyleTransfer, error) {
	for _, p := range []string{templatePath, targetPath} {
		if !strings.EqualFold(filepath.Ext(p), ".docx") {
			return nil, fmt.Errorf("%s is not a .docx file", filepath.Base(p))
		}
	}
	output := filepath.Join(service.config.Paths.Output, "processed_"+filepath.Base(targetPath))
	stats, err := docstyle.Process(ctx, docstyle.Options{
		TemplatePath:  templatePath,
		TargetPath:    targetPath,
		OutputPath:    output,
		ManualMapping: manualMapping,
	})
	if err != nil {
		return nil, fmt.Errorf("style transfer failed: %w", err)
	}
	return &StyleTransfer{OutputPath: output, Stats: stats}, nil
}

// FindStyles lists the paragraphs of a document containing text with their effective styles.
func (service *CoreService) FindStyles(documentPath, text string) ([]docstyle.TextMatch, error) {
	return docstyle.FindStylesByText(documentPath, text)
}

// TemplatePath resolves a template name inside the configured templates directory.
func (service *CoreService) TemplatePath(name string) string {
	return filepath.Join(service.config.Paths.Templates, filepath.Base(name))
}
