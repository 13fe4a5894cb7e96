//go:build tesseract

package ocrapi

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

const TesseractEngineName = "tesseract"

// TesseractEngine recognizes images locally; it produces one page of plain
// paragraphs and never returns image assets.
type TesseractEngine struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

func NewTesseractEngine(languages ...string) (*TesseractEngine, error) {
	return &TesseractEngine{languages: languages, clientFactory: gosseract.NewClient}, nil
}

func (e *TesseractEngine) Name() string { return TesseractEngineName }

func (e *TesseractEngine) Recognize(ctx context.Context, doc Document, _ Options) (*Result, error) {
	if len(doc.Data) == 0 {
		return nil, ErrEmptyDocument
	}
	if doc.Type == FileTypePDF {
		return nil, fmt.Errorf("tesseract engine cannot read pdf %s", doc.Name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := e.clientFactory()
	defer func() {
		if err := c.Close(); err != nil {
			slog.Debug("failed to close tesseract client", "error", err)
		}
	}()

	if len(e.languages) > 0 {
		if err := c.SetLanguage(e.languages...); err != nil {
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	if err := c.SetImageFromBytes(doc.Data); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_PARA)
	if err != nil {
		return nil, fmt.Errorf("recognize paragraphs: %w", err)
	}

	page := Page{
		Markdown:     Markdown{Images: map[string]string{}},
		OutputImages: map[string]string{},
	}
	paragraphs := make([]string, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		paragraphs = append(paragraphs, text)
		page.Regions = append(page.Regions, Region{
			Label:   "text",
			Content: text,
			BBox: BBox{
				X1: float64(b.Box.Min.X),
				Y1: float64(b.Box.Min.Y),
				X2: float64(b.Box.Max.X),
				Y2: float64(b.Box.Max.Y),
			},
		})
	}
	page.Markdown.Text = strings.Join(paragraphs, "\n\n")

	slog.Info("tesseract recognition completed", "document", doc.Name, "paragraphs", len(paragraphs))
	return &Result{Pages: []Page{page}}, nil
}
