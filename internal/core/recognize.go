package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/jo-hoe/ocrdesk/internal/capture"
	"github.com/jo-hoe/ocrdesk/internal/database"
	"github.com/jo-hoe/ocrdesk/internal/fileutil"
	"github.com/jo-hoe/ocrdesk/internal/imageprocessing"
	"github.com/jo-hoe/ocrdesk/internal/markdown"
	"github.com/jo-hoe/ocrdesk/internal/ocrapi"
)

// Recognition is a finished recognition as shown to the user.
type Recognition struct {
	ID         string    `json:"id"`
	FileName   string    `json:"fileName"`
	SourceKind string    `json:"sourceKind"`
	Engine     string    `json:"engine"`
	CreatedAt  time.Time `json:"createdAt"`
	Markdown   string    `json:"markdown"`
	// LocalMarkdown references the downloaded copies of the result images.
	LocalMarkdown string         `json:"localMarkdown"`
	Result        *ocrapi.Result `json:"result"`
	// Reused is set when an earlier recognition of the same document was returned.
	Reused bool `json:"reused"`
}

type source struct {
	kind string
	name string
	data []byte
}

// RecognizeUpload recognizes an uploaded image or PDF.
func (service *CoreService) RecognizeUpload(ctx context.Context, name string, data []byte, opts ocrapi.Options) (*Recognition, error) {
	if len(data) == 0 {
		return nil, ocrapi.ErrEmptyDocument
	}
	if !fileutil.IsSupported(name) {
		return nil, fmt.Errorf("%w: %s", fileutil.ErrUnsupportedFile, name)
	}
	return service.recognize(ctx, source{kind: database.SourceFile, name: filepath.Base(name), data: data}, opts)
}

// RecognizeScreenshot captures the region, or the primary display when region is nil, and recognizes it.
func (service *CoreService) RecognizeScreenshot(ctx context.Context, region *capture.Region, opts ocrapi.Options) (*Recognition, error) {
	var (
		data []byte
		err  error
	)
	if region == nil {
		data, err = service.capturer.CaptureFullscreen(ctx)
	} else {
		data, err = service.capturer.CaptureRegion(ctx, *region)
	}
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("screenshot_%s.png", time.Now().Format("20060102_150405"))
	return service.recognize(ctx, source{kind: database.SourceScreenshot, name: name, data: data}, opts)
}

func (service *CoreService) recognize(ctx context.Context, src source, opts ocrapi.Options) (*Recognition, error) {
	key := documentKey(src.data, opts)
	engineName := service.engine.Name()

	existing, err := service.databaseService.FindByHash(ctx, key, engineName)
	switch {
	case err == nil:
		slog.Info("document was recognized before, reusing result", "id", existing.ID, "file", src.name)
		recognition, err := recognitionFromRecord(existing)
		if err != nil {
			return nil, err
		}
		recognition.Reused = true
		return recognition, nil
	case !errors.Is(err, database.ErrNotFound):
		return nil, fmt.Errorf("failed to look up previous recognition: %w", err)
	}

	doc := ocrapi.Document{Name: src.name, Data: src.data, Type: ocrapi.FileTypeImage}
	var preview []byte
	if fileutil.IsPDF(src.name, src.data) {
		doc.Type = ocrapi.FileTypePDF
		if pages, err := fileutil.PageCount(src.data); err == nil {
			slog.Info("recognizing pdf", "file", src.name, "pages", pages)
		} else {
			slog.Warn("could not count pdf pages", "file", src.name, "error", err)
		}
	} else {
		if fileutil.NeedsConversion(src.name) {
			if doc.Data, err = convertToPNG(ctx, doc.Data); err != nil {
				return nil, fmt.Errorf("failed to convert %s: %w", src.name, err)
			}
			doc.Name = strings.TrimSuffix(src.name, filepath.Ext(src.name)) + ".png"
		}
		if doc.Data, err = service.pipeline.Execute(ctx, doc.Data); err != nil {
			return nil, fmt.Errorf("failed to prepare image: %w", err)
		}
		preview = service.previewImage(doc.Data)
	}

	result, err := service.recognizeCached(ctx, key, doc, opts)
	if err != nil {
		return nil, err
	}

	text := markdown.ExtractText(result)
	local := service.markdown.LocalizeImages(ctx, result, text, service.assetDir(key))
	if opts.Visualize && preview != nil && len(result.Pages) == 1 {
		preview = service.visualize(preview, result.Pages[0])
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	record := &database.Record{
		SourceKind:    src.kind,
		FileName:      src.name,
		ImageHash:     key,
		Engine:        engineName,
		Preview:       preview,
		Markdown:      text,
		LocalMarkdown: local,
		ResultJSON:    resultJSON,
	}
	if _, err := service.databaseService.CreateRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store recognition: %w", err)
	}

	slog.Info("recognition finished",
		"id", record.ID,
		"file", src.name,
		"engine", engineName,
		"pages", len(result.Pages),
		"markdown_length", len(text))
	return &Recognition{
		ID:            record.ID,
		FileName:      record.FileName,
		SourceKind:    record.SourceKind,
		Engine:        record.Engine,
		CreatedAt:     record.CreatedAt,
		Markdown:      text,
		LocalMarkdown: local,
		Result:        result,
	}, nil
}

// recognizeCached consults the response cache before calling the engine.
func (service *CoreService) recognizeCached(ctx context.Context, key string, doc ocrapi.Document, opts ocrapi.Options) (*ocrapi.Result, error) {
	cacheKey := service.engine.Name() + ":" + key
	if raw, ok, err := service.cache.Get(ctx, cacheKey); err != nil {
		slog.Warn("cache lookup failed", "error", err)
	} else if ok {
		var result ocrapi.Result
		if err := json.Unmarshal(raw, &result); err == nil {
			slog.Info("using cached recognition result", "file", doc.Name)
			return &result, nil
		}
		slog.Warn("ignoring undecodable cache entry", "key", cacheKey)
	}

	result, err := service.engine.Recognize(ctx, doc, opts)
	if err != nil {
		return nil, fmt.Errorf("recognition failed: %w", err)
	}
	if raw, err := json.Marshal(result); err == nil {
		if err := service.cache.Set(ctx, cacheKey, raw); err != nil {
			slog.Warn("failed to cache recognition result", "error", err)
		}
	}
	return result, nil
}

// convertToPNG renders formats the layout-parsing service does not read, such
// as SVG, WebP and TIFF, as PNG on a white background.
func convertToPNG(ctx context.Context, data []byte) ([]byte, error) {
	return imageprocessing.ExecuteCommands(ctx, data, []imageprocessing.CommandConfig{{
		Name:   imageprocessing.PngConverterName,
		Params: map[string]any{"flatten": true},
	}})
}

// previewImage converts the recognized image to PNG; failures leave the record without a preview.
func (service *CoreService) previewImage(data []byte) []byte {
	converter, err := imageprocessing.NewPngConverterCommand(map[string]any{})
	if err != nil {
		slog.Warn("failed to create preview converter", "error", err)
		return nil
	}
	preview, err := converter.Execute(data)
	if err != nil {
		slog.Warn("failed to create preview", "error", err)
		return nil
	}
	return preview
}

func (service *CoreService) visualize(preview []byte, page ocrapi.Page) []byte {
	boxes := make([]imageprocessing.Box, 0, len(page.Regions))
	for _, region := range page.Regions {
		boxes = append(boxes, imageprocessing.Box{
			Label: region.Label,
			X1:    region.BBox.X1,
			Y1:    region.BBox.Y1,
			X2:    region.BBox.X2,
			Y2:    region.BBox.Y2,
		})
	}
	drawn, err := imageprocessing.NewBoundingBoxCommand(boxes, page.Width, page.Height).Execute(preview)
	if err != nil {
		slog.Warn("failed to draw layout regions", "error", err)
		return preview
	}
	return drawn
}

func (service *CoreService) assetDir(key string) string {
	return filepath.Join(service.config.Paths.Images, key[:16])
}

// documentKey identifies a document together with the options it is recognized with.
func documentKey(data []byte, opts ocrapi.Options) string {
	h := sha256.New()
	h.Write(data)
	fmt.Fprintf(h, "|%t|%t|%t|%t|%t",
		opts.UseDocOrientationClassify,
		opts.UseDocUnwarping,
		opts.UseChartRecognition,
		opts.PrettifyMarkdown,
		opts.Visualize)
	return hex.EncodeToString(h.Sum(nil))
}

func recognitionFromRecord(record *database.Record) (*Recognition, error) {
	recognition := &Recognition{
		ID:            record.ID,
		FileName:      record.FileName,
		SourceKind:    record.SourceKind,
		Engine:        record.Engine,
		CreatedAt:     record.CreatedAt,
		Markdown:      record.Markdown,
		LocalMarkdown: record.LocalMarkdown,
	}
	if len(record.ResultJSON) > 0 {
		var result ocrapi.Result
		if err := json.Unmarshal(record.ResultJSON, &result); err != nil {
			return nil, fmt.Errorf("failed to decode stored result %s: %w", record.ID, err)
		}
		recognition.Result = &result
	}
	return recognition, nil
}
