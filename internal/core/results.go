package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/jo-hoe/ocrdesk/internal/database"
	"github.com/jo-hoe/ocrdesk/internal/imageprocessing"
	"github.com/jo-hoe/ocrdesk/internal/markdown"
)

// ErrNoPreview is returned for records without a preview image, such as PDFs.
var ErrNoPreview = errors.New("record has no preview image")

// DefaultHistoryLimit is the number of records listed when no limit is given.
const DefaultHistoryLimit = 50

func (service *CoreService) GetRecognition(ctx context.Context, id string) (*Recognition, error) {
	record, err := service.databaseService.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	return recognitionFromRecord(record)
}

// ListHistory returns the newest recognitions without their payloads.
func (service *CoreService) ListHistory(ctx context.Context, limit int) ([]*database.Record, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return service.databaseService.ListRecords(ctx, limit)
}

// DeleteRecord removes the record and its downloaded images.
func (service *CoreService) DeleteRecord(ctx context.Context, id string) error {
	record, err := service.databaseService.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if err := service.databaseService.DeleteRecord(ctx, id); err != nil {
		return err
	}
	if _, err := service.databaseService.FindByHash(ctx, record.ImageHash, record.Engine); errors.Is(err, database.ErrNotFound) {
		if err := os.RemoveAll(service.assetDir(record.ImageHash)); err != nil {
			slog.Warn("failed to remove downloaded images", "id", id, "error", err)
		}
	}
	slog.Info("record deleted", "id", id)
	return nil
}

// CopyResult puts the recognized markdown on the clipboard and returns it.
// The original image references are copied, not the local ones.
func (service *CoreService) CopyResult(ctx context.Context, id string) (string, error) {
	record, err := service.databaseService.GetRecord(ctx, id)
	if err != nil {
		return "", err
	}
	if err := service.clipboard.Copy(record.Markdown); err != nil {
		return "", err
	}
	slog.Info("recognition copied to clipboard", "id", id, "length", len(record.Markdown))
	return record.Markdown, nil
}

// SaveResult writes the markdown pages and their images below dir, or the configured output directory.
func (service *CoreService) SaveResult(ctx context.Context, id, dir string) ([]string, error) {
	recognition, err := service.GetRecognition(ctx, id)
	if err != nil {
		return nil, err
	}
	if recognition.Result == nil {
		return nil, fmt.Errorf("record %s has no stored result", id)
	}
	if dir == "" {
		dir = filepath.Join(service.config.Paths.Output, id)
	}
	slog.Info("saving markdown", "id", id, "output_dir", dir)
	return service.markdown.Save(ctx, recognition.Result, dir)
}

// RenderPage renders the markdown of a record as a standalone HTML page whose
// relative image sources point below assetBase.
func (service *CoreService) RenderPage(ctx context.Context, id, assetBase string) (string, error) {
	record, err := service.databaseService.GetRecord(ctx, id)
	if err != nil {
		return "", err
	}
	return markdown.RenderHTML(record.Markdown, assetBase)
}

// Preview returns the stored PNG preview of a record.
func (service *CoreService) Preview(ctx context.Context, id string) ([]byte, error) {
	record, err := service.databaseService.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(record.Preview) == 0 {
		return nil, ErrNoPreview
	}
	return record.Preview, nil
}

// Thumbnail scales the preview to the configured thumbnail width.
func (service *CoreService) Thumbnail(ctx context.Context, id string) ([]byte, error) {
	preview, err := service.Preview(ctx, id)
	if err != nil {
		return nil, err
	}
	command, err := imageprocessing.NewThumbnailCommand(service.config.ThumbnailWidth)
	if err != nil {
		return nil, fmt.Errorf("failed to create thumbnail command: %w", err)
	}
	thumbnail, err := command.Execute(preview)
	if err != nil {
		return nil, fmt.Errorf("failed to generate thumbnail: %w", err)
	}
	return thumbnail, nil
}

// Asset locates a markdown image of a record. It returns the local file when
// it was downloaded and the remote URL otherwise.
func (service *CoreService) Asset(ctx context.Context, id, name string) (localPath, remoteURL string, err error) {
	record, err := service.databaseService.GetRecord(ctx, id)
	if err != nil {
		return "", "", err
	}
	recognition, err := recognitionFromRecord(record)
	if err != nil {
		return "", "", err
	}

	// rooted clean keeps the name inside the asset directory
	rel := path.Clean("/" + name)[1:]
	if rel == "" {
		return "", "", fmt.Errorf("%w: empty asset name of %s", database.ErrNotFound, id)
	}
	candidate := filepath.Join(service.assetDir(record.ImageHash), filepath.FromSlash(rel))
	if info, statErr := os.Stat(candidate); statErr == nil && !info.IsDir() {
		return candidate, "", nil
	}
	if recognition.Result != nil {
		for _, page := range recognition.Result.Pages {
			for ref, url := range page.Markdown.Images {
				if path.Clean(ref) == rel {
					return "", url, nil
				}
			}
		}
	}
	return "", "", fmt.Errorf("%w: asset %s of %s", database.ErrNotFound, rel, id)
}

