package markdown

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jo-hoe/ocrdesk/internal/fileutil"
	"github.com/jo-hoe/ocrdesk/internal/ocrapi"
)

const maxAssetBytes = 64 << 20

// ExtractText joins the markdown of all pages with a blank line.
func ExtractText(result *ocrapi.Result) string {
	if result == nil {
		return ""
	}
	texts := make([]string, 0, len(result.Pages))
	for _, page := range result.Pages {
		texts = append(texts, page.Markdown.Text)
	}
	return strings.Join(texts, "\n\n")
}

// Manager saves recognition results and downloads their image assets.
type Manager struct {
	httpClient *http.Client
}

func NewManager(httpClient *http.Client) *Manager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Manager{httpClient: httpClient}
}

// Save writes doc_<i>.md for every page, the page's markdown images under
// their relative path and the output images as <name>_<i>.jpg.
// Failed downloads are logged and skipped. It returns the saved files.
func (m *Manager) Save(ctx context.Context, result *ocrapi.Result, outputDir string) ([]string, error) {
	if err := fileutil.EnsureDir(outputDir); err != nil {
		return nil, err
	}

	var saved []string
	for i, page := range result.Pages {
		mdPath := filepath.Join(outputDir, fmt.Sprintf("doc_%d.md", i))
		if err := fileutil.WriteFile(mdPath, []byte(page.Markdown.Text)); err != nil {
			return saved, err
		}
		saved = append(saved, mdPath)

		for imgPath, imgURL := range page.Markdown.Images {
			target, err := safeJoin(outputDir, imgPath)
			if err != nil {
				slog.Warn("skipping markdown image with unsafe path", "path", imgPath, "error", err)
				continue
			}
			if err := m.download(ctx, imgURL, target); err != nil {
				if ctx.Err() != nil {
					return saved, ctx.Err()
				}
				slog.Error("failed to download markdown image", "url", imgURL, "error", err)
			}
		}

		for name, imgURL := range page.OutputImages {
			target := filepath.Join(outputDir, fmt.Sprintf("%s_%d.jpg", filepath.Base(name), i))
			if err := m.download(ctx, imgURL, target); err != nil {
				if ctx.Err() != nil {
					return saved, ctx.Err()
				}
				slog.Error("failed to download output image", "url", imgURL, "error", err)
				continue
			}
			saved = append(saved, target)
		}
	}

	slog.Info("saved markdown result", "output_dir", outputDir, "files", len(saved))
	return saved, nil
}

// LocalizeImages downloads every markdown image into imgsDir under its relative
// path and points the image references in text at the local copy. Images that
// fail to download keep their original reference.
func (m *Manager) LocalizeImages(ctx context.Context, result *ocrapi.Result, text, imgsDir string) string {
	if result == nil {
		return text
	}
	var pairs []string
	for _, page := range result.Pages {
		for imgPath, imgURL := range page.Markdown.Images {
			target, err := safeJoin(imgsDir, imgPath)
			if err != nil {
				slog.Warn("skipping markdown image with unsafe path", "path", imgPath, "error", err)
				continue
			}
			if err := m.download(ctx, imgURL, target); err != nil {
				slog.Error("failed to download image", "url", imgURL, "error", err)
				continue
			}
			local := filepath.ToSlash(target)
			slog.Debug("image saved locally", "path", local)
			pairs = append(pairs, imageReferences(imgPath, local)...)
		}
	}
	if len(pairs) == 0 {
		return text
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// imageReferences returns old/new pairs for the markdown and HTML forms of an image reference.
func imageReferences(from, to string) []string {
	return []string{
		"](" + from + ")", "](" + to + ")",
		"](" + from + " ", "](" + to + " ",
		`src="` + from + `"`, `src="` + to + `"`,
		`src='` + from + `'`, `src='` + to + `'`,
	}
}

func (m *Manager) download(ctx context.Context, url, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes))
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}
	return fileutil.WriteFile(target, data)
}

// safeJoin keeps vendor supplied relative paths inside dir.
func safeJoin(dir, rel string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes %s", rel, dir)
	}
	return filepath.Join(dir, cleaned), nil
}
