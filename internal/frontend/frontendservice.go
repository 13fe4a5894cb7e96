package frontend

import (
	"fmt"
	"html"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jo-hoe/ocrdesk/internal/backend"
	"github.com/jo-hoe/ocrdesk/internal/capture"
	"github.com/jo-hoe/ocrdesk/internal/common"
	"github.com/jo-hoe/ocrdesk/internal/core"
	"github.com/jo-hoe/ocrdesk/internal/docstyle"
	"github.com/jo-hoe/ocrdesk/internal/fileutil"
	"github.com/jo-hoe/ocrdesk/internal/markdown"
	"github.com/labstack/echo/v4"
)

const MainPageName = "index.html"

type FrontendService struct {
	coreService *core.CoreService
	config      *core.ServiceConfig
}

type flag struct {
	Name    string
	Label   string
	Checked bool
}

type indexData struct {
	Version string
	Engine  string
	Accept  string
	Flags   []flag
}

func NewFrontendService(config *core.ServiceConfig, coreService *core.CoreService) *FrontendService {
	return &FrontendService{
		coreService: coreService,
		config:      config,
	}
}

// rootRedirectHandler redirects root path to index.html
func (service *FrontendService) rootRedirectHandler(ctx echo.Context) error {
	return ctx.Redirect(http.StatusMovedPermanently, "/"+MainPageName)
}

func (service *FrontendService) SetRoutes(e *echo.Echo) {
	e.Renderer = &Template{
		templates: template.Must(template.New("").ParseFS(templateFS, viewsPattern)),
	}

	e.GET("/", service.rootRedirectHandler)
	e.GET("/"+MainPageName, service.indexHandler)

	e.POST("/htmx/recognize", service.htmxRecognizeHandler)
	e.POST("/htmx/screenshot", service.htmxScreenshotHandler)
	e.GET("/htmx/history", service.htmxHistoryHandler)
	e.GET("/htmx/result/:id", service.htmxResultHandler)
	e.DELETE("/htmx/result/:id", service.htmxDeleteResultHandler)
	e.POST("/htmx/result/:id/copy", service.htmxCopyHandler)
	e.POST("/htmx/result/:id/save", service.htmxSaveHandler)
	e.POST("/htmx/styles", service.htmxStylesHandler)

	e.GET("/icon.svg", service.iconHandler)
	e.GET("/result.css", service.stylesheetHandler)
}

func (service *FrontendService) indexHandler(ctx echo.Context) error {
	opts := service.coreService.DefaultOptions()
	return ctx.Render(http.StatusOK, MainPageName, indexData{
		Version: core.Version,
		Engine:  service.config.Engine,
		Accept:  strings.Join(fileutil.SupportedExtensions, ","),
		Flags: []flag{
			{Name: "useDocOrientationClassify", Label: "Orientation classification", Checked: opts.UseDocOrientationClassify},
			{Name: "useDocUnwarping", Label: "Document unwarping", Checked: opts.UseDocUnwarping},
			{Name: "useChartRecognition", Label: "Chart recognition", Checked: opts.UseChartRecognition},
			{Name: "prettifyMarkdown", Label: "Prettify markdown", Checked: opts.PrettifyMarkdown},
			{Name: "visualize", Label: "Visualize layout", Checked: opts.Visualize},
		},
	})
}

func (service *FrontendService) htmxRecognizeHandler(ctx echo.Context) error {
	name, data, err := common.ReadFormFile(ctx, "file")
	if err != nil {
		slog.Warn("htmxRecognizeHandler: invalid upload", "status", http.StatusBadRequest, "error", err)
		return ctx.HTML(http.StatusOK, errorHTML("No file uploaded"))
	}
	opts := backend.OptionsFromValues(ctx.FormValue, service.coreService.DefaultOptions())

	recognition, err := service.coreService.RecognizeUpload(ctx.Request().Context(), name, data, opts)
	if err != nil {
		slog.Error("htmxRecognizeHandler: recognition failed", "status", backend.StatusFor(err), "error", err, "filename", name)
		return ctx.HTML(http.StatusOK, errorHTML("Recognition failed: "+err.Error()))
	}
	return service.renderRecognition(ctx, recognition)
}

func (service *FrontendService) htmxScreenshotHandler(ctx echo.Context) error {
	region, err := parseRegion(ctx.FormValue)
	if err != nil {
		slog.Warn("htmxScreenshotHandler: invalid region", "status", http.StatusBadRequest, "error", err)
		return ctx.HTML(http.StatusOK, errorHTML(err.Error()))
	}
	opts := backend.OptionsFromValues(ctx.FormValue, service.coreService.DefaultOptions())

	recognition, err := service.coreService.RecognizeScreenshot(ctx.Request().Context(), region, opts)
	if err != nil {
		slog.Error("htmxScreenshotHandler: recognition failed", "status", backend.StatusFor(err), "error", err)
		return ctx.HTML(http.StatusOK, errorHTML("Screenshot recognition failed: "+err.Error()))
	}
	return service.renderRecognition(ctx, recognition)
}

// renderRecognition returns the result panel plus an out-of-band history refresh.
func (service *FrontendService) renderRecognition(ctx echo.Context, recognition *core.Recognition) error {
	panel, err := service.buildResultHTML(recognition)
	if err != nil {
		slog.Error("renderRecognition: failed to render result", "id", recognition.ID, "error", err)
		return ctx.HTML(http.StatusOK, errorHTML("Failed to render result"))
	}
	historyHTML, err := service.buildHistoryHTML(ctx, timestampNanoStr())
	if err != nil {
		slog.Error("renderRecognition: failed to list history for OOB update", "error", err)
		return ctx.HTML(http.StatusOK, panel)
	}
	service.setNoCache(ctx)
	return ctx.HTML(http.StatusOK, panel+fmt.Sprintf(`<div id="history-list" hx-swap-oob="true">%s</div>`, historyHTML))
}

func (service *FrontendService) htmxHistoryHandler(ctx echo.Context) error {
	historyHTML, err := service.buildHistoryHTML(ctx, timestampNanoStr())
	if err != nil {
		slog.Error("htmxHistoryHandler: failed to list history",
			"status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to list history")
	}
	service.setNoCache(ctx)
	return ctx.HTML(http.StatusOK, historyHTML)
}

func (service *FrontendService) htmxResultHandler(ctx echo.Context) error {
	id := ctx.Param("id")
	recognition, err := service.coreService.GetRecognition(ctx.Request().Context(), id)
	if err != nil {
		slog.Warn("htmxResultHandler: result not available", "status", backend.StatusFor(err), "id", id, "error", err)
		return ctx.String(backend.StatusFor(err), "Result not available")
	}
	panel, err := service.buildResultHTML(recognition)
	if err != nil {
		slog.Error("htmxResultHandler: failed to render result", "id", id, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to render result")
	}
	return ctx.HTML(http.StatusOK, panel)
}

func (service *FrontendService) htmxDeleteResultHandler(ctx echo.Context) error {
	id := ctx.Param("id")
	if err := service.coreService.DeleteRecord(ctx.Request().Context(), id); err != nil {
		slog.Error("htmxDeleteResultHandler: failed to delete result",
			"status", backend.StatusFor(err), "id", id, "error", err)
		return ctx.String(backend.StatusFor(err), "Failed to delete result")
	}

	historyHTML, err := service.buildHistoryHTML(ctx, timestampNanoStr())
	if err != nil {
		slog.Error("htmxDeleteResultHandler: failed to list history after delete",
			"status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to list history")
	}
	service.setNoCache(ctx)
	return ctx.HTML(http.StatusOK, historyHTML)
}

func (service *FrontendService) htmxCopyHandler(ctx echo.Context) error {
	id := ctx.Param("id")
	text, err := service.coreService.CopyResult(ctx.Request().Context(), id)
	if err != nil {
		slog.Error("htmxCopyHandler: failed to copy result", "id", id, "error", err)
		return ctx.HTML(http.StatusOK, errorHTML("Copy failed: "+err.Error()))
	}
	return ctx.HTML(http.StatusOK, fmt.Sprintf(`<small>Copied %d characters to the clipboard.</small>`, len([]rune(text))))
}

func (service *FrontendService) htmxSaveHandler(ctx echo.Context) error {
	id := ctx.Param("id")
	files, err := service.coreService.SaveResult(ctx.Request().Context(), id, strings.TrimSpace(ctx.FormValue("dir")))
	if err != nil {
		slog.Error("htmxSaveHandler: failed to save result", "id", id, "error", err)
		return ctx.HTML(http.StatusOK, errorHTML("Save failed: "+err.Error()))
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf(`<small>Saved %d files:</small><ul>`, len(files)))
	for _, f := range files {
		b.WriteString(fmt.Sprintf(`<li><code>%s</code></li>`, html.EscapeString(f)))
	}
	b.WriteString(`</ul>`)
	return ctx.HTML(http.StatusOK, b.String())
}

func (service *FrontendService) htmxStylesHandler(ctx echo.Context) error {
	uploadDir, err := os.MkdirTemp("", "ocrdesk-styles-*")
	if err != nil {
		slog.Error("htmxStylesHandler: failed to create upload directory", "error", err)
		return ctx.HTML(http.StatusOK, errorHTML("Failed to store uploaded documents"))
	}
	defer func() { _ = os.RemoveAll(uploadDir) }()

	templatePath, err := common.SaveFormFile(ctx, "template", service.config.Paths.Templates)
	if err != nil {
		slog.Warn("htmxStylesHandler: invalid template upload", "error", err)
		return ctx.HTML(http.StatusOK, errorHTML("Please select a template document"))
	}
	targetPath, err := common.SaveFormFile(ctx, "target", uploadDir)
	if err != nil {
		slog.Warn("htmxStylesHandler: invalid target upload", "error", err)
		return ctx.HTML(http.StatusOK, errorHTML("Please select a target document"))
	}
	mapping, err := backend.ParseMapping(ctx.FormValue("mapping"))
	if err != nil {
		return ctx.HTML(http.StatusOK, errorHTML(err.Error()))
	}

	transfer, err := service.coreService.TransferStyles(ctx.Request().Context(), templatePath, targetPath, mapping)
	if err != nil {
		slog.Error("htmxStylesHandler: style transfer failed", "error", err)
		return ctx.HTML(http.StatusOK, errorHTML("Style transfer failed: "+err.Error()))
	}
	return ctx.HTML(http.StatusOK, statsHTML(filepath.Base(transfer.OutputPath), transfer.Stats))
}

func (service *FrontendService) iconHandler(ctx echo.Context) error {
	data, err := assetsFS.ReadFile("views/icon.svg")
	if err != nil {
		slog.Error("iconHandler: failed to read icon.svg", "status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to load icon")
	}
	// Cache for 7 days
	ctx.Response().Header().Set("Cache-Control", "public, max-age=604800, immutable")
	return ctx.Blob(http.StatusOK, "image/svg+xml", data)
}

func (service *FrontendService) stylesheetHandler(ctx echo.Context) error {
	return ctx.Blob(http.StatusOK, "text/css; charset=utf-8", []byte(markdown.Stylesheet()))
}

func (service *FrontendService) buildResultHTML(recognition *core.Recognition) (string, error) {
	base := "/api/results/" + url.PathEscape(recognition.ID)
	body, err := markdown.RenderFragment(recognition.Markdown, backend.AssetBase(recognition.ID))
	if err != nil {
		return "", err
	}
	id := html.EscapeString(recognition.ID)

	var b strings.Builder
	b.WriteString(`<article id="result">`)
	b.WriteString(fmt.Sprintf(`<header class="toolbar"><strong>%s</strong>`, html.EscapeString(recognition.FileName)))
	if recognition.Reused {
		b.WriteString(`<small>(from history)</small>`)
	}
	b.WriteString(fmt.Sprintf(`
	<button hx-post="/htmx/result/%s/copy" hx-target="#result-status" hx-swap="innerHTML">Copy</button>
	<button hx-post="/htmx/result/%s/save" hx-target="#result-status" hx-swap="innerHTML" class="secondary">Save markdown</button>
	<a href="%s/html" target="_blank" rel="noopener">Open HTML</a>
	<a href="%s/markdown" download="%s.md">Download markdown</a>
</header>
<div id="result-status"></div>
<div class="result-body markdown-body">%s</div>
</article>`, id, id, base, base, id, body))
	return b.String(), nil
}

func (service *FrontendService) buildHistoryHTML(ctx echo.Context, ts string) (string, error) {
	records, err := service.coreService.ListHistory(ctx.Request().Context(), core.DefaultHistoryLimit)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return `<p>No recognitions yet.</p>`, nil
	}

	var b strings.Builder
	b.WriteString(`<div class="grid">`)
	for _, record := range records {
		id := html.EscapeString(record.ID)
		thumb := `<small>No preview</small>`
		if !fileutil.IsPDF(record.FileName, nil) {
			thumb = fmt.Sprintf(`<img src="/api/results/%s/thumbnail?ts=%s" alt="Preview %s" loading="lazy">`,
				url.PathEscape(record.ID), ts, html.EscapeString(record.FileName))
		}
		b.WriteString(fmt.Sprintf(`<div class="history-item" data-id="%s"><article>
	%s
	<footer class="toolbar">
		<small>%s &middot; %s</small>
		<button hx-get="/htmx/result/%s" hx-target="#result-panel" hx-swap="innerHTML" class="outline">Show</button>
		<button hx-delete="/htmx/result/%s" hx-target="#history-list" hx-swap="innerHTML" hx-confirm="Delete this result?" class="secondary">Delete</button>
	</footer>
</article></div>`, id, thumb, html.EscapeString(record.FileName), formatCreated(record.CreatedAt), id, id))
	}
	b.WriteString(`</div>`)
	return b.String(), nil
}

func (service *FrontendService) setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}

// parseRegion reads the screenshot form; empty width and height select the full screen.
func parseRegion(value func(string) string) (*capture.Region, error) {
	fields := []string{"left", "top", "width", "height"}
	numbers := make([]int, len(fields))
	for i, name := range fields {
		raw := strings.TrimSpace(value(name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q", name, raw)
		}
		numbers[i] = n
	}
	return capture.SelectRegion(numbers[0], numbers[1], numbers[2], numbers[3])
}

func statsHTML(name string, stats *docstyle.Stats) string {
	rows := []struct {
		label string
		value int
	}{
		{"Paragraphs", stats.TotalParagraphs},
		{"Processed paragraphs", stats.ProcessedParagraphs},
		{"Tables", stats.TotalTables},
		{"Processed tables", stats.ProcessedTables},
		{"Successful applications", stats.SuccessfulApplications},
		{"Failed applications", stats.FailedApplications},
		{"Skipped elements", stats.SkippedElements},
	}
	var b strings.Builder
	b.WriteString(`<table><tbody>`)
	for _, row := range rows {
		b.WriteString(fmt.Sprintf(`<tr><th scope="row">%s</th><td>%d</td></tr>`, row.label, row.value))
	}
	b.WriteString(`</tbody></table>`)
	b.WriteString(fmt.Sprintf(`<a href="/api/styles/%s" role="button">Download %s</a>`,
		url.PathEscape(name), html.EscapeString(name)))
	return b.String()
}

func errorHTML(message string) string {
	return fmt.Sprintf(`<p role="alert"><mark>%s</mark></p>`, html.EscapeString(message))
}

func formatCreated(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func timestampNanoStr() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
