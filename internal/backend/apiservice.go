package backend

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jo-hoe/ocrdesk/internal/capture"
	"github.com/jo-hoe/ocrdesk/internal/clipboard"
	"github.com/jo-hoe/ocrdesk/internal/common"
	"github.com/jo-hoe/ocrdesk/internal/core"
	"github.com/jo-hoe/ocrdesk/internal/database"
	"github.com/jo-hoe/ocrdesk/internal/docstyle"
	"github.com/jo-hoe/ocrdesk/internal/fileutil"
	"github.com/jo-hoe/ocrdesk/internal/ocrapi"
	"github.com/labstack/echo/v4"
)

const mimePNG = "image/png"

type APIService struct {
	coreService *core.CoreService
	config      *core.ServiceConfig
}

// ScreenshotRequest selects a desktop region; leaving out width and height captures the primary display.
type ScreenshotRequest struct {
	Left    int             `json:"left"`
	Top     int             `json:"top"`
	Width   int             `json:"width" validate:"omitempty,gt=10"`
	Height  int             `json:"height" validate:"omitempty,gt=10"`
	Options *OptionsRequest `json:"options"`
}

// OptionsRequest overrides the configured recognition flags; nil fields keep the configuration.
type OptionsRequest struct {
	UseDocOrientationClassify *bool `json:"useDocOrientationClassify"`
	UseDocUnwarping           *bool `json:"useDocUnwarping"`
	UseChartRecognition       *bool `json:"useChartRecognition"`
	PrettifyMarkdown          *bool `json:"prettifyMarkdown"`
	Visualize                 *bool `json:"visualize"`
}

type SaveRequest struct {
	Dir string `json:"dir"`
}

type SaveResponse struct {
	Files []string `json:"files"`
}

type HistoryItem struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	FileName   string    `json:"fileName"`
	SourceKind string    `json:"sourceKind"`
	Engine     string    `json:"engine"`
}

func NewAPIService(config *core.ServiceConfig, coreService *core.CoreService) *APIService {
	return &APIService{
		coreService: coreService,
		config:      config,
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	// Set probe route
	e.GET("/probe", func(c echo.Context) error {
		return c.String(http.StatusOK, "API Service is running")
	})

	api := e.Group("/api")
	api.POST("/recognize", s.recognizeHandler)
	api.POST("/screenshot", s.screenshotHandler)

	api.GET("/results", s.listResultsHandler)
	api.GET("/results/:id", s.getResultHandler)
	api.DELETE("/results/:id", s.deleteResultHandler)
	api.GET("/results/:id/markdown", s.markdownHandler)
	api.GET("/results/:id/html", s.htmlHandler)
	api.GET("/results/:id/preview", s.previewHandler)
	api.GET("/results/:id/thumbnail", s.thumbnailHandler)
	api.GET("/results/:id/assets/*", s.assetHandler)
	api.POST("/results/:id/clipboard", s.clipboardHandler)
	api.POST("/results/:id/save", s.saveHandler)

	api.POST("/styles", s.stylesHandler)
	api.GET("/styles/:name", s.processedDocumentHandler)
	api.POST("/styles/search", s.styleSearchHandler)
}

func (s *APIService) recognizeHandler(ctx echo.Context) error {
	name, data, err := common.ReadFormFile(ctx, "file")
	if err != nil {
		slog.Warn("recognizeHandler: invalid upload", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	opts := OptionsFromValues(ctx.FormValue, s.coreService.DefaultOptions())

	recognition, err := s.coreService.RecognizeUpload(ctx.Request().Context(), name, data, opts)
	if err != nil {
		return errorResponse("recognizeHandler", err)
	}
	return ctx.JSON(http.StatusOK, recognition)
}

func (s *APIService) screenshotHandler(ctx echo.Context) error {
	var req ScreenshotRequest
	if err := common.BindAndValidate(ctx, &req); err != nil {
		return err
	}

	region, err := capture.SelectRegion(req.Left, req.Top, req.Width, req.Height)
	if err != nil {
		return errorResponse("screenshotHandler", err)
	}
	opts := req.Options.apply(s.coreService.DefaultOptions())

	recognition, err := s.coreService.RecognizeScreenshot(ctx.Request().Context(), region, opts)
	if err != nil {
		return errorResponse("screenshotHandler", err)
	}
	return ctx.JSON(http.StatusOK, recognition)
}

func (s *APIService) listResultsHandler(ctx echo.Context) error {
	limit, _ := strconv.Atoi(ctx.QueryParam("limit"))
	records, err := s.coreService.ListHistory(ctx.Request().Context(), limit)
	if err != nil {
		return errorResponse("listResultsHandler", err)
	}
	items := make([]HistoryItem, 0, len(records))
	for _, r := range records {
		items = append(items, HistoryItem{
			ID:         r.ID,
			CreatedAt:  r.CreatedAt,
			FileName:   r.FileName,
			SourceKind: r.SourceKind,
			Engine:     r.Engine,
		})
	}
	return ctx.JSON(http.StatusOK, items)
}

func (s *APIService) getResultHandler(ctx echo.Context) error {
	recognition, err := s.coreService.GetRecognition(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errorResponse("getResultHandler", err)
	}
	return ctx.JSON(http.StatusOK, recognition)
}

func (s *APIService) deleteResultHandler(ctx echo.Context) error {
	if err := s.coreService.DeleteRecord(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errorResponse("deleteResultHandler", err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *APIService) markdownHandler(ctx echo.Context) error {
	recognition, err := s.coreService.GetRecognition(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errorResponse("markdownHandler", err)
	}
	return ctx.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(recognition.Markdown))
}

func (s *APIService) htmlHandler(ctx echo.Context) error {
	id := ctx.Param("id")
	page, err := s.coreService.RenderPage(ctx.Request().Context(), id, AssetBase(id))
	if err != nil {
		return errorResponse("htmlHandler", err)
	}
	return ctx.HTML(http.StatusOK, page)
}

// AssetBase is the route prefix serving the markdown images of a result.
func AssetBase(id string) string {
	return "/api/results/" + url.PathEscape(id) + "/assets"
}

func (s *APIService) previewHandler(ctx echo.Context) error {
	preview, err := s.coreService.Preview(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errorResponse("previewHandler", err)
	}
	return ctx.Blob(http.StatusOK, mimePNG, preview)
}

func (s *APIService) thumbnailHandler(ctx echo.Context) error {
	thumbnail, err := s.coreService.Thumbnail(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errorResponse("thumbnailHandler", err)
	}
	return ctx.Blob(http.StatusOK, mimePNG, thumbnail)
}

func (s *APIService) assetHandler(ctx echo.Context) error {
	localPath, remoteURL, err := s.coreService.Asset(ctx.Request().Context(), ctx.Param("id"), ctx.Param("*"))
	if err != nil {
		return errorResponse("assetHandler", err)
	}
	if localPath != "" {
		return ctx.File(localPath)
	}
	return ctx.Redirect(http.StatusFound, remoteURL)
}

func (s *APIService) clipboardHandler(ctx echo.Context) error {
	text, err := s.coreService.CopyResult(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errorResponse("clipboardHandler", err)
	}
	return ctx.JSON(http.StatusOK, map[string]int{"length": len(text)})
}

func (s *APIService) saveHandler(ctx echo.Context) error {
	var req SaveRequest
	if ctx.Request().ContentLength > 0 {
		if err := common.BindAndValidate(ctx, &req); err != nil {
			return err
		}
	}
	files, err := s.coreService.SaveResult(ctx.Request().Context(), ctx.Param("id"), req.Dir)
	if err != nil {
		return errorResponse("saveHandler", err)
	}
	return ctx.JSON(http.StatusOK, SaveResponse{Files: files})
}

func (s *APIService) stylesHandler(ctx echo.Context) error {
	uploadDir, err := os.MkdirTemp("", "ocrdesk-styles-*")
	if err != nil {
		return errorResponse("stylesHandler", err)
	}
	defer func() { _ = os.RemoveAll(uploadDir) }()

	templatePath, err := common.SaveFormFile(ctx, "template", s.config.Paths.Templates)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	targetPath, err := common.SaveFormFile(ctx, "target", uploadDir)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	mapping, err := ParseMapping(ctx.FormValue("mapping"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	transfer, err := s.coreService.TransferStyles(ctx.Request().Context(), templatePath, targetPath, mapping)
	if err != nil {
		return errorResponse("stylesHandler", err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"name":  filepath.Base(transfer.OutputPath),
		"stats": transfer.Stats,
	})
}

func (s *APIService) processedDocumentHandler(ctx echo.Context) error {
	name := filepath.Base(ctx.Param("name"))
	path := filepath.Join(s.config.Paths.Output, name)
	if _, err := os.Stat(path); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "processed document not found")
	}
	return ctx.Attachment(path, name)
}

func (s *APIService) styleSearchHandler(ctx echo.Context) error {
	text := ctx.FormValue("text")
	if text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	uploadDir, err := os.MkdirTemp("", "ocrdesk-search-*")
	if err != nil {
		return errorResponse("styleSearchHandler", err)
	}
	defer func() { _ = os.RemoveAll(uploadDir) }()

	documentPath, err := common.SaveFormFile(ctx, "document", uploadDir)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	matches, err := s.coreService.FindStyles(documentPath, text)
	if err != nil {
		return errorResponse("styleSearchHandler", err)
	}
	if matches == nil {
		matches = []docstyle.TextMatch{}
	}
	return ctx.JSON(http.StatusOK, matches)
}

func (o *OptionsRequest) apply(defaults ocrapi.Options) ocrapi.Options {
	if o == nil {
		return defaults
	}
	set := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	set(&defaults.UseDocOrientationClassify, o.UseDocOrientationClassify)
	set(&defaults.UseDocUnwarping, o.UseDocUnwarping)
	set(&defaults.UseChartRecognition, o.UseChartRecognition)
	set(&defaults.PrettifyMarkdown, o.PrettifyMarkdown)
	set(&defaults.Visualize, o.Visualize)
	return defaults
}

// OptionsFromValues reads the recognition flags from form or query values, keeping defaults for absent keys.
func OptionsFromValues(value func(string) string, defaults ocrapi.Options) ocrapi.Options {
	return ocrapi.Options{
		UseDocOrientationClassify: common.ParseFlag(value("useDocOrientationClassify"), defaults.UseDocOrientationClassify),
		UseDocUnwarping:           common.ParseFlag(value("useDocUnwarping"), defaults.UseDocUnwarping),
		UseChartRecognition:       common.ParseFlag(value("useChartRecognition"), defaults.UseChartRecognition),
		PrettifyMarkdown:          common.ParseFlag(value("prettifyMarkdown"), defaults.PrettifyMarkdown),
		Visualize:                 common.ParseFlag(value("visualize"), defaults.Visualize),
	}
}

// StatusFor maps service errors to HTTP status codes.
func StatusFor(err error) int {
	var apiErr *ocrapi.APIError
	switch {
	case errors.Is(err, database.ErrNotFound), errors.Is(err, core.ErrNoPreview):
		return http.StatusNotFound
	case errors.Is(err, fileutil.ErrUnsupportedFile),
		errors.Is(err, ocrapi.ErrEmptyDocument),
		errors.Is(err, capture.ErrRegionTooSmall),
		errors.Is(err, capture.ErrIncompleteRegion),
		errors.Is(err, docstyle.ErrMissingPath):
		return http.StatusBadRequest
	case errors.Is(err, capture.ErrNoDisplay),
		errors.Is(err, clipboard.ErrUnavailable),
		errors.Is(err, ocrapi.ErrTesseractNotEnabled):
		return http.StatusServiceUnavailable
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorResponse(handler string, err error) error {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error(fmt.Sprintf("%s: request failed", handler), "status", status, "error", err)
	} else {
		slog.Warn(fmt.Sprintf("%s: request rejected", handler), "status", status, "error", err)
	}
	return echo.NewHTTPError(status, err.Error())
}
