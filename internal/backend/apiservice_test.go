package backend

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/jo-hoe/ocrdesk/internal/capture"
	"github.com/jo-hoe/ocrdesk/internal/clipboard"
	"github.com/jo-hoe/ocrdesk/internal/common"
	"github.com/jo-hoe/ocrdesk/internal/core"
	"github.com/jo-hoe/ocrdesk/internal/database"
	"github.com/jo-hoe/ocrdesk/internal/fileutil"
	"github.com/jo-hoe/ocrdesk/internal/ocrapi"
	"github.com/labstack/echo/v4"
)

type stubEngine struct {
	mu     sync.Mutex
	opts   []ocrapi.Options
	text   string
	images map[string]string
}

func (e *stubEngine) Name() string { return "stub" }

func (e *stubEngine) Recognize(_ context.Context, doc ocrapi.Document, opts ocrapi.Options) (*ocrapi.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opts = append(e.opts, opts)
	text := e.text
	if text == "" {
		text = "# " + doc.Name
	}
	return &ocrapi.Result{Pages: []ocrapi.Page{{Markdown: ocrapi.Markdown{Text: text, Images: e.images}}}}, nil
}

type stubGrabber struct{}

func (stubGrabber) NumDisplays() int { return 1 }

func (stubGrabber) DisplayBounds(int) image.Rectangle { return image.Rect(0, 0, 200, 100) }

func (stubGrabber) CaptureRect(rect image.Rectangle) (*image.RGBA, error) {
	return image.NewRGBA(rect), nil
}

func setupServer(t *testing.T) (*echo.Echo, *stubEngine, *clipboard.Memory) {
	t.Helper()
	dir := t.TempDir()
	config := core.DefaultConfig()
	config.Database.ConnectionString = ":memory:"
	config.Paths = core.Paths{
		Output:    filepath.Join(dir, "output"),
		Images:    filepath.Join(dir, "imgs"),
		Templates: filepath.Join(dir, "template"),
	}
	engine := &stubEngine{}
	cb := clipboard.NewMemory()
	coreService, err := core.NewCoreService(context.Background(), config,
		core.WithEngine(engine),
		core.WithClipboard(cb),
		core.WithCapturer(capture.NewCapturer(stubGrabber{})))
	if err != nil {
		t.Fatalf("NewCoreService error: %v", err)
	}
	t.Cleanup(func() { _ = coreService.Close() })

	e := echo.New()
	e.Validator = &common.GenericEchoValidator{}
	NewAPIService(config, coreService).SetRoutes(e)
	return e, engine, cb
}

type formFile struct {
	field string
	name  string
	data  []byte
}

func multipartRequest(t *testing.T, target string, files []formFile, values map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatalf("CreateFormFile error: %v", err)
		}
		_, _ = part.Write(f.data)
	}
	for k, v := range values {
		_ = w.WriteField(k, v)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 24, 24))); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func uploadScan(t *testing.T, e *echo.Echo) core.Recognition {
	t.Helper()
	req := multipartRequest(t, "/api/recognize",
		[]formFile{{field: "file", name: "scan.png", data: testPNG(t)}},
		map[string]string{"useChartRecognition": "true"})
	rec := serve(e, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("recognize status %d: %s", rec.Code, rec.Body.String())
	}
	var recognition core.Recognition
	if err := json.Unmarshal(rec.Body.Bytes(), &recognition); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return recognition
}

func TestProbe(t *testing.T) {
	e, _, _ := setupServer(t)
	rec := serve(e, httptest.NewRequest(http.MethodGet, "/probe", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("probe status %d", rec.Code)
	}
}

func TestRecognizeAndResultRoutes(t *testing.T) {
	e, engine, cb := setupServer(t)

	recognition := uploadScan(t, e)
	if recognition.ID == "" || recognition.Markdown != "# scan.png" {
		t.Fatalf("unexpected recognition: %+v", recognition)
	}
	if !engine.opts[0].UseChartRecognition || !engine.opts[0].PrettifyMarkdown {
		t.Errorf("expected form flag plus configured defaults, got %+v", engine.opts[0])
	}

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/results", nil))
	var items []HistoryItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil || len(items) != 1 {
		t.Fatalf("expected one history item, got %s (%v)", rec.Body.String(), err)
	}

	base := "/api/results/" + recognition.ID
	rec = serve(e, httptest.NewRequest(http.MethodGet, base+"/markdown", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "# scan.png" {
		t.Errorf("markdown: %d %q", rec.Code, rec.Body.String())
	}

	rec = serve(e, httptest.NewRequest(http.MethodGet, base+"/html", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "<h1>scan.png") {
		t.Errorf("html: %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(e, httptest.NewRequest(http.MethodPost, base+"/clipboard", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("clipboard status %d", rec.Code)
	}
	if text, _ := cb.Paste(); text != "# scan.png" {
		t.Errorf("clipboard holds %q", text)
	}

	saveDir := t.TempDir()
	req := httptest.NewRequest(http.MethodPost, base+"/save", strings.NewReader(fmt.Sprintf(`{"dir":%q}`, saveDir)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = serve(e, req)
	var saved SaveResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &saved); err != nil || len(saved.Files) != 1 {
		t.Errorf("save: %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(e, httptest.NewRequest(http.MethodGet, base+"/thumbnail", nil))
	if rec.Code != http.StatusOK || rec.Header().Get(echo.HeaderContentType) != mimePNG {
		t.Errorf("thumbnail: %d %s", rec.Code, rec.Header().Get(echo.HeaderContentType))
	}

	rec = serve(e, httptest.NewRequest(http.MethodDelete, base, nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status %d", rec.Code)
	}
	rec = serve(e, httptest.NewRequest(http.MethodGet, base, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestResultPage_ServesImages(t *testing.T) {
	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fig.jpg" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("fig-bytes"))
	}))
	defer images.Close()

	e, engine, _ := setupServer(t)
	engine.text = "# Report\n\n![fig](imgs/fig.jpg)\n\n![gone](imgs/gone.jpg)"
	engine.images = map[string]string{
		"imgs/fig.jpg":  images.URL + "/fig.jpg",
		"imgs/gone.jpg": images.URL + "/gone.jpg",
	}
	recognition := uploadScan(t, e)

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/results/"+recognition.ID+"/html", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("html status %d", rec.Code)
	}
	sources := regexp.MustCompile(`<img[^>]* src="([^"]+)"`).FindAllStringSubmatch(rec.Body.String(), -1)
	if len(sources) != 2 {
		t.Fatalf("expected 2 images in page, got %s", rec.Body.String())
	}

	local := sources[0][1]
	if local != AssetBase(recognition.ID)+"/imgs/fig.jpg" {
		t.Errorf("unexpected image source %q", local)
	}
	rec = serve(e, httptest.NewRequest(http.MethodGet, local, nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "fig-bytes" {
		t.Errorf("local image: %d %q", rec.Code, rec.Body.String())
	}

	rec = serve(e, httptest.NewRequest(http.MethodGet, sources[1][1], nil))
	if rec.Code != http.StatusFound || rec.Header().Get(echo.HeaderLocation) != images.URL+"/gone.jpg" {
		t.Errorf("missing image: %d %q", rec.Code, rec.Header().Get(echo.HeaderLocation))
	}
}

func TestRecognize_Rejected(t *testing.T) {
	e, _, _ := setupServer(t)

	req := multipartRequest(t, "/api/recognize", []formFile{{field: "file", name: "notes.txt", data: []byte("x")}}, nil)
	if rec := serve(e, req); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unsupported file, got %d", rec.Code)
	}
	req = multipartRequest(t, "/api/recognize", nil, nil)
	if rec := serve(e, req); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing file, got %d", rec.Code)
	}
}

func TestScreenshot(t *testing.T) {
	e, engine, _ := setupServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"too small", `{"left":0,"top":0,"width":5,"height":50}`, http.StatusBadRequest},
		{"width only", `{"left":0,"top":0,"width":50}`, http.StatusBadRequest},
		{"height only", `{"height":50}`, http.StatusBadRequest},
		{"region", `{"left":10,"top":10,"width":50,"height":40,"options":{"visualize":false}}`, http.StatusOK},
		{"fullscreen", `{}`, http.StatusOK},
		{"invalid json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/screenshot", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := serve(e, req)
			if rec.Code != tt.want {
				t.Errorf("status %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
	if len(engine.opts) != 2 || engine.opts[0].Visualize {
		t.Errorf("unexpected engine calls: %+v", engine.opts)
	}
}

func minimalDocx(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, err := w.Create("word/document.xml")
	if err != nil {
		t.Fatalf("failed to create part: %v", err)
	}
	_, _ = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>hello</w:t></w:r></w:p></w:body></w:document>`))
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close archive: %v", err)
	}
	return buf.Bytes()
}

func TestStyles(t *testing.T) {
	e, _, _ := setupServer(t)
	doc := minimalDocx(t)

	req := multipartRequest(t, "/api/styles", []formFile{
		{field: "template", name: "template.docx", data: doc},
		{field: "target", name: "target.docx", data: doc},
	}, map[string]string{"mapping": "Normal=Normal"})
	rec := serve(e, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("styles status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Name  string `json:"name"`
		Stats struct {
			TotalParagraphs int `json:"total_paragraphs"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Name != "processed_target.docx" || resp.Stats.TotalParagraphs != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/api/styles/processed_target.docx", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("download status %d", rec.Code)
	}
	if body, _ := io.ReadAll(rec.Body); len(body) == 0 {
		t.Errorf("expected document body")
	}
	rec = serve(e, httptest.NewRequest(http.MethodGet, "/api/styles/unknown.docx", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	req = multipartRequest(t, "/api/styles/search", []formFile{{field: "document", name: "target.docx", data: doc}}, map[string]string{"text": "hell"})
	rec = serve(e, req)
	var matches []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &matches); err != nil || len(matches) != 1 {
		t.Errorf("search: %d %s", rec.Code, rec.Body.String())
	}
}

func TestParseMapping(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    map[string]string
		wantErr bool
	}{
		{"empty", "", nil, false},
		{"json", `{"Body Text":"Normal"}`, map[string]string{"Body Text": "Normal"}, false},
		{"pairs", "Body Text = Normal, Quote=Emphasis\nTitle=Heading 1", map[string]string{"Body Text": "Normal", "Quote": "Emphasis", "Title": "Heading 1"}, false},
		{"missing template", "Body=", nil, true},
		{"bad json", `{"a":`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMapping(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMapping error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("mapping[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{database.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", fileutil.ErrUnsupportedFile), http.StatusBadRequest},
		{capture.ErrRegionTooSmall, http.StatusBadRequest},
		{capture.ErrIncompleteRegion, http.StatusBadRequest},
		{clipboard.ErrUnavailable, http.StatusServiceUnavailable},
		{&ocrapi.APIError{StatusCode: 401}, http.StatusBadGateway},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestOptionsFromValues(t *testing.T) {
	values := map[string]string{"useDocUnwarping": "on", "visualize": "false"}
	opts := OptionsFromValues(func(k string) string { return values[k] }, ocrapi.DefaultOptions())
	if !opts.UseDocUnwarping || opts.Visualize || !opts.PrettifyMarkdown || opts.UseChartRecognition {
		t.Errorf("unexpected options: %+v", opts)
	}
}
