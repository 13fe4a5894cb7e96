package imageprocessing

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

const PngConverterName = "PngConverterCommand"

// PngConverterCommand normalizes uploads (JPEG, GIF, BMP, TIFF, WebP, SVG) to PNG.
// SVGs are drawn on the background color; with flatten set, transparent raster
// images are composited onto it as well.
type PngConverterCommand struct {
	svgWidth   int
	svgHeight  int
	background color.RGBA
	flatten    bool
}

// NewPngConverterCommand reads the optional svgWidth/svgHeight used for SVGs
// without an explicit size, the background hex color and the flatten flag.
func NewPngConverterCommand(params map[string]any) (Command, error) {
	w := GetIntParam(params, "svgWidth", 1024)
	h := GetIntParam(params, "svgHeight", 1024)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("svgWidth and svgHeight must be positive, got %dx%d", w, h)
	}
	hex := GetStringParam(params, "background", "#ffffff")
	bg, err := colorful.Hex(hex)
	if err != nil {
		return nil, fmt.Errorf("invalid background color %q: %w", hex, err)
	}
	r, g, b := bg.RGB255()
	return &PngConverterCommand{
		svgWidth:   w,
		svgHeight:  h,
		background: color.RGBA{R: r, G: g, B: b, A: 255},
		flatten:    GetBoolParam(params, "flatten", false),
	}, nil
}

func (c *PngConverterCommand) Name() string {
	return PngConverterName
}

func (c *PngConverterCommand) Execute(imageData []byte) ([]byte, error) {
	if hasPngSignature(imageData) && !c.flatten {
		return imageData, nil
	}

	if isSVGData(imageData) {
		w, h, ok := svgExplicitSize(imageData)
		if !ok {
			w, h = c.svgWidth, c.svgHeight
		}
		slog.Debug("PngConverterCommand: rendering SVG", "width", w, "height", h)
		return renderSVG(imageData, w, h, c.background)
	}

	img, format, err := Decode(imageData)
	if err != nil {
		return nil, err
	}
	slog.Debug("PngConverterCommand: converting raster image",
		"format", format,
		"width", img.Bounds().Dx(),
		"height", img.Bounds().Dy())
	if c.flatten {
		return EncodePNG(c.flattened(img))
	}
	return EncodePNG(img)
}

// isSVGData looks for an <svg> element or the SVG namespace in the first 4KB.
func isSVGData(data []byte) bool {
	header := bytes.ToLower(bytes.TrimSpace(data[:min(len(data), 4096)]))
	return bytes.Contains(header, []byte("<svg")) ||
		bytes.Contains(header, []byte("http://www.w3.org/2000/svg"))
}

// svgExplicitSize extracts numeric width and height attributes from the root element.
// viewBox is not treated as a pixel size.
func svgExplicitSize(data []byte) (int, int, bool) {
	s := strings.ToLower(string(data[:min(len(data), 8192)]))
	start := strings.Index(s, "<svg")
	if start < 0 {
		return 0, 0, false
	}
	tag := s[start:]
	if end := strings.IndexByte(tag, '>'); end >= 0 {
		tag = tag[:end]
	}
	w, wOK := svgNumericAttr(tag, "width")
	h, hOK := svgNumericAttr(tag, "height")
	if !wOK || !hOK {
		return 0, 0, false
	}
	return w, h, true
}

// svgNumericAttr returns the leading integer of attr="123px".
func svgNumericAttr(tag, attr string) (int, bool) {
	for _, quote := range []string{`"`, `'`} {
		key := " " + attr + "=" + quote
		pos := strings.Index(tag, key)
		if pos < 0 {
			continue
		}
		value := tag[pos+len(key):]
		if end := strings.Index(value, quote); end >= 0 {
			value = value[:end]
		}
		digits := strings.TrimLeft(value, " ")
		n := 0
		for n < len(digits) && digits[n] >= '0' && digits[n] <= '9' {
			n++
		}
		num, err := strconv.Atoi(digits[:n])
		if err != nil || num <= 0 {
			return 0, false
		}
		return num, true
	}
	return 0, false
}

func (c *PngConverterCommand) flattened(img image.Image) *image.RGBA {
	b := img.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: c.background}, image.Point{}, draw.Src)
	draw.Draw(canvas, canvas.Bounds(), img, b.Min, draw.Over)
	return canvas
}

// renderSVG rasterizes the SVG onto a canvas of the given size and background.
func renderSVG(svgData []byte, width, height int, background color.Color) ([]byte, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svgData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}
	icon.SetTarget(0, 0, float64(width), float64(height))

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: background}, image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(width, height, canvas, canvas.Bounds())
	icon.Draw(rasterx.NewDasher(width, height, scanner), 1.0)

	return EncodePNG(canvas)
}

func init() {
	mustRegister(PngConverterName, NewPngConverterCommand)
}
