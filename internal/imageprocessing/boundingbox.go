package imageprocessing

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font/gofont/goregular"
)

const BoundingBoxName = "BoundingBoxCommand"

// Box is a labeled rectangle in the coordinate space of the recognized page.
type Box struct {
	Label string
	X1    float64
	Y1    float64
	X2    float64
	Y2    float64
}

var labelFont = sync.OnceValues(func() (*truetype.Font, error) {
	return truetype.Parse(goregular.TTF)
})

// BoundingBoxCommand draws layout regions and their labels on top of the image.
type BoundingBoxCommand struct {
	boxes      []Box
	pageWidth  float64
	pageHeight float64
	lineWidth  float64
	fontSize   float64
}

// NewBoundingBoxCommand draws boxes given in a page of pageWidth x pageHeight;
// zero page dimensions mean the boxes already use image coordinates.
func NewBoundingBoxCommand(boxes []Box, pageWidth, pageHeight int) *BoundingBoxCommand {
	return &BoundingBoxCommand{
		boxes:      boxes,
		pageWidth:  float64(pageWidth),
		pageHeight: float64(pageHeight),
		lineWidth:  2,
		fontSize:   14,
	}
}

func (c *BoundingBoxCommand) Name() string {
	return BoundingBoxName
}

func (c *BoundingBoxCommand) Execute(imageData []byte) ([]byte, error) {
	if len(c.boxes) == 0 {
		return imageData, nil
	}
	src, _, err := Decode(imageData)
	if err != nil {
		return nil, err
	}
	font, err := labelFont()
	if err != nil {
		return nil, fmt.Errorf("failed to load label font: %w", err)
	}

	dc := gg.NewContextForImage(src)
	sx, sy := 1.0, 1.0
	if c.pageWidth > 0 && c.pageHeight > 0 {
		sx = float64(dc.Width()) / c.pageWidth
		sy = float64(dc.Height()) / c.pageHeight
	}
	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: c.fontSize}))
	dc.SetLineWidth(c.lineWidth)

	for _, box := range c.boxes {
		x, y := box.X1*sx, box.Y1*sy
		w, h := (box.X2-box.X1)*sx, (box.Y2-box.Y1)*sy
		if w <= 0 || h <= 0 {
			continue
		}
		col := LabelColor(box.Label)

		dc.SetColor(col)
		dc.DrawRectangle(x, y, w, h)
		dc.Stroke()

		if box.Label == "" {
			continue
		}
		tw, th := dc.MeasureString(box.Label)
		dc.DrawRectangle(x, y, tw+6, th+6)
		dc.Fill()
		dc.SetRGB(1, 1, 1)
		dc.DrawStringAnchored(box.Label, x+3, y+3, 0, 1)
	}

	slog.Debug("BoundingBoxCommand: drew regions", "count", len(c.boxes))
	return EncodePNG(dc.Image())
}

// LabelColor gives every label a stable, saturated color.
func LabelColor(label string) colorful.Color {
	h := fnv.New32a()
	_, _ = h.Write([]byte(label))
	hue := float64(h.Sum32() % 360)
	return colorful.Hsv(hue, 0.8, 0.85)
}
