package imageprocessing

import (
	"fmt"
	"image"
	"log/slog"

	"golang.org/x/image/draw"
)

const PixelScaleName = "PixelScaleCommand"

// PixelScaleCommand resizes to a width and/or height; a missing side keeps the aspect ratio.
type PixelScaleCommand struct {
	width  int
	height int
}

func NewPixelScaleCommand(params map[string]any) (Command, error) {
	_, hasWidth := params["width"]
	_, hasHeight := params["height"]
	if !hasWidth && !hasHeight {
		return nil, fmt.Errorf("at least one of 'height' or 'width' must be specified")
	}

	c := &PixelScaleCommand{}
	if hasWidth {
		c.width = GetIntParam(params, "width", 0)
		if c.width <= 0 {
			return nil, fmt.Errorf("width must be positive, got %d", c.width)
		}
	}
	if hasHeight {
		c.height = GetIntParam(params, "height", 0)
		if c.height <= 0 {
			return nil, fmt.Errorf("height must be positive, got %d", c.height)
		}
	}
	return c, nil
}

// NewThumbnailCommand scales to the given width.
func NewThumbnailCommand(width int) (Command, error) {
	return NewPixelScaleCommand(map[string]any{"width": width})
}

func (c *PixelScaleCommand) Name() string {
	return PixelScaleName
}

// TargetSize computes the output size for an input of w x h.
func (c *PixelScaleCommand) TargetSize(w, h int) (int, int) {
	switch {
	case c.width > 0 && c.height > 0:
		return c.width, c.height
	case c.width > 0:
		return c.width, max(1, int(float64(c.width)*float64(h)/float64(w)))
	default:
		return max(1, int(float64(c.height)*float64(w)/float64(h))), c.height
	}
}

func (c *PixelScaleCommand) Execute(imageData []byte) ([]byte, error) {
	src, _, err := Decode(imageData)
	if err != nil {
		return nil, err
	}
	bounds := src.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("cannot scale empty image")
	}

	w, h := c.TargetSize(bounds.Dx(), bounds.Dy())
	slog.Debug("PixelScaleCommand: scaling image",
		"original_width", bounds.Dx(),
		"original_height", bounds.Dy(),
		"target_width", w,
		"target_height", h)

	return EncodePNG(scale(src, w, h))
}

func scale(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

func init() {
	mustRegister(PixelScaleName, NewPixelScaleCommand)
}
