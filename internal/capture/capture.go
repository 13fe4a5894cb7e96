package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/jo-hoe/ocrdesk/internal/fileutil"
	"github.com/jo-hoe/ocrdesk/internal/imageprocessing"
	"github.com/kbinani/screenshot"
)

var (
	ErrNoDisplay        = errors.New("no active display found")
	ErrIncompleteRegion = errors.New("region needs both width and height")
	// ErrRegionTooSmall mirrors the minimum drag selection of 10x10 pixels.
	ErrRegionTooSmall = imageprocessing.ErrRegionTooSmall
)

type Region = imageprocessing.Region

// SelectRegion builds the capture region from form or request fields. Both
// sizes zero selects the primary display and yields nil.
func SelectRegion(left, top, width, height int) (*Region, error) {
	if width == 0 && height == 0 {
		return nil, nil
	}
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("%w: got %dx%d", ErrIncompleteRegion, width, height)
	}
	return &Region{Left: left, Top: top, Width: width, Height: height}, nil
}

// Grabber reads pixels from the screen.
type Grabber interface {
	NumDisplays() int
	DisplayBounds(index int) image.Rectangle
	CaptureRect(rect image.Rectangle) (*image.RGBA, error)
}

type systemGrabber struct{}

func (systemGrabber) NumDisplays() int { return screenshot.NumActiveDisplays() }

func (systemGrabber) DisplayBounds(index int) image.Rectangle { return screenshot.GetDisplayBounds(index) }

func (systemGrabber) CaptureRect(rect image.Rectangle) (*image.RGBA, error) {
	return screenshot.CaptureRect(rect)
}

// SystemGrabber captures the real desktop.
func SystemGrabber() Grabber {
	return systemGrabber{}
}

// Capturer produces PNG screenshots.
type Capturer struct {
	grabber Grabber
}

func NewCapturer(grabber Grabber) *Capturer {
	if grabber == nil {
		grabber = SystemGrabber()
	}
	return &Capturer{grabber: grabber}
}

// CaptureFullscreen captures the primary display.
func (c *Capturer) CaptureFullscreen(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.grabber.NumDisplays() == 0 {
		return nil, ErrNoDisplay
	}
	return c.capture(c.grabber.DisplayBounds(0))
}

// CaptureRegion captures a rectangle in desktop coordinates. The rectangle is
// clipped to the displays and must stay larger than 10x10 pixels.
func (c *Capturer) CaptureRegion(ctx context.Context, region Region) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := region.Validate(); err != nil {
		return nil, err
	}
	n := c.grabber.NumDisplays()
	if n == 0 {
		return nil, ErrNoDisplay
	}

	var desktop image.Rectangle
	for i := range n {
		desktop = desktop.Union(c.grabber.DisplayBounds(i))
	}
	rect := region.Rect().Intersect(desktop)
	if rect.Dx() <= imageprocessing.MinRegionSide || rect.Dy() <= imageprocessing.MinRegionSide {
		return nil, fmt.Errorf("%w: region %v is outside the desktop %v", ErrRegionTooSmall, region.Rect(), desktop)
	}
	return c.capture(rect)
}

func (c *Capturer) capture(rect image.Rectangle) ([]byte, error) {
	img, err := c.grabber.CaptureRect(rect)
	if err != nil {
		return nil, fmt.Errorf("failed to capture screen: %w", err)
	}
	data, err := imageprocessing.EncodePNG(img)
	if err != nil {
		return nil, err
	}
	slog.Info("screenshot captured",
		"left", rect.Min.X,
		"top", rect.Min.Y,
		"width", rect.Dx(),
		"height", rect.Dy(),
		"size_bytes", len(data))
	return data, nil
}

// Save writes screenshot bytes to path, creating missing directories.
func Save(img []byte, path string) error {
	return fileutil.WriteFile(path, img)
}
