package imageprocessing

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"log/slog"
)

const RegionCropName = "RegionCropCommand"

// MinRegionSide is the smallest accepted selection edge in pixels.
const MinRegionSide = 10

// ErrRegionTooSmall is returned for selections of MinRegionSide pixels or less on either side.
var ErrRegionTooSmall = errors.New("selected region is too small")

// Region is a rectangle given by its top-left corner and size.
type Region struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect converts the region into an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.Left, r.Top, r.Left+r.Width, r.Top+r.Height)
}

// Validate rejects selections that are not larger than MinRegionSide in both directions.
func (r Region) Validate() error {
	if r.Width <= MinRegionSide || r.Height <= MinRegionSide {
		return fmt.Errorf("%w: %dx%d", ErrRegionTooSmall, r.Width, r.Height)
	}
	return nil
}

// RegionCropCommand cuts a region out of the image; the region is clipped to the image bounds.
type RegionCropCommand struct {
	region Region
}

func NewRegionCropCommand(params map[string]any) (Command, error) {
	if err := ValidateRequiredParams(params, []string{"left", "top", "width", "height"}); err != nil {
		return nil, err
	}
	return NewRegionCropCommandDirect(Region{
		Left:   GetIntParam(params, "left", 0),
		Top:    GetIntParam(params, "top", 0),
		Width:  GetIntParam(params, "width", 0),
		Height: GetIntParam(params, "height", 0),
	})
}

func NewRegionCropCommandDirect(region Region) (*RegionCropCommand, error) {
	if err := region.Validate(); err != nil {
		return nil, err
	}
	return &RegionCropCommand{region: region}, nil
}

func (c *RegionCropCommand) Name() string {
	return RegionCropName
}

func (c *RegionCropCommand) Execute(imageData []byte) ([]byte, error) {
	src, _, err := Decode(imageData)
	if err != nil {
		return nil, err
	}
	rect := c.region.Rect().Add(src.Bounds().Min).Intersect(src.Bounds())
	if rect.Dx() <= MinRegionSide || rect.Dy() <= MinRegionSide {
		return nil, fmt.Errorf("%w: region %v is outside the %v image", ErrRegionTooSmall, c.region.Rect(), src.Bounds())
	}

	slog.Debug("RegionCropCommand: cropping",
		"left", rect.Min.X,
		"top", rect.Min.Y,
		"width", rect.Dx(),
		"height", rect.Dy())

	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), src, rect.Min, draw.Src)
	return EncodePNG(dst)
}

func init() {
	mustRegister(RegionCropName, NewRegionCropCommand)
}
