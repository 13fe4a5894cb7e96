package imageprocessing

import (
	"fmt"
	"image"
	"image/color"
)

const GrayscaleName = "GrayscaleCommand"

// GrayscaleCommand converts to 8-bit gray. Contrast stretches around mid gray,
// invert turns dark-mode screenshots into dark text on a light background and
// a threshold > 0 binarizes every pixel, which helps the local Tesseract engine.
type GrayscaleCommand struct {
	threshold int
	contrast  float64
	invert    bool
}

func NewGrayscaleCommand(params map[string]any) (Command, error) {
	c := &GrayscaleCommand{
		threshold: GetIntParam(params, "threshold", 0),
		contrast:  GetFloatParam(params, "contrast", 1),
		invert:    GetBoolParam(params, "invert", false),
	}
	if c.threshold < 0 || c.threshold > 255 {
		return nil, fmt.Errorf("threshold must be between 0 and 255, got %d", c.threshold)
	}
	if c.contrast <= 0 {
		return nil, fmt.Errorf("contrast must be positive, got %v", c.contrast)
	}
	return c, nil
}

func (c *GrayscaleCommand) Name() string {
	return GrayscaleName
}

func (c *GrayscaleCommand) Execute(imageData []byte) ([]byte, error) {
	src, _, err := Decode(imageData)
	if err != nil {
		return nil, err
	}
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))

	parallelFor(b.Dy(), func(y int) {
		for x := 0; x < b.Dx(); x++ {
			g := color.GrayModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			dst.SetGray(x, y, color.Gray{Y: c.level(g.Y)})
		}
	})

	return EncodePNG(dst)
}

func (c *GrayscaleCommand) level(y uint8) uint8 {
	v := float64(y)
	if c.contrast != 1 {
		v = min(255, max(0, (v-128)*c.contrast+128))
	}
	if c.invert {
		v = 255 - v
	}
	if c.threshold > 0 {
		if int(v) >= c.threshold {
			return 255
		}
		return 0
	}
	return uint8(v)
}

func init() {
	mustRegister(GrayscaleName, NewGrayscaleCommand)
}
