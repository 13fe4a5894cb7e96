package imageprocessing

import (
	"fmt"
	"image"
	"log/slog"

	"golang.org/x/image/draw"
)

const DownscaleName = "DownscaleCommand"

// DownscaleCommand shrinks images whose longest side exceeds maxSide, keeping the aspect ratio.
// Smaller images pass through unchanged, which keeps OCR payloads bounded without upscaling.
type DownscaleCommand struct {
	maxSide int
}

func NewDownscaleCommand(params map[string]any) (Command, error) {
	if err := ValidateRequiredParams(params, []string{"maxSide"}); err != nil {
		return nil, err
	}
	maxSide := GetIntParam(params, "maxSide", 0)
	if maxSide <= 0 {
		return nil, fmt.Errorf("maxSide must be positive, got %d", maxSide)
	}
	return &DownscaleCommand{maxSide: maxSide}, nil
}

func (c *DownscaleCommand) Name() string {
	return DownscaleName
}

func (c *DownscaleCommand) Execute(imageData []byte) ([]byte, error) {
	w, h, err := Dimensions(imageData)
	if err != nil {
		return nil, err
	}
	longest := max(w, h)
	if longest <= c.maxSide {
		return imageData, nil
	}

	src, _, err := Decode(imageData)
	if err != nil {
		return nil, err
	}
	ratio := float64(c.maxSide) / float64(longest)
	tw := max(1, int(float64(w)*ratio))
	th := max(1, int(float64(h)*ratio))

	slog.Debug("DownscaleCommand: shrinking image",
		"original_width", w,
		"original_height", h,
		"target_width", tw,
		"target_height", th)

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return EncodePNG(dst)
}

func init() {
	mustRegister(DownscaleName, NewDownscaleCommand)
}
