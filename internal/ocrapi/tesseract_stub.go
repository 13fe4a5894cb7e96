//go:build !tesseract

package ocrapi

import "context"

const TesseractEngineName = "tesseract"

type TesseractEngine struct{}

func NewTesseractEngine(_ ...string) (*TesseractEngine, error) {
	return nil, ErrTesseractNotEnabled
}

func (e *TesseractEngine) Name() string { return TesseractEngineName }

func (e *TesseractEngine) Recognize(context.Context, Document, Options) (*Result, error) {
	return nil, ErrTesseractNotEnabled
}
