package ocrapi

import (
	"context"
	"encoding/json"
	"fmt"
)

// FileType is the vendor's document type code.
type FileType int

const (
	FileTypePDF   FileType = 0
	FileTypeImage FileType = 1
)

// Options are the feature flags forwarded with every recognition request.
type Options struct {
	UseDocOrientationClassify bool `json:"useDocOrientationClassify"`
	UseDocUnwarping           bool `json:"useDocUnwarping"`
	UseChartRecognition       bool `json:"useChartRecognition"`
	PrettifyMarkdown          bool `json:"prettifyMarkdown"`
	Visualize                 bool `json:"visualize"`
}

// DefaultOptions enables markdown prettifying and visualization, nothing else.
func DefaultOptions() Options {
	return Options{PrettifyMarkdown: true, Visualize: true}
}

// Document is a file to recognize.
type Document struct {
	Name string
	Data []byte
	Type FileType
}

// Engine recognizes documents into layout-parsed markdown pages.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, doc Document, opts Options) (*Result, error)
}

// Result is the parsed recognition output of one document.
type Result struct {
	LogID string `json:"logId,omitempty"`
	Pages []Page `json:"pages"`
}

type Markdown struct {
	Text string `json:"text"`
	// Images maps the relative path referenced in Text to a download URL.
	Images map[string]string `json:"images"`
}

type Page struct {
	Markdown Markdown `json:"markdown"`
	// OutputImages maps visualization names to download URLs.
	OutputImages map[string]string `json:"outputImages"`
	Regions      []Region          `json:"regions"`
	Width        int               `json:"width,omitempty"`
	Height       int               `json:"height,omitempty"`
}

// Region is one layout block with its bounding box in page pixels.
type Region struct {
	Label   string `json:"label"`
	Content string `json:"content,omitempty"`
	BBox    BBox   `json:"bbox"`
}

type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Vendor wire format.

type request struct {
	File     string   `json:"file"`
	FileType FileType `json:"fileType"`
	Options
}

type envelope struct {
	LogID     string          `json:"logId"`
	ErrorCode int             `json:"errorCode"`
	ErrorMsg  string          `json:"errorMsg"`
	Result    json.RawMessage `json:"result"`
}

type wireResult struct {
	LayoutParsingResults []wirePage `json:"layoutParsingResults"`
}

type wirePage struct {
	Markdown struct {
		Text   string            `json:"text"`
		Images map[string]string `json:"images"`
	} `json:"markdown"`
	OutputImages map[string]string `json:"outputImages"`
	PrunedResult struct {
		Width          int `json:"width"`
		Height         int `json:"height"`
		ParsingResList []struct {
			BlockLabel   string    `json:"block_label"`
			BlockContent string    `json:"block_content"`
			BlockBBox    []float64 `json:"block_bbox"`
		} `json:"parsing_res_list"`
	} `json:"prunedResult"`
}

// ParseResult converts the vendor "result" object into a Result.
func ParseResult(raw []byte) (*Result, error) {
	var wire wireResult
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode layout parsing result: %w", err)
	}

	result := &Result{Pages: make([]Page, 0, len(wire.LayoutParsingResults))}
	for _, wp := range wire.LayoutParsingResults {
		page := Page{
			Markdown: Markdown{
				Text:   wp.Markdown.Text,
				Images: nonNil(wp.Markdown.Images),
			},
			OutputImages: nonNil(wp.OutputImages),
			Width:        wp.PrunedResult.Width,
			Height:       wp.PrunedResult.Height,
		}
		for _, block := range wp.PrunedResult.ParsingResList {
			if len(block.BlockBBox) < 4 {
				continue
			}
			page.Regions = append(page.Regions, Region{
				Label:   block.BlockLabel,
				Content: block.BlockContent,
				BBox: BBox{
					X1: block.BlockBBox[0],
					Y1: block.BlockBBox[1],
					X2: block.BlockBBox[2],
					Y2: block.BlockBBox[3],
				},
			})
		}
		result.Pages = append(result.Pages, page)
	}
	return result, nil
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
