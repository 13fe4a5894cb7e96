package database

import "time"

const (
	SourceScreenshot = "screenshot"
	SourceFile       = "file"
)

// Record is one recognition kept in the history.
type Record struct {
	ID        string
	CreatedAt time.Time
	// SourceKind is SourceScreenshot or SourceFile.
	SourceKind string
	FileName   string
	// ImageHash is the hex sha256 of the uploaded bytes and the recognition options.
	ImageHash string
	Engine    string
	// Preview is a PNG of the recognized image, empty for PDFs.
	Preview []byte
	// Markdown is the text as returned by the engine; LocalMarkdown references downloaded images.
	Markdown      string
	LocalMarkdown string
	// ResultJSON is the parsed result as JSON.
	ResultJSON []byte
}
