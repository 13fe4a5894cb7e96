package ocrapi

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrEmptyDocument = errors.New("document is empty")

	// ErrTesseractNotEnabled is returned when the binary was built without -tags tesseract.
	ErrTesseractNotEnabled = errors.New("tesseract support not enabled; rebuild with -tags tesseract")
)

// APIError reports a non-2xx response or a non-zero vendor errorCode.
type APIError struct {
	StatusCode int
	ErrorCode  int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.ErrorCode != 0 {
		return fmt.Sprintf("ocr api error (status %d, code %d): %s", e.StatusCode, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("ocr api returned status %d: %s", e.StatusCode, truncate(e.Body, 512))
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.ErrorCode == 0 &&
		(e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
