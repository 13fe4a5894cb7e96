package common

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jo-hoe/ocrdesk/internal/fileutil"
	"github.com/labstack/echo/v4"
)

// MaxUploadBytes limits the size of a single uploaded file.
const MaxUploadBytes = 64 << 20

// ReadFormFile reads an uploaded multipart file completely.
func ReadFormFile(ctx echo.Context, field string) (string, []byte, error) {
	file, err := ctx.FormFile(field)
	if err != nil {
		return "", nil, fmt.Errorf("failed to get uploaded file %q: %w", field, err)
	}
	src, err := file.Open()
	if err != nil {
		return "", nil, fmt.Errorf("failed to open uploaded file %s: %w", file.Filename, err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Error("failed to close uploaded file reader", "error", cerr, "filename", file.Filename)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(src, MaxUploadBytes+1))
	if err != nil {
		return "", nil, fmt.Errorf("failed to read uploaded file %s: %w", file.Filename, err)
	}
	if len(data) > MaxUploadBytes {
		return "", nil, fmt.Errorf("uploaded file %s exceeds %d bytes", file.Filename, MaxUploadBytes)
	}
	return file.Filename, data, nil
}

// ParseFlag reads a form or query flag. Checkbox values ("on") count as true,
// empty values return fallback.
func ParseFlag(value string, fallback bool) bool {
	value = strings.TrimSpace(strings.ToLower(value))
	switch value {
	case "":
		return fallback
	case "on", "yes":
		return true
	case "off", "no":
		return false
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// SaveFormFile writes an uploaded multipart file into dir under its base name
// and returns the written path.
func SaveFormFile(ctx echo.Context, field, dir string) (string, error) {
	name, data, err := ReadFormFile(ctx, field)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, filepath.Base(name))
	if err := fileutil.WriteFile(path, data); err != nil {
		return "", err
	}
	return path, nil
}
