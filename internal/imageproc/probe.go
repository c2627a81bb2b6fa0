// Package imageproc provides header-only inspection of uploaded images: pixel dimensions and content type.
// Pixels are never decoded, the remote service does the actual work.
package imageproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/UnendingLoop/ClearCut/internal/model"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // регистрирует webp-декодер для DecodeConfig
)

// Meta - то, что удалось узнать из заголовка файла
type Meta struct {
	Width    int
	Height   int
	MimeType string
}

// Probe reads the image header and returns dimensions plus the sniffed content type.
func Probe(data []byte) (Meta, error) {
	if len(data) == 0 {
		return Meta{}, model.ErrEmptySource
	}

	cfg, f, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Meta{}, fmt.Errorf("failed to read image header: %w", err)
	}

	ctype, err := contentType(f)
	if err != nil {
		return Meta{}, err
	}

	return Meta{Width: cfg.Width, Height: cfg.Height, MimeType: ctype}, nil
}

func contentType(format string) (string, error) {
	// webp imaging не знает, но декодер зарегистрирован
	if format == "webp" {
		return model.WEBP, nil
	}

	f, err := imaging.FormatFromExtension(format)
	if err != nil {
		if errors.Is(err, imaging.ErrUnsupportedFormat) {
			return "", model.ErrUnsupportedFormat
		}
		return "", err
	}

	ctype, ok := model.GetCType[f]
	if !ok {
		return "", model.ErrUnsupportedFormat
	}
	return ctype, nil
}
