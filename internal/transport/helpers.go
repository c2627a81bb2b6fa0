package transport

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"

	"github.com/UnendingLoop/ClearCut/internal/model"
)

const (
	uploadField   = "images"
	maxUploadSize = 20 << 20
)

func errorCodeDefiner(err error) int {
	switch {
	case errors.Is(err, model.ErrCommon500):
		return 500
	case errors.Is(err, model.ErrItemNotFound),
		errors.Is(err, model.ErrResultNotReady):
		return 404
	case errors.Is(err, model.ErrBatchInProgress):
		return 409
	case errors.Is(err, model.ErrFileTooLarge):
		return 413
	case errors.Is(err, model.ErrIncorrectID),
		errors.Is(err, model.ErrIncorrectKind),
		errors.Is(err, model.ErrNoFiles),
		errors.Is(err, model.ErrEmptySource),
		errors.Is(err, model.ErrUnsupportedFormat):
		return 400
	default:
		return 500
	}
}

// readUploads reads every file of the form field into memory
func readUploads(headers []*multipart.FileHeader) ([]model.UploadFile, error) {
	if len(headers) == 0 {
		return nil, model.ErrNoFiles
	}

	res := make([]model.UploadFile, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > maxUploadSize {
			return nil, fmt.Errorf("%w: %q is larger than %d bytes", model.ErrFileTooLarge, fh.Filename, maxUploadSize)
		}

		f, err := fh.Open()
		if err != nil {
			log.Printf("Failed to open uploaded file %q: %v", fh.Filename, err)
			return nil, model.ErrCommon500
		}
		data, err := io.ReadAll(f)
		closeFileFlow(f)
		if err != nil {
			log.Printf("Failed to read uploaded file %q: %v", fh.Filename, err)
			return nil, model.ErrCommon500
		}

		res = append(res, model.UploadFile{
			Name:     fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Data:     data,
		})
	}
	return res, nil
}

func closeFileFlow(res io.ReadCloser) {
	if res == nil {
		return
	}
	if err := res.Close(); err != nil {
		log.Println("Handler failed to close fileflow:", err)
	}
}
