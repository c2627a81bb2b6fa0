// Package model provides data-structs for internal app-usage
package model

import (
	"errors"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

type (
	Status      string
	PreviewKind string
)

const (
	StatusIdle       Status = "idle"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

var StatusMap = map[Status]bool{
	StatusIdle:       true,
	StatusProcessing: true,
	StatusCompleted:  true,
	StatusError:      true,
}

// Eligible - может ли элемент попасть в очередной батч
func (s Status) Eligible() bool {
	return s == StatusIdle || s == StatusError
}

// Terminal - completed или error
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

const (
	PreviewSource PreviewKind = "source"
	PreviewResult PreviewKind = "result"
)

//---------------------

// WorkItem is a read-only projection of one uploaded image. Raw source bytes stay inside the orchestrator.
type WorkItem struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Size          int64      `json:"size"`
	MimeType      string     `json:"mime_type"`
	Width         int        `json:"width"`
	Height        int        `json:"height"`
	Status        Status     `json:"status"`
	ErrMsg        string     `json:"error,omitempty"`
	ResultSize    int64      `json:"result_size,omitempty"`
	SourcePreview string     `json:"-"`
	ResultPreview string     `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// HasResult reports whether the item carries a processed image; the bytes are served by id
func (w WorkItem) HasResult() bool {
	return w.ResultSize > 0
}

// Stats - агрегат, всегда считается заново из коллекции
type Stats struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Processing int `json:"processing"`
}

// CountStats recomputes aggregate counters from scratch.
func CountStats(items []WorkItem) Stats {
	st := Stats{Total: len(items)}
	for _, it := range items {
		switch it.Status {
		case StatusCompleted:
			st.Completed++
		case StatusError:
			st.Failed++
		case StatusProcessing:
			st.Processing++
		}
	}
	return st
}

type Snapshot struct {
	Version    uint64     `json:"version"`
	Items      []WorkItem `json:"items"`
	Stats      Stats      `json:"stats"`
	Processing bool       `json:"processing"`
}

type BatchReport struct {
	Selected  int           `json:"selected"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

//-------------------

type UploadFile struct {
	Name     string
	MimeType string
	Data     []byte
}

// ------------------

var (
	ErrCommon500         error = errors.New("something went wrong. Try again later")     // 500
	ErrIncorrectID       error = errors.New("incorrect image id")                        // 400
	ErrItemNotFound      error = errors.New("specified image id doesn't exist")          // 404
	ErrResultNotReady    error = errors.New("requested image is not processed yet")      // 404
	ErrBatchInProgress   error = errors.New("batch processing is already running")       // 409
	ErrEmptySource       error = errors.New("empty/incorrect source image provided")     // 400
	ErrUnsupportedFormat error = errors.New("unsupported image format")                  // 400
	ErrNoFiles           error = errors.New("no image files provided")                   // 400
	ErrIncorrectKind     error = errors.New("incorrect preview kind")                    // 400
	ErrFileTooLarge      error = errors.New("uploaded file is too large")                // 413
	ErrConfiguration     error = errors.New("remote service is not configured")          // per item
	ErrRemoteProcessing  error = errors.New("remote service returned no usable result")  // per item
	ErrTransport         error = errors.New("failed to reach remote processing service") // per item
)

// FallbackErrMsg - если ошибка пришла без текста
const FallbackErrMsg = "Processing failed"

//--------------------

const (
	JPEG = "image/jpeg"
	PNG  = "image/png"
	GIF  = "image/gif"
	WEBP = "image/webp"
	BMP  = "image/bmp"
	TIFF = "image/tiff"
)

var GetImageFileExt = map[string]string{
	JPEG: ".jpg",
	PNG:  ".png",
	GIF:  ".gif",
	WEBP: ".webp",
	BMP:  ".bmp",
	TIFF: ".tiff",
}

var GetCType = map[imaging.Format]string{
	imaging.JPEG: JPEG,
	imaging.GIF:  GIF,
	imaging.PNG:  PNG,
	imaging.BMP:  BMP,
	imaging.TIFF: TIFF,
}

// IsImageType mirrors the upload filter: anything under image/* is accepted.
func IsImageType(ctype string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(ctype)), "image/")
}

//--------------------

const DownloadPrefix = "clearcut_"

// DownloadName builds the delivered file name: everything before the first dot, tagged and forced to .png
func DownloadName(display string) string {
	stem, _, _ := strings.Cut(display, ".")
	return DownloadPrefix + stem + GetImageFileExt[PNG]
}
