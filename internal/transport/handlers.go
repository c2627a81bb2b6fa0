// Package transport provides methods for processing requests from endpoints
package transport

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/UnendingLoop/ClearCut/internal/model"
	"github.com/UnendingLoop/ClearCut/internal/mwlogger"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
)

type ImageHandler struct {
	service ImageService
}

type ImageService interface {
	AddItems(ctx context.Context, files []model.UploadFile) ([]model.WorkItem, error)
	RemoveItem(ctx context.Context, id string)
	ClearAll(ctx context.Context)
	StartOne(ctx context.Context, id string) error
	StartBatch(ctx context.Context) (<-chan model.BatchReport, error)
	DownloadOne(ctx context.Context, id string) error
	StartDownloadAll(ctx context.Context) int
	Snapshot() model.Snapshot
	Stats() model.Stats
	Result(id string) (string, []byte, error)
	Preview(ctx context.Context, id string, kind model.PreviewKind) (io.ReadCloser, string, error)
	Subscribe(fn func(model.Snapshot)) func()
}

func NewImageHandler(svc ImageService) *ImageHandler {
	return &ImageHandler{
		service: svc,
	}
}

func (h ImageHandler) SimplePinger(ctx *ginext.Context) {
	ctx.JSON(200, map[string]string{"message": "pong"})
}

func (h ImageHandler) Upload(ctx *ginext.Context) {
	form, err := ctx.MultipartForm()
	if err != nil {
		ctx.JSON(400, map[string]string{"error": "multipart form is required"})
		return
	}

	files, err := readUploads(form.File[uploadField])
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	res, err := h.service.AddItems(ctx.Request.Context(), files)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}
	if len(res) == 0 {
		ctx.JSON(400, map[string]string{"error": model.ErrNoFiles.Error()})
		return
	}

	ctx.JSON(201, map[string]any{"added": res, "skipped": len(files) - len(res)})
}

func (h ImageHandler) GetAllImages(ctx *ginext.Context) {
	ctx.JSON(200, h.service.Snapshot())
}

func (h ImageHandler) GetStats(ctx *ginext.Context) {
	ctx.JSON(200, h.service.Stats())
}

func (h ImageHandler) Delete(ctx *ginext.Context) {
	id := ctx.Param("id")
	if err := uuid.Validate(id); err != nil {
		ctx.JSON(400, map[string]string{"error": model.ErrIncorrectID.Error()})
		return
	}

	// отсутствие элемента - не ошибка
	h.service.RemoveItem(ctx.Request.Context(), id)
	ctx.Status(204)
}

func (h ImageHandler) Clear(ctx *ginext.Context) {
	h.service.ClearAll(ctx.Request.Context())
	ctx.Status(204)
}

func (h ImageHandler) ProcessAll(ctx *ginext.Context) {
	if _, err := h.service.StartBatch(ctx.Request.Context()); err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(202, map[string]string{"message": "batch processing started"})
}

func (h ImageHandler) ProcessOne(ctx *ginext.Context) {
	id := ctx.Param("id")
	if err := uuid.Validate(id); err != nil {
		ctx.JSON(400, map[string]string{"error": model.ErrIncorrectID.Error()})
		return
	}

	if err := h.service.StartOne(ctx.Request.Context(), id); err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(202, map[string]string{"message": "processing started"})
}

func (h ImageHandler) LoadResult(ctx *ginext.Context) {
	id := ctx.Param("id")

	name, data, err := h.service.Result(id)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	ctx.Data(200, model.PNG, data)
}

func (h ImageHandler) LoadPreview(ctx *ginext.Context) {
	id := ctx.Param("id")
	kind := model.PreviewKind(ctx.DefaultQuery("kind", string(model.PreviewSource)))

	res, cType, err := h.service.Preview(ctx.Request.Context(), id, kind)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}
	defer closeFileFlow(res)

	ctx.Writer.Header().Set("Content-Type", cType)
	ctx.Writer.WriteHeader(200)
	if n, err := io.Copy(ctx.Writer, res); err != nil {
		log.Printf("Failed to write response at byte %d for file id %q: %v", n, id, err)
	}
}

func (h ImageHandler) DownloadOne(ctx *ginext.Context) {
	id := ctx.Param("id")

	if err := h.service.DownloadOne(ctx.Request.Context(), id); err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.Status(204)
}

func (h ImageHandler) DownloadAll(ctx *ginext.Context) {
	queued := h.service.StartDownloadAll(ctx.Request.Context())
	ctx.JSON(202, map[string]int{"queued": queued})
}

// Events streams snapshots as server-sent events; only the newest pending snapshot is kept for a slow client
func (h ImageHandler) Events(ctx *ginext.Context) {
	logger := mwlogger.LoggerFromContext(ctx.Request.Context())

	latest := newSnapshotSlot()
	unsubscribe := h.service.Subscribe(latest.offer)
	defer unsubscribe()

	latest.offer(h.service.Snapshot())

	ctx.Writer.Header().Set("Cache-Control", "no-cache")
	ctx.Writer.Header().Set("Connection", "keep-alive")

	ctx.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Request.Context().Done():
			logger.Info().Msg("Event stream closed by client")
			return false
		case snap := <-latest.ch:
			ctx.SSEvent("snapshot", snap)
			return true
		}
	})
}

// snapshotSlot - канал на один снапшот: новый вытесняет невычитанный, устаревшие версии отбрасываются
type snapshotSlot struct {
	mu   sync.Mutex
	last uint64
	ch   chan model.Snapshot
}

func newSnapshotSlot() *snapshotSlot {
	return &snapshotSlot{ch: make(chan model.Snapshot, 1)}
}

func (s *snapshotSlot) offer(snap model.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.Version < s.last {
		return
	}
	s.last = snap.Version

	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
}
