package transport

import (
	"context"
	"io"

	"github.com/UnendingLoop/ClearCut/internal/model"
	"github.com/gin-gonic/gin"
)

type mockImageService struct {
	addItemsFn    func(ctx context.Context, files []model.UploadFile) ([]model.WorkItem, error)
	removeItemFn  func(ctx context.Context, id string)
	clearAllFn    func(ctx context.Context)
	startOneFn    func(ctx context.Context, id string) error
	startBatchFn  func(ctx context.Context) (<-chan model.BatchReport, error)
	downloadOneFn func(ctx context.Context, id string) error
	downloadAllFn func(ctx context.Context) int
	snapshotFn    func() model.Snapshot
	statsFn       func() model.Stats
	resultFn      func(id string) (string, []byte, error)
	previewFn     func(ctx context.Context, id string, kind model.PreviewKind) (io.ReadCloser, string, error)
	subscribeFn   func(fn func(model.Snapshot)) func()
}

func (m *mockImageService) AddItems(ctx context.Context, files []model.UploadFile) ([]model.WorkItem, error) {
	return m.addItemsFn(ctx, files)
}

func (m *mockImageService) RemoveItem(ctx context.Context, id string) {
	m.removeItemFn(ctx, id)
}

func (m *mockImageService) ClearAll(ctx context.Context) {
	m.clearAllFn(ctx)
}

func (m *mockImageService) StartOne(ctx context.Context, id string) error {
	return m.startOneFn(ctx, id)
}

func (m *mockImageService) StartBatch(ctx context.Context) (<-chan model.BatchReport, error) {
	return m.startBatchFn(ctx)
}

func (m *mockImageService) DownloadOne(ctx context.Context, id string) error {
	return m.downloadOneFn(ctx, id)
}

func (m *mockImageService) StartDownloadAll(ctx context.Context) int {
	return m.downloadAllFn(ctx)
}

func (m *mockImageService) Snapshot() model.Snapshot {
	return m.snapshotFn()
}

func (m *mockImageService) Stats() model.Stats {
	return m.statsFn()
}

func (m *mockImageService) Result(id string) (string, []byte, error) {
	return m.resultFn(id)
}

func (m *mockImageService) Preview(ctx context.Context, id string, kind model.PreviewKind) (io.ReadCloser, string, error) {
	return m.previewFn(ctx, id, kind)
}

func (m *mockImageService) Subscribe(fn func(model.Snapshot)) func() {
	return m.subscribeFn(fn)
}

func init() {
	gin.SetMode(gin.TestMode)
}
