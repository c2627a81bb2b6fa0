// Package service provides business-logic for the app: the batch orchestrator over uploaded images
package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/UnendingLoop/ClearCut/internal/download"
	"github.com/UnendingLoop/ClearCut/internal/imageproc"
	"github.com/UnendingLoop/ClearCut/internal/model"
	"github.com/UnendingLoop/ClearCut/internal/mwlogger"
	"github.com/google/uuid"
)

// BackgroundRemover - контракт удаленного сервиса
type BackgroundRemover interface {
	RemoveBackground(ctx context.Context, base64Image, mimeType string) (string, error)
}

// ImageStorage - контракт для работы с хранилищем превью
type ImageStorage interface {
	Delete(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (output io.ReadCloser, ctype string, err error)
	Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error
}

const (
	DefaultConcurrency      = 3
	DefaultDownloadInterval = 500 * time.Millisecond
)

// entry - внутреннее представление элемента; source и result наружу не отдаются
type entry struct {
	item   model.WorkItem
	source []byte
	result []byte
}

type Orchestrator struct {
	remover   BackgroundRemover
	storage   ImageStorage
	deliverer download.Deliverer
	scheduler *download.Scheduler

	concurrency int
	interval    time.Duration
	now         func() time.Time

	mu         sync.Mutex
	items      map[string]*entry
	order      []string
	version    uint64
	processing bool

	subMu   sync.Mutex
	subs    map[int]func(model.Snapshot)
	nextSub int

	dlMu sync.Mutex

	life   context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup
}

type Option func(*Orchestrator)

// WithConcurrency sets the wave size; values below 1 fall back to the default
func WithConcurrency(k int) Option {
	return func(o *Orchestrator) {
		if k >= 1 {
			o.concurrency = k
		}
	}
}

func WithDownloadInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.interval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithScheduler replaces the download scheduler built from the deliverer
func WithScheduler(s *download.Scheduler) Option {
	return func(o *Orchestrator) { o.scheduler = s }
}

func NewOrchestrator(remover BackgroundRemover, strg ImageStorage, deliverer download.Deliverer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		remover:     remover,
		storage:     strg,
		deliverer:   deliverer,
		concurrency: DefaultConcurrency,
		interval:    DefaultDownloadInterval,
		now:         time.Now,
		items:       make(map[string]*entry),
		subs:        make(map[int]func(model.Snapshot)),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.scheduler == nil {
		o.scheduler = download.NewScheduler(deliverer, o.interval, download.Sleep)
	}
	o.life, o.cancel = context.WithCancel(context.Background())
	return o
}

// AddItems appends every image file as an idle item, keeping input order. Non-image files are skipped.
// If a preview cannot be stored, previews of this call are released and nothing is appended.
func (o *Orchestrator) AddItems(ctx context.Context, files []model.UploadFile) ([]model.WorkItem, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	prepared := make([]*entry, 0, len(files))
	handles := make([]string, 0, len(files))

	for _, f := range files {
		if len(f.Data) == 0 {
			logger.Warn().Str("file", f.Name).Msg("Empty file skipped")
			continue
		}

		meta, probeErr := imageproc.Probe(f.Data)
		ctype := resolveContentType(f.MimeType, meta.MimeType, f.Data)
		if !model.IsImageType(ctype) {
			logger.Warn().Str("file", f.Name).Str("content_type", ctype).Msg("Non-image file skipped")
			continue
		}
		if probeErr != nil {
			// размеры не критичны, удаленный сервис сам разберется с картинкой
			logger.Warn().Err(probeErr).Str("file", f.Name).Msg("Failed to read image dimensions")
		}

		id := uuid.NewString()
		key := sourceKey(id, ctype)
		if err := o.storage.Put(ctx, key, int64(len(f.Data)), ctype, bytes.NewReader(f.Data)); err != nil {
			logger.Error().Err(err).Str("file", f.Name).Msg("Failed to save source preview in Storage")
			o.release(ctx, handles...)
			return nil, model.ErrCommon500
		}
		handles = append(handles, key)

		prepared = append(prepared, &entry{
			item: model.WorkItem{
				ID:            id,
				Name:          f.Name,
				Size:          int64(len(f.Data)),
				MimeType:      ctype,
				Width:         meta.Width,
				Height:        meta.Height,
				Status:        model.StatusIdle,
				SourcePreview: key,
				CreatedAt:     o.now().UTC(),
			},
			source: f.Data,
		})
	}

	if len(prepared) == 0 {
		return []model.WorkItem{}, nil
	}

	added := make([]model.WorkItem, 0, len(prepared))

	o.mu.Lock()
	for _, e := range prepared {
		o.items[e.item.ID] = e
		o.order = append(o.order, e.item.ID)
		added = append(added, e.item)
	}
	snap := o.commitLocked()
	o.mu.Unlock()

	o.publish(snap)
	logger.Info().Int("added", len(added)).Int("skipped", len(files)-len(added)).Msg("Images added")
	return added, nil
}

// RemoveItem drops the item and its previews. Unknown id is a no-op.
func (o *Orchestrator) RemoveItem(ctx context.Context, id string) {
	o.mu.Lock()
	e, ok := o.items[id]
	if !ok {
		o.mu.Unlock()
		return
	}
	delete(o.items, id)
	o.order = removeID(o.order, id)
	snap := o.commitLocked()
	o.mu.Unlock()

	o.publish(snap)
	o.release(ctx, e.item.SourcePreview, e.item.ResultPreview)
}

// ClearAll empties the collection and releases every preview
func (o *Orchestrator) ClearAll(ctx context.Context) {
	o.mu.Lock()
	handles := make([]string, 0, 2*len(o.items))
	for _, e := range o.items {
		handles = append(handles, e.item.SourcePreview, e.item.ResultPreview)
	}
	o.items = make(map[string]*entry)
	o.order = nil
	snap := o.commitLocked()
	o.mu.Unlock()

	o.publish(snap)
	o.release(ctx, handles...)
}

// Snapshot returns a consistent copy of the collection
func (o *Orchestrator) Snapshot() model.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) Stats() model.Stats {
	return o.Snapshot().Stats
}

func (o *Orchestrator) IsProcessing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.processing
}

func (o *Orchestrator) Get(id string) (model.WorkItem, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, ok := o.items[id]
	if !ok {
		return model.WorkItem{}, false
	}
	return e.item, true
}

// Result returns the download name and PNG bytes of a completed item
func (o *Orchestrator) Result(id string) (string, []byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, ok := o.items[id]
	if !ok {
		return "", nil, model.ErrItemNotFound
	}
	if e.item.Status != model.StatusCompleted {
		return "", nil, model.ErrResultNotReady
	}
	return model.DownloadName(e.item.Name), bytes.Clone(e.result), nil
}

// Preview opens the stored source or result preview of an item
func (o *Orchestrator) Preview(ctx context.Context, id string, kind model.PreviewKind) (io.ReadCloser, string, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	var key string
	o.mu.Lock()
	e, ok := o.items[id]
	if ok {
		switch kind {
		case model.PreviewSource:
			key = e.item.SourcePreview
		case model.PreviewResult:
			key = e.item.ResultPreview
		}
	}
	o.mu.Unlock()

	switch {
	case kind != model.PreviewSource && kind != model.PreviewResult:
		return nil, "", model.ErrIncorrectKind
	case !ok:
		return nil, "", model.ErrItemNotFound
	case key == "":
		return nil, "", model.ErrResultNotReady
	}

	data, ctype, err := o.storage.Get(ctx, key)
	if err != nil {
		logger.Error().Err(err).Str("item_id", id).Msg(fmt.Sprintf("Failed to fetch %s preview from Storage", kind))
		return nil, "", model.ErrCommon500
	}
	return data, ctype, nil
}

// Subscribe registers fn for every state change. fn runs on the mutating goroutine after the lock is released,
// so it must be safe for concurrent use and must not block for long.
func (o *Orchestrator) Subscribe(fn func(model.Snapshot)) func() {
	o.subMu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = fn
	o.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.subMu.Lock()
			delete(o.subs, id)
			o.subMu.Unlock()
		})
	}
}

// Shutdown cancels background batches/downloads and waits for them until ctx is done
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.bg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

//---------------------

// commitLocked bumps the version and returns a snapshot to publish after unlock. Caller holds o.mu.
func (o *Orchestrator) commitLocked() model.Snapshot {
	o.version++
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() model.Snapshot {
	items := make([]model.WorkItem, 0, len(o.order))
	for _, id := range o.order {
		items = append(items, o.items[id].item)
	}
	return model.Snapshot{
		Version:    o.version,
		Items:      items,
		Stats:      model.CountStats(items),
		Processing: o.processing,
	}
}

func (o *Orchestrator) publish(snap model.Snapshot) {
	o.subMu.Lock()
	subs := make([]func(model.Snapshot), 0, len(o.subs))
	for _, fn := range o.subs {
		subs = append(subs, fn)
	}
	o.subMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// release deletes preview handles; failures are only logged
func (o *Orchestrator) release(ctx context.Context, keys ...string) {
	logger := mwlogger.LoggerFromContext(ctx)
	ctx = context.WithoutCancel(ctx)

	for _, k := range keys {
		if k == "" {
			continue
		}
		if err := o.storage.Delete(ctx, k); err != nil {
			logger.Error().Err(err).Str("key", k).Msg("Failed to release preview in Storage")
		}
	}
}

// detach makes a context for background work: it outlives the request but dies on Shutdown
func (o *Orchestrator) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(o.life, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
