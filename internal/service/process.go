package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"sync/atomic"

	"github.com/UnendingLoop/ClearCut/internal/download"
	"github.com/UnendingLoop/ClearCut/internal/model"
	"github.com/UnendingLoop/ClearCut/internal/mwlogger"
	"github.com/UnendingLoop/ClearCut/internal/worker"
)

// job - то, что нужно удаленному вызову; захватывается под локом
type job struct {
	id     string
	e      *entry
	source []byte
	mime   string
}

// ProcessOne runs a single remote call for the item. Missing id gives ErrItemNotFound;
// an item that is already processing or completed is left alone. Remote failures end up in the item, not in the return value.
func (o *Orchestrator) ProcessOne(ctx context.Context, id string) error {
	j, found := o.begin(id)
	if !found {
		return model.ErrItemNotFound
	}
	if j == nil {
		return nil
	}
	o.finish(ctx, j, nil)
	return nil
}

// StartOne marks the item as processing right away and finishes the remote call in the background
func (o *Orchestrator) StartOne(ctx context.Context, id string) error {
	j, found := o.begin(id)
	if !found {
		return model.ErrItemNotFound
	}
	if j == nil {
		return nil
	}

	bgCtx, cancel := o.detach(ctx)
	o.bg.Add(1)
	go func() {
		defer o.bg.Done()
		defer cancel()
		o.finish(bgCtx, j, nil)
	}()
	return nil
}

// ProcessBatch processes every idle/error item in insertion order, in waves of the configured size,
// and returns when all of them are terminal. A second concurrent call gets ErrBatchInProgress.
func (o *Orchestrator) ProcessBatch(ctx context.Context) (model.BatchReport, error) {
	ids, err := o.beginBatch()
	if err != nil {
		return model.BatchReport{}, err
	}
	return o.runBatch(ctx, ids), nil
}

// StartBatch is the asynchronous ProcessBatch; the report is sent once to the returned channel
func (o *Orchestrator) StartBatch(ctx context.Context) (<-chan model.BatchReport, error) {
	ids, err := o.beginBatch()
	if err != nil {
		return nil, err
	}

	res := make(chan model.BatchReport, 1)
	bgCtx, cancel := o.detach(ctx)
	o.bg.Add(1)
	go func() {
		defer o.bg.Done()
		defer cancel()
		res <- o.runBatch(bgCtx, ids)
		close(res)
	}()
	return res, nil
}

// DownloadOne delivers the result of a completed item right away
func (o *Orchestrator) DownloadOne(ctx context.Context, id string) error {
	name, data, err := o.Result(id)
	if err != nil {
		return err
	}
	return o.scheduler.Deliver(ctx, download.Job{ItemID: id, Name: name, Data: data})
}

// DownloadAll delivers every completed item in insertion order, one at a time with the configured pause.
// Returns the number of delivered files.
func (o *Orchestrator) DownloadAll(ctx context.Context) (int, error) {
	jobs := o.completedJobs()
	if len(jobs) == 0 {
		return 0, nil
	}

	// очередь одна на всё приложение
	o.dlMu.Lock()
	defer o.dlMu.Unlock()

	n, err := o.scheduler.Run(ctx, jobs)
	logger := mwlogger.LoggerFromContext(ctx)
	logger.Info().Int("delivered", n).Int("queued", len(jobs)).Msg("Download queue drained")
	return n, err
}

// StartDownloadAll queues the downloads in the background and returns how many were queued
func (o *Orchestrator) StartDownloadAll(ctx context.Context) int {
	queued := len(o.completedJobs())
	if queued == 0 {
		return 0
	}

	bgCtx, cancel := o.detach(ctx)
	o.bg.Add(1)
	go func() {
		defer o.bg.Done()
		defer cancel()
		if _, err := o.DownloadAll(bgCtx); err != nil {
			logger := mwlogger.LoggerFromContext(bgCtx)
			logger.Error().Err(err).Msg("Some downloads failed")
		}
	}()
	return queued
}

//---------------------

// begin is steps 1-2: guard and switch to processing. found=false means unknown id, j=nil means nothing to do.
func (o *Orchestrator) begin(id string) (j *job, found bool) {
	o.mu.Lock()
	e, ok := o.items[id]
	if !ok {
		o.mu.Unlock()
		return nil, false
	}
	if !e.item.Status.Eligible() {
		o.mu.Unlock()
		return nil, true
	}

	e.item.Status = model.StatusProcessing
	e.item.ErrMsg = ""
	o.touchLocked(e)
	snap := o.commitLocked()
	j = &job{id: id, e: e, source: e.source, mime: e.item.MimeType}
	o.mu.Unlock()

	// processing должен быть виден подписчикам до сетевого вызова
	o.publish(snap)
	return j, true
}

// finish is steps 3-5. issued (may be nil) is called right before the remote call.
// Returns the terminal status, or "" when the item vanished while in flight.
func (o *Orchestrator) finish(ctx context.Context, j *job, issued func()) model.Status {
	logger := mwlogger.LoggerFromContext(ctx)

	payload := base64.StdEncoding.EncodeToString(j.source)
	if issued != nil {
		issued()
	}
	dataURI, err := o.remover.RemoveBackground(ctx, payload, j.mime)

	var result []byte
	if err == nil {
		result, err = decodeDataURI(dataURI)
	}

	var resKey string
	if err == nil {
		resKey = resultKey(j.id)
		if pErr := o.storage.Put(ctx, resKey, int64(len(result)), model.PNG, bytes.NewReader(result)); pErr != nil {
			// результат есть, превью нет - не повод валить картинку
			logger.Warn().Err(pErr).Str("item_id", j.id).Msg("Failed to save result preview in Storage")
			resKey = ""
		}
	}

	o.mu.Lock()
	cur, ok := o.items[j.id]
	if !ok || cur != j.e {
		o.mu.Unlock()
		logger.Info().Str("item_id", j.id).Msg("Item removed while processing, result dropped")
		o.release(ctx, resKey)
		return ""
	}

	if err != nil {
		j.e.item.Status = model.StatusError
		j.e.item.ErrMsg = errMessage(err)
		j.e.result = nil
		j.e.item.ResultSize = 0
	} else {
		j.e.item.Status = model.StatusCompleted
		j.e.result = result
		j.e.item.ResultSize = int64(len(result))
		j.e.item.ResultPreview = resKey
	}
	o.touchLocked(j.e)
	status := j.e.item.Status
	snap := o.commitLocked()
	o.mu.Unlock()

	o.publish(snap)

	if err != nil {
		logger.Warn().Err(err).Str("item_id", j.id).Msg("Background removal failed")
	} else {
		logger.Info().Str("item_id", j.id).Int("bytes", len(result)).Msg("Background removed")
	}
	return status
}

// beginBatch selects eligible ids and raises the global flag
func (o *Orchestrator) beginBatch() ([]string, error) {
	o.mu.Lock()
	if o.processing {
		o.mu.Unlock()
		return nil, model.ErrBatchInProgress
	}

	ids := make([]string, 0, len(o.order))
	for _, id := range o.order {
		if o.items[id].item.Status.Eligible() {
			ids = append(ids, id)
		}
	}
	o.processing = true
	snap := o.commitLocked()
	o.mu.Unlock()

	o.publish(snap)
	return ids, nil
}

func (o *Orchestrator) runBatch(ctx context.Context, ids []string) model.BatchReport {
	logger := mwlogger.LoggerFromContext(ctx)
	start := o.now()

	var completed, failed atomic.Int64
	// begin идет по очереди, удаленные вызовы - параллельно
	worker.RunWaves(ctx, ids, o.concurrency, func(_ context.Context, id string) worker.CallFunc {
		j, _ := o.begin(id)
		if j == nil {
			return nil
		}
		return func(ctx context.Context, issued func()) {
			switch o.finish(ctx, j, issued) {
			case model.StatusCompleted:
				completed.Add(1)
			case model.StatusError:
				failed.Add(1)
			}
		}
	})

	o.mu.Lock()
	o.processing = false
	snap := o.commitLocked()
	o.mu.Unlock()
	o.publish(snap)

	report := model.BatchReport{
		Selected:  len(ids),
		Completed: int(completed.Load()),
		Failed:    int(failed.Load()),
		Duration:  o.now().Sub(start),
	}
	report.Skipped = report.Selected - report.Completed - report.Failed

	logger.Info().
		Int("selected", report.Selected).
		Int("completed", report.Completed).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Dur("duration", report.Duration).
		Msg("Batch finished")
	return report
}

func (o *Orchestrator) completedJobs() []download.Job {
	o.mu.Lock()
	defer o.mu.Unlock()

	var jobs []download.Job
	taken := make(map[string]bool)
	for _, id := range o.order {
		e := o.items[id]
		if e.item.Status != model.StatusCompleted {
			continue
		}
		name := uniqueName(model.DownloadName(e.item.Name), taken)
		jobs = append(jobs, download.Job{ItemID: id, Name: name, Data: e.result})
	}
	return jobs
}

func (o *Orchestrator) touchLocked(e *entry) {
	t := o.now().UTC()
	e.item.UpdatedAt = &t
}
