package main

import (
	"context"

	"github.com/UnendingLoop/ClearCut/internal/model"
)

type ImageBatchService interface {
	AddItems(ctx context.Context, files []model.UploadFile) ([]model.WorkItem, error)
	ProcessBatch(ctx context.Context) (model.BatchReport, error)
	DownloadAll(ctx context.Context) (int, error)
	Snapshot() model.Snapshot
	Subscribe(fn func(model.Snapshot)) func()
}
