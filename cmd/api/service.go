package main

import (
	"context"

	"github.com/UnendingLoop/ClearCut/internal/model"
	"github.com/UnendingLoop/ClearCut/internal/transport"
)

type ImageAPIService interface {
	transport.ImageService
	Subscribe(fn func(model.Snapshot)) func()
	Shutdown(ctx context.Context) error
}
