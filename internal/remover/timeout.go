package remover

import (
	"context"
	"time"
)

type timeoutRemover struct {
	next    BackgroundRemover
	timeout time.Duration
}

// WithTimeout bounds every remote call. Zero or negative d returns next unchanged.
func WithTimeout(next BackgroundRemover, d time.Duration) BackgroundRemover {
	if d <= 0 {
		return next
	}
	return &timeoutRemover{next: next, timeout: d}
}

func (t *timeoutRemover) RemoveBackground(ctx context.Context, base64Image, mimeType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	return t.next.RemoveBackground(ctx, base64Image, mimeType)
}
