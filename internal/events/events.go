// Package events turns orchestrator snapshots into per-item status events and pushes them to Kafka
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/UnendingLoop/ClearCut/internal/model"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

// TaskPublisher - контракт для работы с очередью
type TaskPublisher interface {
	SendWithRetry(ctx context.Context, strategy retry.Strategy, key []byte, v []byte) error
}

// ItemEvent is published once per item status change
type ItemEvent struct {
	Version    uint64       `json:"version"`
	ItemID     string       `json:"item_id"`
	Name       string       `json:"name"`
	Status     model.Status `json:"status"`
	Error      string       `json:"error,omitempty"`
	Removed    bool         `json:"removed,omitempty"`
	Stats      model.Stats  `json:"stats"`
	Processing bool         `json:"processing"`
	At         time.Time    `json:"at"`
}

// Стратегия ретрая отправки в очередь
var retryStrategy = retry.Strategy{
	Attempts: 3,
	Delay:    time.Second,
	Backoff:  1.5,
}

type Sink struct {
	pub   TaskPublisher
	queue chan ItemEvent
	now   func() time.Time

	mu          sync.Mutex
	lastVersion uint64
	seen        map[string]model.Status
}

// NewSink creates a sink with a bounded queue. When the queue is full new events are dropped.
func NewSink(pub TaskPublisher, buffer int) *Sink {
	if buffer < 1 {
		buffer = 1
	}
	return &Sink{
		pub:   pub,
		queue: make(chan ItemEvent, buffer),
		now:   time.Now,
		seen:  make(map[string]model.Status),
	}
}

// Handle is a snapshot subscriber. It never blocks the caller and may be called concurrently.
func (s *Sink) Handle(snap model.Snapshot) {
	for _, ev := range s.diff(snap) {
		select {
		case s.queue <- ev:
		default:
			zlog.Logger.Warn().Str("item_id", ev.ItemID).Str("status", string(ev.Status)).Msg("Event queue is full, dropping event")
		}
	}
}

// diff compares the snapshot with the last accepted one; stale snapshots are ignored
func (s *Sink) diff(snap model.Snapshot) []ItemEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.Version <= s.lastVersion {
		return nil
	}
	s.lastVersion = snap.Version

	at := s.now().UTC()
	var res []ItemEvent
	present := make(map[string]struct{}, len(snap.Items))

	for _, it := range snap.Items {
		present[it.ID] = struct{}{}
		if prev, ok := s.seen[it.ID]; ok && prev == it.Status {
			continue
		}
		s.seen[it.ID] = it.Status
		res = append(res, ItemEvent{
			Version:    snap.Version,
			ItemID:     it.ID,
			Name:       it.Name,
			Status:     it.Status,
			Error:      it.ErrMsg,
			Stats:      snap.Stats,
			Processing: snap.Processing,
			At:         at,
		})
	}

	for id, st := range s.seen {
		if _, ok := present[id]; ok {
			continue
		}
		delete(s.seen, id)
		res = append(res, ItemEvent{
			Version:    snap.Version,
			ItemID:     id,
			Status:     st,
			Removed:    true,
			Stats:      snap.Stats,
			Processing: snap.Processing,
			At:         at,
		})
	}

	return res
}

// Run drains the queue until ctx is done
func (s *Sink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.queue:
			s.publish(ctx, ev)
		}
	}
}

func (s *Sink) publish(ctx context.Context, ev ItemEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("item_id", ev.ItemID).Msg("Failed to marshal event")
		return
	}

	if err := s.pub.SendWithRetry(ctx, retryStrategy, []byte(ev.ItemID), payload); err != nil {
		zlog.Logger.Error().Err(err).Str("item_id", ev.ItemID).Msg("Failed to publish event to Kafka")
	}
}
