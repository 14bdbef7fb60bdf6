package archive

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/blokus-relay/internal/turn"
)

const maxBatch = 64

// Worker moves accepted turns off the session goroutines and into a Store.
// TurnAccepted never blocks; when the buffer is full the record is dropped.
type Worker struct {
	in      chan TurnRecord
	store   Store
	log     *zap.Logger
	now     func() time.Time
	dropped atomic.Int64
}

func NewWorker(store Store, buffer int, logger *zap.Logger) *Worker {
	if buffer <= 0 {
		buffer = 1
	}
	return &Worker{
		in:    make(chan TurnRecord, buffer),
		store: store,
		log:   logger.Named("archive"),
		now:   time.Now,
	}
}

func (w *Worker) TurnAccepted(gameID, sessionID string, index int, t turn.Turn) {
	rec := NewRecord(gameID, sessionID, index, t, w.now())
	select {
	case w.in <- rec:
	default:
		n := w.dropped.Add(1)
		w.log.Warn("archive buffer full, dropping turn",
			zap.String("game_id", gameID), zap.Int("turn_index", index), zap.Int64("dropped_total", n))
	}
}

func (w *Worker) Dropped() int64 { return w.dropped.Load() }

// Run writes records until ctx is done, then flushes what is queued and closes the store.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			// Flush with a fresh deadline; ctx is already cancelled.
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			var err error
			for batch := w.drain(nil); len(batch) > 0; batch = w.drain(nil) {
				err = multierr.Append(err, w.store.Save(flushCtx, batch))
			}
			return multierr.Append(err, w.store.Close())

		case rec := <-w.in:
			batch := w.drain([]TurnRecord{rec})
			if err := w.store.Save(ctx, batch); err != nil {
				w.log.Error("archive write failed", zap.Int("records", len(batch)), zap.Error(err))
			}
		}
	}
}

func (w *Worker) drain(batch []TurnRecord) []TurnRecord {
	for len(batch) < maxBatch {
		select {
		case rec := <-w.in:
			batch = append(batch, rec)
		default:
			return batch
		}
	}
	return batch
}
