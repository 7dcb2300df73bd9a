// internal/historian/historian.go is an asynchronous service that pops game action
// records off the Redis queue and persists them to the database in batches.
package historian

import (
	"context"
	"errors"
	"time"

	"github.com/jason-s-yu/blackjack/internal/cache"
	"github.com/jason-s-yu/blackjack/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	popTimeout   = 3 * time.Second
	retryBackoff = time.Second
	flushTimeout = 10 * time.Second
	// maxPending bounds how many batches are kept while the database is failing.
	maxPending = 10
)

// Queue is the source of action records, normally the Redis list.
type Queue interface {
	// PopGameAction blocks up to timeout and returns nil, nil when the queue stayed empty.
	PopGameAction(ctx context.Context, timeout time.Duration) (*models.GameActionRecord, error)
}

// Sink is the subset of database.Store the historian writes to.
type Sink interface {
	InsertGameActions(ctx context.Context, recs []models.GameActionRecord) error
	AbandonStaleGames(ctx context.Context, olderThan time.Time) (int, error)
}

// Options tunes batching and the inactivity sweep.
type Options struct {
	BatchSize     int
	FlushInterval time.Duration
	// Inactivity is how long a round may stay active before it is abandoned and refunded.
	// Zero disables the sweep.
	Inactivity      time.Duration
	InactivityCheck time.Duration
}

func (o *Options) setDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 20
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 500 * time.Millisecond
	}
	if o.InactivityCheck <= 0 {
		o.InactivityCheck = time.Minute
	}
}

// Service captures game actions and closes out rounds nobody finished.
type Service struct {
	queue  Queue
	sink   Sink
	opts   Options
	logger *logrus.Logger

	// batch is only touched by the Run goroutine.
	batch []models.GameActionRecord
}

func NewService(queue Queue, sink Sink, opts Options, logger *logrus.Logger) *Service {
	opts.setDefaults()
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		queue:  queue,
		sink:   sink,
		opts:   opts,
		logger: logger,
		batch:  make([]models.GameActionRecord, 0, opts.BatchSize),
	}
}

// Run consumes the queue until ctx is done, then flushes what it holds.
func (hs *Service) Run(ctx context.Context) error {
	records := make(chan models.GameActionRecord, hs.opts.BatchSize)
	popDone := make(chan struct{})
	go func() {
		defer close(popDone)
		hs.readQueueLoop(ctx, records)
	}()

	flush := time.NewTicker(hs.opts.FlushInterval)
	defer flush.Stop()

	var sweep <-chan time.Time
	if hs.opts.Inactivity > 0 {
		t := time.NewTicker(hs.opts.InactivityCheck)
		defer t.Stop()
		sweep = t.C
	}

	hs.logger.WithFields(logrus.Fields{
		"batch_size": hs.opts.BatchSize,
		"flush":      hs.opts.FlushInterval,
		"inactivity": hs.opts.Inactivity,
	}).Info("historian service started")

	for {
		select {
		case <-ctx.Done():
			hs.drain(records, popDone)
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			defer cancel()
			hs.flush(final)
			hs.logger.Info("historian shutting down")
			return nil

		case rec := <-records:
			hs.batch = append(hs.batch, rec)
			if len(hs.batch) >= hs.opts.BatchSize {
				hs.flush(ctx)
			}

		case <-flush.C:
			hs.flush(ctx)

		case now := <-sweep:
			hs.abandonStale(ctx, now)
		}
	}
}

// readQueueLoop pops records and hands them to Run until ctx is done.
func (hs *Service) readQueueLoop(ctx context.Context, out chan<- models.GameActionRecord) {
	for ctx.Err() == nil {
		rec, err := hs.queue.PopGameAction(ctx, popTimeout)
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, cache.ErrBadRecord):
			hs.logger.WithError(err).Warn("dropping undecodable action record")
			continue
		case err != nil:
			hs.logger.WithError(err).Error("failed to pop from action queue")
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryBackoff):
			}
			continue
		case rec == nil:
			continue
		}

		// Run keeps receiving until this loop exits, so a popped record is never lost
		out <- *rec
	}
}

// drain collects records from the reader until it has stopped.
func (hs *Service) drain(records <-chan models.GameActionRecord, popDone <-chan struct{}) {
	for {
		select {
		case rec := <-records:
			hs.batch = append(hs.batch, rec)
		case <-popDone:
			for {
				select {
				case rec := <-records:
					hs.batch = append(hs.batch, rec)
				default:
					return
				}
			}
		}
	}
}

// flush writes the pending batch. On failure the records are kept for the
// next attempt; inserts are idempotent per (game_id, action_index).
func (hs *Service) flush(ctx context.Context) {
	if len(hs.batch) == 0 {
		return
	}
	if err := hs.sink.InsertGameActions(ctx, hs.batch); err != nil {
		log := hs.logger.WithError(err).WithField("pending", len(hs.batch))
		if limit := maxPending * hs.opts.BatchSize; len(hs.batch) > limit {
			dropped := len(hs.batch) - limit
			hs.batch = append(hs.batch[:0], hs.batch[dropped:]...)
			log = log.WithField("dropped", dropped)
		}
		log.Error("failed to flush action batch")
		return
	}
	hs.logger.WithField("count", len(hs.batch)).Debug("flushed actions to DB")
	hs.batch = hs.batch[:0]
}

func (hs *Service) abandonStale(ctx context.Context, now time.Time) {
	n, err := hs.sink.AbandonStaleGames(ctx, now.Add(-hs.opts.Inactivity))
	if err != nil {
		hs.logger.WithError(err).Error("failed to abandon stale games")
		return
	}
	if n > 0 {
		hs.logger.WithField("count", n).Info("marked inactive games abandoned")
	}
}
