package logstore

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type AsyncConfig struct {
	QueueSize    int
	Workers      int
	WriteTimeout time.Duration
}

func DefaultAsyncConfig() AsyncConfig {
	return AsyncConfig{
		QueueSize:    256,
		Workers:      4,
		WriteTimeout: 10 * time.Second,
	}
}

type entry struct {
	prompt   string
	response string
	model    string
}

// AsyncWriter decorates a Logger with a bounded queue and a background worker
// pool, so the caller's response path never waits on the log store. Write
// failures are reported through diagnostics only.
type AsyncWriter struct {
	dst    Logger
	queue  chan entry
	group  *errgroup.Group
	config AsyncConfig
}

func NewAsyncWriter(dst Logger, config AsyncConfig) *AsyncWriter {
	w := &AsyncWriter{
		dst:    dst,
		queue:  make(chan entry, config.QueueSize),
		group:  new(errgroup.Group),
		config: config,
	}

	for i := 0; i < config.Workers; i++ {
		w.group.Go(w.run)
	}

	return w
}

func (w *AsyncWriter) run() error {
	for e := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), w.config.WriteTimeout)
		if err := w.dst.Log(ctx, e.prompt, e.response, e.model); err != nil {
			log.Error().Err(err).Str("model", e.model).Msg("conversation write failed")
		}
		cancel()
	}
	return nil
}

// Log queues the exchange for a background write and always succeeds from the
// caller's perspective. A full queue drops the record with a warning.
func (w *AsyncWriter) Log(_ context.Context, prompt, response, model string) error {
	select {
	case w.queue <- entry{prompt: prompt, response: response, model: model}:
	default:
		log.Warn().Str("model", model).Msg("conversation log queue full, dropping record")
	}
	return nil
}

// Close drains queued records and closes the underlying store. No Log calls
// may race with Close.
func (w *AsyncWriter) Close() error {
	close(w.queue)
	if err := w.group.Wait(); err != nil {
		return err
	}
	return w.dst.Close()
}
