package bootstrap

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"triage_worker/adapter/in/worker"
	"triage_worker/adapter/out/messaging"
	"triage_worker/config"
	"triage_worker/pkg/logger"
)

// Worker consumes the inbound stream and triages each email.
type Worker struct {
	consumer *messaging.Consumer
	deps     *Dependencies
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	zlog     zerolog.Logger
}

func NewWorker(cfg *config.Config) (*Worker, func(), error) {
	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}
	if deps.Redis == nil {
		cleanup()
		return nil, nil, errors.New("worker requires REDIS_URL")
	}

	zlog := logger.Default().Zerolog().With().Str("component", "worker").Logger()

	handler := worker.NewHandler(deps.Streams, worker.NewTriageProcessor(deps.TriageService))
	consumer := messaging.NewConsumer(deps.Redis, &messaging.ConsumerConfig{
		Group:                cfg.ConsumerGroup,
		Consumer:             cfg.ConsumerName,
		Streams:              []string{deps.Streams.Inbound},
		Handler:              handler,
		Logger:               zlog,
		BatchSize:            int64(cfg.ConsumerBatch),
		Block:                cfg.ConsumerBlock,
		PendingCheckInterval: cfg.PendingCheck,
		PendingIdleTime:      cfg.PendingIdle,
		MaxRetries:           cfg.ConsumerRetry,
	})
	logger.Info("Redis Stream Consumer configured for %s (group: %s)", deps.Streams.Inbound, cfg.ConsumerGroup)

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		consumer: consumer,
		deps:     deps,
		ctx:      ctx,
		cancel:   cancel,
		zlog:     zlog,
	}, cleanup, nil
}

// Start runs the consumer and blocks until Stop is called.
func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.zlog.Info().Msg("Starting Redis Stream Consumer...")
		if err := w.consumer.Run(w.ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.zlog.Error().Err(err).Msg("Redis Stream Consumer error")
		}
	}()

	<-w.ctx.Done()
}

// Stop cancels the consumer and waits for in-flight messages.
func (w *Worker) Stop() {
	w.cancel()
	w.wg.Wait()
}

func (w *Worker) Dependencies() *Dependencies {
	return w.deps
}
