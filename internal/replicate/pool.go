package replicate

import (
	"context"

	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"
)

type WorkerFunction = func(t *tomb.Tomb, task int) error

// WorkerPool runs a fixed number of workers over a list of tasks under one
// tomb. The first worker error kills the tomb and stops the remaining work.
type WorkerPool struct {
	n      int // number of workers
	logger zerolog.Logger
}

func NewWorkerPool(size int, logger zerolog.Logger) WorkerPool {
	return WorkerPool{
		n:      max(size, 1),
		logger: logger,
	}
}

// Run hands every task index in [0, tasks) to exactly one worker and waits
// for all of them.
func (pool *WorkerPool) Run(ctx context.Context, tasks int, work WorkerFunction) error {
	t, _ := tomb.WithContext(ctx)
	queue := make(chan int)

	// Spawned from inside a tracked goroutine so the tomb cannot reach the
	// dead state before every worker is registered.
	t.Go(func() error {
		for id := range pool.n {
			t.Go(func() error {
				return pool.worker(t, id, queue, work)
			})
		}

		defer close(queue)
		for task := range tasks {
			select {
			case <-t.Dying():
				return nil
			case queue <- task:
			}
		}
		return nil
	})

	return t.Wait()
}

// Workers wait on tasks in the queue and action them.
func (pool *WorkerPool) worker(t *tomb.Tomb, id int, queue <-chan int, work WorkerFunction) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task, ok := <-queue:
			if !ok {
				return nil
			}
			if err := work(t, task); err != nil {
				pool.logger.Error().Err(err).Int("id", id).Int("task", task).Msg("worker exiting")
				return err
			}
		}
	}
}
