// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

package sync

import (
	"context"
	"sync"

	"github.com/halcyonforge/romshelf/internal/logging"
)

// outboundQueue runs fire-and-forget remote pushes off the caller's path.
// Local writes land immediately; the corresponding remote mutation is
// enqueued here and a push failure is logged, never un-done locally.
type outboundQueue struct {
	tasks chan outboundTask
	wg    sync.WaitGroup
	once  sync.Once
}

type outboundTask struct {
	name string
	run  func(context.Context) error
}

// newOutboundQueue starts the queue's single worker. Tasks execute in
// submission order.
func newOutboundQueue(ctx context.Context, depth int) *outboundQueue {
	q := &outboundQueue{tasks: make(chan outboundTask, depth)}
	q.wg.Add(1)
	go q.worker(ctx)
	return q
}

func (q *outboundQueue) worker(ctx context.Context) {
	defer q.wg.Done()
	for task := range q.tasks {
		if err := task.run(ctx); err != nil {
			logging.Warn().Err(err).Str("task", task.name).Msg("Outbound push failed")
		}
	}
}

// enqueue submits a push. A full queue drops the task with a warning
// rather than blocking the caller.
func (q *outboundQueue) enqueue(name string, run func(context.Context) error) {
	select {
	case q.tasks <- outboundTask{name: name, run: run}:
	default:
		logging.Warn().Str("task", name).Msg("Outbound queue full, dropping push")
	}
}

// close stops accepting tasks and waits for in-flight pushes to finish.
func (q *outboundQueue) close() {
	q.once.Do(func() {
		close(q.tasks)
	})
	q.wg.Wait()
}
