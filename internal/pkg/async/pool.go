// Package async provides a small bounded worker pool for fanning out
// independent tasks, used by the background jobs.
package async

import (
	"context"
	"sync"
)

// Task is one unit of work identified by a name.
type Task[T any] struct {
	Name    string
	Execute func() (T, error)
}

// Result pairs a task name with its outcome.
type Result[T any] struct {
	Name  string
	Value T
	Err   error
}

// Pool executes tasks with a fixed number of workers.
type Pool[T any] struct {
	workerCount int
}

// NewPool creates a pool running at most workerCount tasks concurrently.
func NewPool[T any](workerCount int) *Pool[T] {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool[T]{workerCount: workerCount}
}

// Execute runs all tasks and returns their results keyed by task name.
// A cancelled context stops scheduling; results gathered so far are returned.
func (p *Pool[T]) Execute(ctx context.Context, tasks []Task[T]) map[string]Result[T] {
	taskCh := make(chan Task[T])
	resultCh := make(chan Result[T])

	var wg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case task, ok := <-taskCh:
					if !ok {
						return
					}
					value, err := task.Execute()
					select {
					case resultCh <- Result[T]{Name: task.Name, Value: value, Err: err}:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(taskCh)
		for _, task := range tasks {
			select {
			case taskCh <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	results := make(map[string]Result[T], len(tasks))
	for i := 0; i < len(tasks); i++ {
		select {
		case result := <-resultCh:
			results[result.Name] = result
		case <-ctx.Done():
			return results
		}
	}

	return results
}
