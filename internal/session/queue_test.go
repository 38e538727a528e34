package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cesargomez89/tidepool/internal/logger"
)

func TestQueueRunsTasksSequentially(t *testing.T) {
	q := NewQueue(logger.Default())
	defer q.Close()

	var mu sync.Mutex
	var order []int
	running := false

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			// Stagger submission so the order is deterministic.
			time.Sleep(time.Duration(i) * 20 * time.Millisecond)
			err := q.Do(context.Background(), "test", func(context.Context) error {
				mu.Lock()
				if running {
					mu.Unlock()
					t.Error("two tasks running at once")
					return nil
				}
				running = true
				order = append(order, i)
				mu.Unlock()

				time.Sleep(30 * time.Millisecond)

				mu.Lock()
				running = false
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("task %d: %v", i, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if len(order) != 2 || order[0] != 0 || order[1] != 1 {
		t.Errorf("execution order = %v, want [0 1]", order)
	}
}

func TestQueueFailureDoesNotBlockNextTask(t *testing.T) {
	q := NewQueue(logger.Default())
	defer q.Close()

	wantErr := errors.New("boom")
	err := q.Do(context.Background(), "failing", func(context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("first task error = %v, want %v", err, wantErr)
	}

	done := make(chan struct{})
	err = q.Do(context.Background(), "after-failure", func(context.Context) error {
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("second task should succeed, got %v", err)
	}
	select {
	case <-done:
	default:
		t.Fatal("second task never ran")
	}
}

func TestQueueAbandonsWaitOnContextExpiry(t *testing.T) {
	q := NewQueue(logger.Default())
	defer q.Close()

	release := make(chan struct{})
	go q.Do(context.Background(), "slow", func(context.Context) error {
		<-release
		return nil
	})
	time.Sleep(20 * time.Millisecond) // let the slow task start

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := q.Do(ctx, "waiting", func(context.Context) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
	close(release)
}

func TestQueueRecoversFromPanic(t *testing.T) {
	q := NewQueue(logger.Default())
	defer q.Close()

	err := q.Do(context.Background(), "panicking", func(context.Context) error {
		panic("oops")
	})
	if err == nil {
		t.Fatal("panicking task should surface an error")
	}

	if err := q.Do(context.Background(), "after-panic", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("queue should survive a panic, got %v", err)
	}
}

func TestQueueDepth(t *testing.T) {
	q := NewQueue(logger.Default())
	defer q.Close()

	release := make(chan struct{})
	go q.Do(context.Background(), "held", func(context.Context) error {
		<-release
		return nil
	})
	time.Sleep(20 * time.Millisecond)

	if d := q.Depth(); d != 1 {
		t.Errorf("depth while task held = %d, want 1", d)
	}
	close(release)
	time.Sleep(20 * time.Millisecond)
	if d := q.Depth(); d != 0 {
		t.Errorf("depth after drain = %d, want 0", d)
	}
}
