package telegram

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	botModels "github.com/go-telegram/bot/models"
)

func TestWorkerPoolRunsTasks(t *testing.T) {
	pool := NewWorkerPool(2, 8, nil)

	var wg sync.WaitGroup
	var count atomic.Int32
	for i := 0; i < 5; i++ {
		wg.Add(1)
		ok := pool.Submit(HandlerTask{
			Ctx: context.Background(),
			Handler: func(context.Context, *botModels.Update) {
				count.Add(1)
				wg.Done()
			},
		})
		if !ok {
			t.Fatalf("submit %d rejected", i)
		}
	}
	wg.Wait()
	pool.Shutdown()

	if got := count.Load(); got != 5 {
		t.Fatalf("expected 5 tasks to run, got %d", got)
	}
}

func TestWorkerPoolRecoversPanic(t *testing.T) {
	recovered := make(chan any, 1)
	pool := NewWorkerPool(1, 4, func(_ HandlerTask, r any) {
		recovered <- r
	})
	defer pool.Shutdown()

	pool.Submit(HandlerTask{
		Ctx:     context.Background(),
		Handler: func(context.Context, *botModels.Update) { panic("boom") },
	})
	if r := <-recovered; r != "boom" {
		t.Fatalf("unexpected recovered value: %v", r)
	}

	// 崩溃后 worker 仍可继续处理
	done := make(chan struct{})
	pool.Submit(HandlerTask{
		Ctx:     context.Background(),
		Handler: func(context.Context, *botModels.Update) { close(done) },
	})
	<-done
}

func TestWorkerPoolSubmitAfterShutdown(t *testing.T) {
	pool := NewWorkerPool(1, 1, nil)
	pool.Shutdown()
	pool.Shutdown()

	if pool.Submit(HandlerTask{Handler: func(context.Context, *botModels.Update) {}}) {
		t.Fatalf("expected submit after shutdown to be rejected")
	}
}

func TestWorkerPoolStats(t *testing.T) {
	pool := NewWorkerPool(0, 16, nil)
	defer pool.Shutdown()

	stats := pool.Stats()
	if stats.Workers != 1 || stats.QueueCapacity != 16 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
