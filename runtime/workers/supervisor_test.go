package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingWorker struct {
	runs    atomic.Int32
	outcome func(run int32) error
}

func (w *countingWorker) Run(ctx context.Context) error {
	return w.outcome(w.runs.Add(1))
}

func TestSupervisor_WorkerFinishingCleanlyIsNotRestarted(t *testing.T) {
	req := require.New(t)
	sup := NewSupervisor(slog.New(slog.DiscardHandler), time.Millisecond)

	worker := &countingWorker{outcome: func(int32) error { return nil }}
	sup.Add(worker)

	done := make(chan struct{})
	go func() {
		sup.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not finish")
	}
	req.Equal(int32(1), worker.runs.Load())
}

func TestSupervisor_FailingWorkerIsRestarted(t *testing.T) {
	req := require.New(t)
	sup := NewSupervisor(slog.New(slog.DiscardHandler), time.Millisecond)

	// Fails twice, then terminates cleanly.
	worker := &countingWorker{outcome: func(run int32) error {
		if run < 3 {
			return fmt.Errorf("transient failure %d", run)
		}
		return nil
	}}
	sup.Add(worker)

	done := make(chan struct{})
	go func() {
		sup.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not finish")
	}
	req.Equal(int32(3), worker.runs.Load())
}

func TestSupervisor_PanickingWorkerIsRecoveredAndRestarted(t *testing.T) {
	req := require.New(t)
	sup := NewSupervisor(slog.New(slog.DiscardHandler), time.Millisecond)

	worker := &countingWorker{outcome: func(run int32) error {
		if run == 1 {
			panic("boom")
		}
		return nil
	}}
	sup.Add(worker)

	done := make(chan struct{})
	go func() {
		sup.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not recover from the panic")
	}
	req.Equal(int32(2), worker.runs.Load())
}

func TestSupervisor_StopCancelsRunningWorkers(t *testing.T) {
	req := require.New(t)
	sup := NewSupervisor(slog.New(slog.DiscardHandler), time.Millisecond)

	started := make(chan struct{})
	worker := &countingWorker{outcome: func(int32) error { return nil }}
	blocking := workerFunc(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return nil
	})
	sup.Add(worker, blocking)

	done := make(chan struct{})
	go func() {
		sup.Run(context.Background())
		close(done)
	}()

	<-started
	sup.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop")
	}
	req.Equal(int32(1), worker.runs.Load())
}

type workerFunc func(ctx context.Context) error

func (f workerFunc) Run(ctx context.Context) error { return f(ctx) }
