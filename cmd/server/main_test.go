package main

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"paddlers.io/internal/sim/failure"
)

func TestFatalWorkerFailureStopsTheServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fatal := failure.Fatal("economy", io.ErrUnexpectedEOF)
	done := superviseWorkers(ctx, cancel, func(context.Context) error { return fatal }, log.New(io.Discard, "", 0))

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("context not cancelled after a fatal worker failure")
	}
	if err := <-done; !failure.IsFatal(err) {
		t.Fatalf("err=%v want the fatal failure", err)
	}
}

func TestWorkersStopCleanlyOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	run := func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}
	done := superviseWorkers(ctx, cancel, run, log.New(io.Discard, "", 0))
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("err=%v want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("workers did not stop")
	}
}
