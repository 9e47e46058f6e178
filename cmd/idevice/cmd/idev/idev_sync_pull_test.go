package idev

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/briandowns/spinner"
)

func TestSyncContext(t *testing.T) {
	ctx, cancel := syncContext(0)
	if _, ok := ctx.Deadline(); ok {
		t.Error("syncContext(0) has a deadline")
	}
	cancel()
	if !errors.Is(ctx.Err(), context.Canceled) {
		t.Errorf("ctx.Err() = %v after cancel, want context.Canceled", ctx.Err())
	}

	ctx, cancel = syncContext(time.Minute)
	defer cancel()
	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("syncContext(time.Minute) has no deadline")
	}
	if until := time.Until(deadline); until <= 0 || until > time.Minute {
		t.Errorf("deadline in %s, want within a minute", until)
	}
}

func TestSetSuffixWhileSpinning(t *testing.T) {
	s := spinner.New(spinner.CharSets[38], time.Millisecond, spinner.WithWriter(io.Discard))
	s.Start()
	defer s.Stop()

	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range 50 {
				setSuffix(s, " %d/%d records", i, n)
			}
		}()
	}
	wg.Wait()

	s.Lock()
	suffix := s.Suffix
	s.Unlock()
	if suffix == "" {
		t.Error("suffix was never set")
	}
}
