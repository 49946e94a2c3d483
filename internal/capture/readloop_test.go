package capture

import (
	"errors"
	"testing"
	"time"
)

var errOverflow = errors.New("input overflowed")

func TestPumpReadsKeepsOverflowedBuffers(t *testing.T) {
	stop := make(chan struct{})
	results := []error{nil, errOverflow, nil}
	calls, consumed := 0, 0
	read := func() error {
		if calls == len(results) {
			close(stop)
			return nil
		}
		err := results[calls]
		calls++
		return err
	}
	keep := func(err error) bool { return errors.Is(err, errOverflow) }

	err := pumpReads(stop, read, keep, func() { consumed++ }, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// the read that closes stop still fills a buffer
	if consumed != 4 {
		t.Fatalf("expected overflowed buffer kept, consumed %d", consumed)
	}
}

func TestPumpReadsGivesUpOnPersistentErrors(t *testing.T) {
	failing := errors.New("device unplugged")
	calls := 0
	read := func() error {
		calls++
		return failing
	}
	keep := func(error) bool { return false }

	done := make(chan error, 1)
	go func() {
		done <- pumpReads(make(chan struct{}), read, keep, func() { t.Error("failed read consumed") }, newLogger())
	}()
	select {
	case err := <-done:
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}
		if calls != maxReadFailures {
			t.Fatalf("expected %d attempts, got %d", maxReadFailures, calls)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("read loop kept spinning on a dead device")
	}
}

func TestPumpReadsStopsDuringBackoff(t *testing.T) {
	stop := make(chan struct{})
	read := func() error {
		close(stop)
		return errors.New("transient")
	}
	err := pumpReads(stop, read, func(error) bool { return false }, func() {}, newLogger())
	if err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
}
