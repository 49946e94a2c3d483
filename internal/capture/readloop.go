package capture

import (
	"fmt"
	"log/slog"
	"time"
)

const (
	maxReadFailures = 20
	readRetryBase   = 5 * time.Millisecond
	readRetryMax    = 200 * time.Millisecond
)

// pumpReads calls read until stop is closed and hands every filled buffer to
// consume. An error accepted by keep still carries valid samples. Other
// errors back off exponentially; after maxReadFailures in a row the loop
// gives up and returns the last one.
func pumpReads(stop <-chan struct{}, read func() error, keep func(error) bool, consume func(), logger *slog.Logger) error {
	failures := 0
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		err := read()
		if err == nil || keep(err) {
			if err != nil {
				logger.Debug("stream read recovered", slog.String("error", err.Error()))
			}
			failures = 0
			consume()
			continue
		}

		failures++
		if failures >= maxReadFailures {
			return fmt.Errorf("%w: %d consecutive read errors: %v", ErrUnavailable, failures, err)
		}
		delay := readRetryBase << (failures - 1)
		if delay > readRetryMax {
			delay = readRetryMax
		}
		logger.Warn("stream read failed", slog.String("error", err.Error()), slog.Int("failures", failures))
		select {
		case <-stop:
			return nil
		case <-time.After(delay):
		}
	}
}
