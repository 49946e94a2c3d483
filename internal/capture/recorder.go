// Package capture records microphone audio to WAV files and exposes a live
// level meter while recording.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var (
	// ErrNoAudio means the recorder stopped without leaving usable audio.
	ErrNoAudio = errors.New("no audio captured")
	// ErrUnavailable means the backend is not built in or cannot start.
	ErrUnavailable = errors.New("audio capture unavailable")
)

// Recorder opens a new recording. The recording keeps running until Stop
// even if ctx is cancelled.
type Recorder interface {
	Start(ctx context.Context) (Recording, error)
}

// Recording is an in-progress capture exclusively owned by its caller.
type Recording interface {
	// Path is where the finished WAV lives once Stop returns.
	Path() string
	// Stop ends capture and flushes the file. It returns ErrNoAudio when
	// nothing usable was written.
	Stop() error
}

// PowerMeter is implemented by recordings that can report their current
// input level in dBFS.
type PowerMeter interface {
	AveragePower() float64
}

// RecordingName names a file after its start time, e.g.
// recording_20250101_093000.wav.
func RecordingName(now time.Time) string {
	return "recording_" + now.Format("20060102_150405") + ".wav"
}

func nextRecordingPath(dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create recordings dir: %w", err)
	}
	return filepath.Join(dir, RecordingName(now)), nil
}

// wavHeaderSize is the canonical PCM header; anything at or below it holds
// no samples.
const wavHeaderSize = 44

func checkAudioFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoAudio, err)
	}
	if info.Size() <= wavHeaderSize {
		return fmt.Errorf("%w: %s is empty", ErrNoAudio, path)
	}
	return nil
}
