//go:build portaudio

package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
)

// PortAudioRecorder captures from the default input device in process and
// writes the WAV when stopped.
type PortAudioRecorder struct {
	dir        string
	sampleRate int
	channels   int
	logger     *slog.Logger
}

func NewPortAudioRecorder(dir string, sampleRate, channels int, logger *slog.Logger) (Recorder, error) {
	return &PortAudioRecorder{
		dir:        dir,
		sampleRate: sampleRate,
		channels:   channels,
		logger:     logger.With(slog.String("component", "portaudio-recorder")),
	}, nil
}

func (r *PortAudioRecorder) Start(_ context.Context) (Recording, error) {
	path, err := nextRecordingPath(r.dir, time.Now())
	if err != nil {
		return nil, err
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: portaudio init: %v", ErrUnavailable, err)
	}

	in := make([]int16, 1024*r.channels)
	stream, err := portaudio.OpenDefaultStream(r.channels, 0, float64(r.sampleRate), len(in)/r.channels, in)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: open stream: %v", ErrUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: start stream: %v", ErrUnavailable, err)
	}

	rec := &portAudioRecording{
		path:       path,
		sampleRate: r.sampleRate,
		channels:   r.channels,
		stream:     stream,
		in:         in,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		logger:     r.logger,
	}
	rec.power.Store(math.Float64bits(SilenceFloorDB))
	go rec.loop()
	return rec, nil
}

type portAudioRecording struct {
	path       string
	sampleRate int
	channels   int
	stream     *portaudio.Stream
	in         []int16

	mu      sync.Mutex
	samples []int16
	power   atomic.Uint64

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	stopErr  error
	readErr  error
	logger   *slog.Logger
}

func (r *portAudioRecording) loop() {
	defer close(r.done)
	r.readErr = pumpReads(r.stop, r.stream.Read, isOverflow, r.consume, r.logger)
	if r.readErr != nil {
		r.logger.Error("capture stopped reading", slog.String("error", r.readErr.Error()))
	}
}

// isOverflow reports a read that dropped input but filled the buffer.
func isOverflow(err error) bool {
	return errors.Is(err, portaudio.InputOverflowed)
}

func (r *portAudioRecording) consume() {
	r.power.Store(math.Float64bits(PowerDB(r.in)))
	r.mu.Lock()
	r.samples = append(r.samples, r.in...)
	r.mu.Unlock()
}

func (r *portAudioRecording) Path() string { return r.path }

func (r *portAudioRecording) AveragePower() float64 {
	return math.Float64frombits(r.power.Load())
}

func (r *portAudioRecording) Stop() error {
	r.stopOnce.Do(func() {
		close(r.stop)
		<-r.done
		_ = r.stream.Stop()
		_ = r.stream.Close()
		_ = portaudio.Terminate()

		r.mu.Lock()
		samples := r.samples
		r.mu.Unlock()
		if len(samples) == 0 {
			if r.readErr != nil {
				r.stopErr = fmt.Errorf("%w: %v", ErrNoAudio, r.readErr)
				return
			}
			r.stopErr = ErrNoAudio
			return
		}
		if err := WriteWAV(r.path, samples, r.sampleRate, r.channels); err != nil {
			r.stopErr = fmt.Errorf("%w: %v", ErrNoAudio, err)
			return
		}
		r.stopErr = checkAudioFile(r.path)
	})
	return r.stopErr
}
