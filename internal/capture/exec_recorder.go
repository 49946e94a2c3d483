package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"
)

// OutputPlaceholder is replaced with the recording path in the command line.
// When absent the path is appended as the last argument.
const OutputPlaceholder = "{output}"

// ExecRecorder runs an external capture tool (arecord, sox, ffmpeg) that
// writes a 16-bit PCM WAV file until it is interrupted.
type ExecRecorder struct {
	argv        []string
	dir         string
	sampleRate  int
	channels    int
	stopTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

type ExecOptions struct {
	Command     string
	Dir         string
	SampleRate  int
	Channels    int
	StopTimeout time.Duration
}

func NewExecRecorder(opts ExecOptions, logger *slog.Logger) (*ExecRecorder, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(opts.Command)
	if err != nil {
		return nil, fmt.Errorf("parse capture command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("capture command is empty")
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 3 * time.Second
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if opts.Channels <= 0 {
		opts.Channels = 1
	}
	return &ExecRecorder{
		argv:        args,
		dir:         opts.Dir,
		sampleRate:  opts.SampleRate,
		channels:    opts.Channels,
		stopTimeout: opts.StopTimeout,
		logger:      logger.With(slog.String("component", "exec-recorder")),
		now:         time.Now,
	}, nil
}

func (r *ExecRecorder) Start(_ context.Context) (Recording, error) {
	path, err := nextRecordingPath(r.dir, r.now())
	if err != nil {
		return nil, err
	}

	args := make([]string, 0, len(r.argv)+1)
	placed := false
	for _, arg := range r.argv[1:] {
		if strings.Contains(arg, OutputPlaceholder) {
			arg = strings.ReplaceAll(arg, OutputPlaceholder, path)
			placed = true
		}
		args = append(args, arg)
	}
	if !placed {
		args = append(args, path)
	}

	cmd := exec.Command(r.argv[0], args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrUnavailable, r.argv[0], err)
	}

	rec := &execRecording{
		cmd:         cmd,
		path:        path,
		frameBytes:  2 * r.channels,
		window:      r.sampleRate / 10,
		stopTimeout: r.stopTimeout,
		done:        make(chan struct{}),
		logger:      r.logger,
	}
	go func() {
		rec.waitErr = cmd.Wait()
		close(rec.done)
	}()
	r.logger.Debug("capture started", slog.String("path", path), slog.Int("pid", cmd.Process.Pid))
	return rec, nil
}

type execRecording struct {
	cmd         *exec.Cmd
	path        string
	frameBytes  int
	window      int
	stopTimeout time.Duration
	done        chan struct{}
	waitErr     error
	logger      *slog.Logger
	stopOnce    sync.Once
	stopErr     error
}

func (r *execRecording) Path() string { return r.path }

func (r *execRecording) Stop() error {
	r.stopOnce.Do(func() {
		select {
		case <-r.done:
			if r.waitErr != nil {
				r.logger.Warn("capture command exited early", slog.String("error", r.waitErr.Error()))
			}
		default:
			_ = r.cmd.Process.Signal(os.Interrupt)
			select {
			case <-r.done:
			case <-time.After(r.stopTimeout):
				r.logger.Warn("capture command ignored interrupt, killing", slog.String("path", r.path))
				_ = r.cmd.Process.Kill()
				<-r.done
			}
		}
		r.stopErr = checkAudioFile(r.path)
	})
	return r.stopErr
}

// AveragePower reads the most recent tenth of a second from the growing
// file.
func (r *execRecording) AveragePower() float64 {
	f, err := os.Open(r.path)
	if err != nil {
		return SilenceFloorDB
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() <= wavHeaderSize {
		return SilenceFloorDB
	}
	dataLen := info.Size() - wavHeaderSize
	dataLen -= dataLen % int64(r.frameBytes)
	want := int64(r.window * r.frameBytes)
	if want <= 0 || want > dataLen {
		want = dataLen
	}
	if want == 0 {
		return SilenceFloorDB
	}

	buf := make([]byte, want)
	if _, err := f.ReadAt(buf, wavHeaderSize+dataLen-want); err != nil && err != io.EOF {
		return SilenceFloorDB
	}
	samples := make([]int16, len(buf)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}
	return PowerDB(samples)
}
