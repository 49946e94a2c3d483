package silence

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func writeWAV(t *testing.T, samples []int, sampleRate, channels int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer file.Close()

	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close wav: %v", err)
	}
	return path
}

func TestAnalyzeSilentRecording(t *testing.T) {
	const rate = 16000
	path := writeWAV(t, make([]int, rate*2), rate, 1)

	for _, threshold := range []float64{-50, -45, -40, -35} {
		analysis, err := Analyze(path, threshold)
		if err != nil {
			t.Fatalf("analyze: %v", err)
		}
		if math.Abs(analysis.TotalDuration-2.0) > 1.0/rate {
			t.Fatalf("threshold %v: expected total ~2s, got %v", threshold, analysis.TotalDuration)
		}
		if analysis.ActiveDuration >= 0.01 {
			t.Fatalf("threshold %v: expected no activity, got %v", threshold, analysis.ActiveDuration)
		}
	}
}

func TestAnalyzeActiveSegment(t *testing.T) {
	const rate = 16000
	samples := make([]int, rate*2)
	// one second at amplitude 0.1 between 0.5s and 1.5s
	for i := rate / 2; i < rate+rate/2; i++ {
		samples[i] = 3277
	}
	path := writeWAV(t, samples, rate, 1)

	analysis, err := Analyze(path, -45)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if analysis.TotalDuration < 1.9 {
		t.Fatalf("expected total ~2s, got %v", analysis.TotalDuration)
	}
	granularity := float64(blockFrames) / rate
	if math.Abs(analysis.ActiveDuration-1.0) > granularity {
		t.Fatalf("expected active ~1s, got %v", analysis.ActiveDuration)
	}
}

func TestAnalyzeUsesPeakAcrossChannels(t *testing.T) {
	const rate = 8000
	frames := rate
	samples := make([]int, frames*2)
	// only the right channel carries signal, for the first quarter second
	for f := 0; f < rate/4; f++ {
		samples[f*2+1] = -8000
	}
	path := writeWAV(t, samples, rate, 2)

	analysis, err := Analyze(path, -40)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if math.Abs(analysis.TotalDuration-1.0) > 1.0/rate {
		t.Fatalf("expected total 1s, got %v", analysis.TotalDuration)
	}
	if math.Abs(analysis.ActiveDuration-0.25) > 1.0/rate {
		t.Fatalf("expected active 0.25s, got %v", analysis.ActiveDuration)
	}
}

// writeExtensibleWAV writes 16-bit mono samples with a WAVE_FORMAT_EXTENSIBLE
// header, the layout ffmpeg and sox use for wide or multichannel output.
func writeExtensibleWAV(t *testing.T, samples []int16, sampleRate int, subFormat uint16) string {
	t.Helper()
	var data bytes.Buffer
	_ = binary.Write(&data, binary.LittleEndian, samples)

	var fmtChunk bytes.Buffer
	fields := []any{
		uint16(wavFormatExtensible),
		uint16(1),
		uint32(sampleRate),
		uint32(sampleRate * 2),
		uint16(2),
		uint16(16),
		uint16(22),
		uint16(16),
		uint32(0x4),
		subFormat,
		[14]byte{0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71},
	}
	for _, f := range fields {
		_ = binary.Write(&fmtChunk, binary.LittleEndian, f)
	}

	var file bytes.Buffer
	file.WriteString("RIFF")
	_ = binary.Write(&file, binary.LittleEndian, uint32(4+8+fmtChunk.Len()+8+data.Len()))
	file.WriteString("WAVE")
	file.WriteString("fmt ")
	_ = binary.Write(&file, binary.LittleEndian, uint32(fmtChunk.Len()))
	file.Write(fmtChunk.Bytes())
	file.WriteString("data")
	_ = binary.Write(&file, binary.LittleEndian, uint32(data.Len()))
	file.Write(data.Bytes())

	path := filepath.Join(t.TempDir(), "extensible.wav")
	if err := os.WriteFile(path, file.Bytes(), 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return path
}

func TestAnalyzeExtensiblePCM(t *testing.T) {
	const rate = 16000
	samples := make([]int16, rate)
	for i := rate / 2; i < rate; i++ {
		samples[i] = 8000
	}
	path := writeExtensibleWAV(t, samples, rate, wavFormatPCM)

	analysis, err := Analyze(path, -45)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if math.Abs(analysis.TotalDuration-1) > 1e-9 {
		t.Fatalf("expected 1s total, got %v", analysis.TotalDuration)
	}
	if math.Abs(analysis.ActiveDuration-0.5) > 1.0/rate {
		t.Fatalf("expected 0.5s active, got %v", analysis.ActiveDuration)
	}
}

func TestAnalyzeRejectsExtensibleFloat(t *testing.T) {
	path := writeExtensibleWAV(t, make([]int16, 1600), 16000, 3)
	if _, err := Analyze(path, -45); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode for float sub-format, got %v", err)
	}
}

func TestAnalyzeEmptyRecording(t *testing.T) {
	path := writeWAV(t, nil, 16000, 1)
	analysis, err := Analyze(path, -45)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if analysis.TotalDuration != 0 || analysis.ActiveDuration != 0 {
		t.Fatalf("expected zero analysis, got %+v", analysis)
	}
}

func TestAnalyzeRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.wav")
	if err := os.WriteFile(path, []byte("definitely not audio"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Analyze(path, -45); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestAnalyzeMissingFile(t *testing.T) {
	if _, err := Analyze(filepath.Join(t.TempDir(), "nope.wav"), -45); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestAmplitudeThreshold(t *testing.T) {
	if got := AmplitudeThreshold(-20); math.Abs(got-0.1) > 1e-9 {
		t.Fatalf("expected 0.1, got %v", got)
	}
	if got := AmplitudeThreshold(0); got != 1 {
		t.Fatalf("expected 1, got %v", got)
	}
}
