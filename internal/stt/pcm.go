package stt

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/zeozeozeo/gomplerate"
)

// whisper.cpp consumes 16 kHz mono float32.
const targetSampleRate = 16000

func readWAV(path string) (*audio.IntBuffer, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: open audio: %v", ErrEngine, err)
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: %s is not a wav file", ErrEngine, path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: decode audio: %v", ErrEngine, err)
	}
	bitDepth := int(dec.BitDepth)
	switch bitDepth {
	case 16, 24, 32:
	default:
		return nil, 0, fmt.Errorf("%w: unsupported bit depth %d", ErrEngine, bitDepth)
	}
	return buf, bitDepth, nil
}

// LoadPCM decodes a WAV recording into the sample format whisper.cpp
// expects: mono, 16 kHz, normalized to [-1, 1].
func LoadPCM(path string) ([]float32, error) {
	buf, bitDepth, err := readWAV(path)
	if err != nil {
		return nil, err
	}
	channels := buf.Format.NumChannels
	if channels <= 0 {
		return nil, fmt.Errorf("%w: no channels in %s", ErrEngine, path)
	}

	mono := toMono16(buf.Data, channels, bitDepth)
	mono = resampleInt16(mono, buf.Format.SampleRate, targetSampleRate)
	return int16ToFloat32(mono), nil
}

func toMono16(data []int, channels, bitDepth int) []int16 {
	shift := uint(bitDepth - 16)
	frames := len(data) / channels
	mono := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int64
		for ch := 0; ch < channels; ch++ {
			sum += int64(data[i*channels+ch] >> shift)
		}
		mono[i] = int16(sum / int64(channels))
	}
	return mono
}

func resampleInt16(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || fromRate <= 0 || len(samples) == 0 {
		return samples
	}
	resampler, err := gomplerate.NewResampler(1, fromRate, toRate)
	if err != nil {
		return samples
	}
	return resampler.ResampleInt16(samples)
}

func int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// SplitWAV writes consecutive pieces of at most seconds each into dir and
// returns their paths in order. A recording that already fits is returned
// unchanged.
func SplitWAV(path string, seconds float64, dir string) ([]string, error) {
	buf, bitDepth, err := readWAV(path)
	if err != nil {
		return nil, err
	}
	channels := buf.Format.NumChannels
	rate := buf.Format.SampleRate
	framesPerChunk := int(seconds * float64(rate))
	if channels <= 0 || framesPerChunk <= 0 || len(buf.Data) <= framesPerChunk*channels {
		return []string{path}, nil
	}

	var paths []string
	step := framesPerChunk * channels
	for start, index := 0, 0; start < len(buf.Data); start, index = start+step, index+1 {
		end := start + step
		if end > len(buf.Data) {
			end = len(buf.Data)
		}
		chunkPath := filepath.Join(dir, fmt.Sprintf("chunk_%d.wav", index))
		chunk := &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
			Data:           buf.Data[start:end],
			SourceBitDepth: bitDepth,
		}
		if err := writeWAV(chunkPath, chunk, bitDepth); err != nil {
			return nil, err
		}
		paths = append(paths, chunkPath)
	}
	return paths, nil
}

func writeWAV(path string, buf *audio.IntBuffer, bitDepth int) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chunk: %w", err)
	}
	defer file.Close()

	enc := wav.NewEncoder(file, buf.Format.SampleRate, bitDepth, buf.Format.NumChannels, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write chunk: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close chunk: %w", err)
	}
	return nil
}
