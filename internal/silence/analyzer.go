// Package silence decides whether a recording carries speech, both after the
// fact (Analyze) and live while recording (Monitor).
package silence

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/riff"
	"github.com/go-audio/wav"
)

// ErrDecode reports an unreadable recording or an unsupported sample format.
var ErrDecode = errors.New("audio decode failed")

const blockFrames = 4096

// WAVE_FORMAT_PCM, and WAVE_FORMAT_EXTENSIBLE whose sub-format must be PCM.
// Float and compressed formats are rejected.
const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// Analysis is the result of scanning a finished recording.
type Analysis struct {
	TotalDuration  float64
	ActiveDuration float64
}

// AmplitudeThreshold converts a dBFS threshold to a linear peak amplitude.
func AmplitudeThreshold(thresholdDB float64) float64 {
	return math.Pow(10, thresholdDB/20)
}

// Analyze reads the WAV recording at path and measures how much of it is
// louder than thresholdDB.
func Analyze(path string, thresholdDB float64) (Analysis, error) {
	file, err := os.Open(path)
	if err != nil {
		return Analysis{}, fmt.Errorf("%w: open %s: %v", ErrDecode, path, err)
	}
	defer file.Close()
	return AnalyzeReader(file, thresholdDB)
}

// AnalyzeReader is Analyze over an already opened WAV stream.
func AnalyzeReader(r io.ReadSeeker, thresholdDB float64) (Analysis, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Analysis{}, fmt.Errorf("%w: not a valid wav file", ErrDecode)
	}
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return Analysis{}, fmt.Errorf("%w: read header: %v", ErrDecode, err)
	}
	switch dec.WavAudioFormat {
	case wavFormatPCM:
	case wavFormatExtensible:
		sub, err := extensibleSubFormat(r)
		if err != nil {
			return Analysis{}, fmt.Errorf("%w: read extensible header: %v", ErrDecode, err)
		}
		if sub != wavFormatPCM {
			return Analysis{}, fmt.Errorf("%w: unsupported wav sub-format %d", ErrDecode, sub)
		}
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return Analysis{}, fmt.Errorf("%w: rewind: %v", ErrDecode, err)
		}
		dec = wav.NewDecoder(r)
		dec.ReadInfo()
		if err := dec.Err(); err != nil {
			return Analysis{}, fmt.Errorf("%w: read header: %v", ErrDecode, err)
		}
	default:
		return Analysis{}, fmt.Errorf("%w: unsupported wav format tag %d", ErrDecode, dec.WavAudioFormat)
	}

	sampleRate := int(dec.SampleRate)
	channels := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)
	if sampleRate <= 0 || channels <= 0 {
		return Analysis{}, nil
	}
	switch bitDepth {
	case 16, 24, 32:
	default:
		return Analysis{}, fmt.Errorf("%w: unsupported bit depth %d", ErrDecode, bitDepth)
	}

	threshold := AmplitudeThreshold(thresholdDB)
	fullScale := float64(int64(1) << (bitDepth - 1))

	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:   make([]int, blockFrames*channels),
	}

	var totalFrames, activeFrames int64
	for {
		n, err := dec.PCMBuffer(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return Analysis{}, fmt.Errorf("%w: read samples: %v", ErrDecode, err)
		}
		frames := n / channels
		if frames == 0 {
			break
		}
		for f := 0; f < frames; f++ {
			peak := 0.0
			base := f * channels
			for ch := 0; ch < channels; ch++ {
				magnitude := math.Abs(float64(buf.Data[base+ch])) / fullScale
				if magnitude > peak {
					peak = magnitude
				}
			}
			if peak >= threshold {
				activeFrames++
			}
		}
		totalFrames += int64(frames)
		if err != nil {
			break
		}
	}

	return Analysis{
		TotalDuration:  float64(totalFrames) / float64(sampleRate),
		ActiveDuration: float64(activeFrames) / float64(sampleRate),
	}, nil
}

// extensibleFmt is the 40-byte fmt chunk of a WAVE_FORMAT_EXTENSIBLE file up
// to the first field of the sub-format GUID, which holds the format code.
type extensibleFmt struct {
	Format        uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	ExtraSize     uint16
	ValidBits     uint16
	ChannelMask   uint32
	SubFormat     uint16
}

func extensibleSubFormat(r io.ReadSeeker) (uint16, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	parser := riff.New(r)
	if err := parser.ParseHeaders(); err != nil {
		return 0, err
	}
	for {
		chunk, err := parser.NextChunk()
		if err != nil {
			return 0, err
		}
		if chunk.ID != riff.FmtID {
			chunk.Drain()
			continue
		}
		var header extensibleFmt
		if chunk.Size < binary.Size(header) {
			return 0, fmt.Errorf("fmt chunk too short for extensible format: %d bytes", chunk.Size)
		}
		if err := chunk.ReadLE(&header); err != nil {
			return 0, err
		}
		return header.SubFormat, nil
	}
}
