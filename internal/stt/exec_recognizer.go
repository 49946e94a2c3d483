package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

// execRecognizer drives a whisper.cpp style command line tool that writes its
// transcript to <output base>.txt.
type execRecognizer struct {
	cmd []string
	mu  sync.Mutex
}

func NewExecRecognizer(command string) (Recognizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt command is empty")
	}
	return &execRecognizer{cmd: args}, nil
}

func (r *execRecognizer) Transcribe(ctx context.Context, req Request) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	binary, err := exec.LookPath(r.cmd[0])
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrEngineUnavailable, r.cmd[0], err)
	}
	if err := checkModel(req.ModelPath); err != nil {
		return "", err
	}

	if req.Params.ChunkSeconds <= 0 {
		return r.transcribeFile(ctx, binary, req.AudioPath, req)
	}

	chunkDir, err := os.MkdirTemp("", "tonevoice_chunks_*")
	if err != nil {
		return "", fmt.Errorf("chunk dir: %w", err)
	}
	defer os.RemoveAll(chunkDir)

	chunks, err := SplitWAV(req.AudioPath, req.Params.ChunkSeconds, chunkDir)
	if err != nil {
		return "", err
	}
	var parts []string
	for _, chunk := range chunks {
		text, err := r.transcribeFile(ctx, binary, chunk, req)
		if err != nil {
			return "", err
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

func (r *execRecognizer) transcribeFile(ctx context.Context, binary, audioPath string, req Request) (string, error) {
	outDir, err := os.MkdirTemp("", "tonevoice_stt_*")
	if err != nil {
		return "", fmt.Errorf("stt output dir: %w", err)
	}
	defer os.RemoveAll(outDir)
	outBase := filepath.Join(outDir, "output")

	args := append([]string{}, r.cmd[1:]...)
	args = append(args, whisperArgs(req, audioPath, outBase)...)

	command := exec.CommandContext(ctx, binary, args...)
	var stderr bytes.Buffer
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%w: %s", ErrEngine, msg)
	}

	data, err := os.ReadFile(outBase + ".txt")
	if err != nil {
		return "", fmt.Errorf("%w: read transcript: %v", ErrEngine, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func whisperArgs(req Request, audioPath, outBase string) []string {
	args := []string{
		"-m", req.ModelPath,
		"-f", audioPath,
		"-otxt",
		"-of", outBase,
	}
	if lang := strings.TrimSpace(req.Language); lang != "" {
		args = append(args, "-l", lang)
	}
	if strings.TrimSpace(req.Prompt) != "" {
		args = append(args, "--prompt", req.Prompt)
	}
	p := req.Params
	if p.BestOf > 0 {
		args = append(args, "--best-of", strconv.Itoa(p.BestOf))
	}
	if p.BeamSize > 0 {
		args = append(args, "--beam-size", strconv.Itoa(p.BeamSize))
	}
	if p.Threads > 0 {
		args = append(args, "--threads", strconv.Itoa(p.Threads))
	}
	args = append(args,
		"--temperature", strconv.FormatFloat(p.Temperature, 'f', -1, 64),
		"--temperature-inc", strconv.FormatFloat(p.TemperatureInc, 'f', -1, 64),
	)
	if p.NoFallback {
		args = append(args, "--no-fallback")
	}
	return args
}

func checkModel(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: no model path configured", ErrModelMissing)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrModelMissing, path)
		}
		return fmt.Errorf("%w: %v", ErrModelMissing, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrModelMissing, path)
	}
	return nil
}
